package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/generally23/hlguinee/internal/auth"
	"github.com/generally23/hlguinee/internal/models"
)

const (
	// ContextKeyAccountID holds the key for the account ID in Gin context.
	ContextKeyAccountID = "accountID"
	// ContextKeyRole holds the key for the account role in Gin context.
	ContextKeyRole = "accountRole"
)

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := auth.ValidateJWT(parts[1], jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextKeyAccountID, claims.AccountID) // hex ObjectID
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

// IsAdminRole reports whether the role carries administrative privileges.
func IsAdminRole(role string) bool {
	return role == string(models.RoleAdmin) || role == string(models.RoleSubAdmin)
}
