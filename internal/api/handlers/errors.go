package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/generally23/hlguinee/internal/apperr"
)

// respondError maps the error taxonomy onto HTTP statuses. Anything outside
// the taxonomy is a 500 with a generic message; the real cause goes to the
// gin error log, never to the client.
func respondError(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": apperr.MessageOf(err)})
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": apperr.MessageOf(err)})
	case apperr.KindPermission:
		c.JSON(http.StatusForbidden, gin.H{"error": apperr.MessageOf(err)})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": apperr.MessageOf(err)})
	}
}
