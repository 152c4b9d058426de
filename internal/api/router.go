package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/generally23/hlguinee/internal/api/handlers"
	"github.com/generally23/hlguinee/internal/api/middleware"
	"github.com/generally23/hlguinee/internal/config"
	"github.com/generally23/hlguinee/internal/geofence"
	"github.com/generally23/hlguinee/internal/services"
	"github.com/generally23/hlguinee/internal/storage"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(
	cfg *config.Config,
	db *mongo.Database,
	blobs storage.BlobStore,
	fence *geofence.Validator,
	taskClient handlers.TaskEnqueuer,
	log *zap.Logger,
) *gin.Engine {
	propertyService := services.NewPropertyService(db, cfg, blobs, fence, log)
	accountService := services.NewAccountService(db, cfg, blobs, log)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg, log)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	propertyHandler := handlers.NewPropertyHandler(cfg, propertyService, blobs, taskClient, log)
	accountHandler := handlers.NewAccountHandler(cfg, accountService, blobs, taskClient, log)

	v1 := r.Group("/v1")
	{
		// Public routes (rate limiting already applied globally)
		v1.GET("/property/search", propertyHandler.SearchProperties)
		v1.GET("/property/:id", propertyHandler.GetProperty)

		v1.POST("/account/register", accountHandler.Register)
		v1.POST("/account/login", accountHandler.Login)
		v1.POST("/account/verify", accountHandler.Verify)
		v1.GET("/account/:id", accountHandler.GetAccount)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.POST("/property", propertyHandler.CreateProperty)
			authRequired.PATCH("/property/:id", propertyHandler.UpdateProperty)
			authRequired.DELETE("/property/:id", propertyHandler.DeleteProperty)
			authRequired.POST("/property/:id/images", propertyHandler.UploadImages)

			authRequired.POST("/account/logout", accountHandler.Logout)
			authRequired.GET("/account/me", accountHandler.Me)
			authRequired.POST("/account/avatar", accountHandler.UploadAvatar)
		}
	}

	return r
}
