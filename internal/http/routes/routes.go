package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/phambaophuc/image-seo/internal/http/handlers"
	"github.com/phambaophuc/image-seo/internal/http/middleware"
)

type Router struct {
	batchHandler *handlers.BatchHandler
	authSecret   string
	logger       *zap.Logger
}

func NewRouter(batchHandler *handlers.BatchHandler, authSecret string, logger *zap.Logger) *Router {
	return &Router{
		batchHandler: batchHandler,
		authSecret:   authSecret,
		logger:       logger,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger(r.logger))
	router.Use(middleware.ErrorHandler(r.logger))
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", r.batchHandler.HealthCheck)

		authed := v1.Group("", middleware.Auth(r.authSecret))
		{
			authed.POST("/batches", r.batchHandler.CreateBatch)
			authed.GET("/batches/:id", r.batchHandler.GetBatch)
			authed.GET("/ledger/balance", r.batchHandler.GetBalance)
			authed.GET("/reconciliation", r.batchHandler.GetReconciliation)
		}
	}

	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":  "OK",
			"message": "SEO image service is running",
		})
	})

	return router
}
