// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"eventhub/internal/events"
	"eventhub/internal/gateway"
	"eventhub/internal/shared/config"
	"eventhub/internal/shared/database"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Router holds all route dependencies
type Router struct {
	config   *config.Config
	db       *database.DB
	registry *gateway.Registry
	health   events.Service
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, registry *gateway.Registry) *Router {
	return &Router{
		config:   cfg,
		db:       db,
		registry: registry,
		health:   gateway.NewHealthCheck(cfg),
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check and basic info endpoints
	r.setupHealthRoutes(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API routes
	api := engine.Group(r.config.GetAPIBasePath())
	{
		gateway.SetupGatewayRoutes(api, gateway.NewController(r.registry))
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		// Local stores first, then the ticketing backend
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "eventhub-gateway",
			})
			return
		}
		if err := r.health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "degraded",
				"error":     "ticketing backend unreachable: " + err.Error(),
				"timestamp": time.Now(),
				"service":   "eventhub-gateway",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "eventhub-gateway",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "operational",
			"api_version":     r.config.APIVersion,
			"backend":         r.config.BackendURL(),
			"active_sessions": r.registry.Len(),
			"timestamp":       time.Now(),
		})
	})
}
