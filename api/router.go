// api/router.go
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Annany2002/nebula-dataapi/api/handlers"
	"github.com/Annany2002/nebula-dataapi/api/middleware"
	"github.com/Annany2002/nebula-dataapi/config"
	"github.com/Annany2002/nebula-dataapi/internal/cache"
	"github.com/Annany2002/nebula-dataapi/internal/engine"
	"github.com/Annany2002/nebula-dataapi/internal/registry"
)

// Dependencies are the services the router wires into handlers.
// Cache may be nil to disable response caching.
type Dependencies struct {
	Engine   *engine.Service
	Registry *registry.Registry
	Cache    *cache.Cache
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", middleware.APIKeyHeader, "Cache-Control")
	cfg.ExposeHeaders = []string{middleware.CacheHeader}
	cfg.MaxAge = 12 * time.Hour
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// SetupRouter initializes the Gin router and sets up all routes.
func SetupRouter(deps Dependencies, cfg *config.Config) *gin.Engine {
	router := gin.Default() // Includes Logger and Recovery

	router.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))
	if cfg.RateLimitPerMinute > 0 {
		router.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)))
	}
	router.Use(middleware.ErrorHandler(cfg.Debug))

	dataHandler := handlers.NewDataHandler(deps.Engine)
	cached := middleware.CacheMiddleware(deps.Cache, deps.Registry.Lookup)

	// --- Public Routes ---
	router.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })

	// --- Data Routes ---
	// Anonymous callers pass through; each model's access rules decide.
	apiRoutes := router.Group("/api/v1")
	apiRoutes.Use(middleware.IdentityMiddleware(deps.Registry, cfg.JWTSecret))
	{
		data := apiRoutes.Group("/data/:table")
		data.GET("", cached, dataHandler.List)
		data.POST("", dataHandler.Create)
		data.GET("/schema", dataHandler.Schema)
		data.POST("/bulk", dataHandler.Bulk)
		data.GET("/:id", cached, dataHandler.Show)
		data.PUT("/:id", dataHandler.Update)
		data.DELETE("/:id", dataHandler.Delete)
		data.POST("/:id/restore", dataHandler.Restore)
	}

	return router
}
