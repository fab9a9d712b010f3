// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"shelfmate/internal/audit"
	"shelfmate/internal/auth"
	"shelfmate/internal/shared/config"
	"shelfmate/internal/shared/database"
	"shelfmate/internal/shared/middleware"
	"shelfmate/internal/tokens"
	"shelfmate/pkg/cache"
	"shelfmate/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies
type Router struct {
	config    *config.Config
	db        *database.DB
	tokens    *tokens.Service
	publisher audit.Publisher
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, tokenService *tokens.Service, publisher audit.Publisher) *Router {
	return &Router{
		config:    cfg,
		db:        db,
		tokens:    tokenService,
		publisher: publisher,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check and basic info endpoints
	r.setupHealthRoutes(engine)

	// API routes
	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupAuthRoutes(api)
	}

	engine.NoRoute(middleware.NoRoute)
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "shelfmate-auth",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "shelfmate-auth",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	// /status breaks the health check down per dependency
	engine.GET("/status", func(c *gin.Context) {
		report, _ := r.db.Health(c.Request.Context())

		code, status := http.StatusOK, "operational"
		if !report.Healthy() {
			code, status = http.StatusServiceUnavailable, "degraded"
		}
		c.JSON(code, gin.H{
			"status":        status,
			"dependencies":  report,
			"api_version":   r.config.APIVersion,
			"google_oauth":  r.config.Google.Enabled(),
			"audit_enabled": r.config.Audit.Enabled,
			"rate_limiting": r.config.RateLimit.Enabled,
			"timestamp":     time.Now(),
		})
	})
}

// setupAuthRoutes configures authentication routes
func (r *Router) setupAuthRoutes(rg *gin.RouterGroup) {
	authRepo := auth.NewRepository(r.db.PostgreSQL)
	authService := auth.NewService(authRepo, r.tokens, r.publisher)

	var google auth.OAuthProvider
	if r.config.Google.Enabled() {
		google = auth.NewGoogleProvider(r.config.Google)
	} else {
		logger.GetDefault().Info("Google OAuth not configured (GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET required)")
	}
	states := auth.NewStateStore(cache.NewService(r.db.Redis), r.config.Redis.OAuthStateTTL)

	authController := auth.NewController(authService, google, states, r.config)
	authRouter := auth.NewRouter(authController, r.tokens)

	authRouter.SetupRoutes(rg)
}
