package auth

import (
	"shelfmate/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// Router handles auth-related routes
type Router struct {
	controller *Controller
	verifier   middleware.AccessVerifier
}

// NewRouter creates a new auth router
func NewRouter(controller *Controller, verifier middleware.AccessVerifier) *Router {
	return &Router{
		controller: controller,
		verifier:   verifier,
	}
}

// SetupRoutes registers all auth routes
func (authRouter *Router) SetupRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		// Public routes (no authentication required)
		auth.POST("/register", authRouter.controller.Register)
		auth.POST("/login", authRouter.controller.Login)
		auth.POST("/refresh", authRouter.controller.RefreshToken)
		auth.GET("/google", authRouter.controller.GoogleAuth)
		auth.GET("/google/callback", authRouter.controller.GoogleCallback)
		auth.GET("/session", middleware.OptionalAuth(authRouter.verifier), authRouter.controller.Session)

		// Protected routes (authentication required)
		protected := auth.Group("")
		protected.Use(middleware.RequireAuth(authRouter.verifier))
		{
			protected.POST("/logout", authRouter.controller.Logout)
			protected.PUT("/change-password", authRouter.controller.ChangePassword)
			protected.GET("/me", authRouter.controller.GetMe)
		}
	}
}
