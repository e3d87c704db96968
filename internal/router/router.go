package router

import (
	"net/http"
	"time"

	"restaurant_ordering_backend/internal/handlers"
	"restaurant_ordering_backend/internal/middleware"
	"restaurant_ordering_backend/internal/ratelimit"
	"restaurant_ordering_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Handlers bundles the HTTP handlers the router mounts.
type Handlers struct {
	Auth    *handlers.AuthHandler
	Menu    *handlers.MenuHandler
	Order   *handlers.OrderHandler
	Payment *handlers.PaymentHandler
}

// RateLimit configures the per-client limit applied to order and payment creation.
type RateLimit struct {
	Store    ratelimit.Store
	Requests int
	Window   time.Duration
}

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, h Handlers, tokens *utils.TokenManager, rl RateLimit) {
	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := engine.Group("/api/v1")
	writeLimit := middleware.RateLimit(rl.Store, "write", rl.Requests, rl.Window)

	SetupPublicAuthRoutes(apiV1.Group("/auth"), h.Auth)
	SetupMenuRoutes(apiV1, h.Menu)
	SetupOrderRoutes(apiV1, h.Order, writeLimit)
	SetupPaymentRoutes(apiV1, h.Payment, writeLimit)

	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware(tokens))
	{
		SetupAuthenticatedAuthRoutes(authenticated.Group("/auth"), h.Auth)

		admin := authenticated.Group("/admin")
		SetupAdminOrderRoutes(admin, h.Order)
		SetupAdminPaymentRoutes(admin, h.Payment)
		SetupAdminMenuRoutes(admin, h.Menu)
		SetupAdminUserRoutes(admin, h.Auth)
	}
}
