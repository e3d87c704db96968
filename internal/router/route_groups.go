package router

import (
	"restaurant_ordering_backend/internal/handlers"
	"restaurant_ordering_backend/internal/middleware"
	"restaurant_ordering_backend/internal/models"

	"github.com/gin-gonic/gin"
)

func SetupPublicAuthRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	group.POST("/login", authHandler.LoginUser)
}

func SetupAuthenticatedAuthRoutes(group *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	group.GET("/me", authHandler.GetCurrentUser)
}

// SetupMenuRoutes sets up the public menu routes.
func SetupMenuRoutes(apiGroup *gin.RouterGroup, menuHandler *handlers.MenuHandler) {
	menuRoutes := apiGroup.Group("/menu")
	{
		menuRoutes.GET("", menuHandler.GetPublicMenu)
		menuRoutes.GET("/:id", menuHandler.GetMenuItem)
	}
}

// SetupOrderRoutes sets up the customer-facing order routes. Lookups go by order number;
// sequential ids are only readable from the admin group.
func SetupOrderRoutes(apiGroup *gin.RouterGroup, orderHandler *handlers.OrderHandler, limit gin.HandlerFunc) {
	orderRoutes := apiGroup.Group("/orders")
	{
		orderRoutes.POST("", limit, orderHandler.CreateOrder)
		orderRoutes.POST("/:id/cancel", limit, orderHandler.CancelOrderByCustomer)
		orderRoutes.GET("/number/:number", orderHandler.GetOrderByNumber)
		orderRoutes.GET("/track/:number", orderHandler.TrackOrder)
		orderRoutes.GET("/track/:number/events", orderHandler.StreamOrderEvents)
	}
}

// SetupPaymentRoutes sets up the customer-facing payment routes and the provider webhook.
func SetupPaymentRoutes(apiGroup *gin.RouterGroup, paymentHandler *handlers.PaymentHandler, limit gin.HandlerFunc) {
	paymentRoutes := apiGroup.Group("/payments")
	{
		paymentRoutes.POST("/intents", limit, paymentHandler.CreatePaymentIntent)
		paymentRoutes.POST("/verify/:reference", paymentHandler.VerifyPayment)
		paymentRoutes.GET("/reference/:reference", paymentHandler.GetPaymentByReference)
		paymentRoutes.POST("/webhook", paymentHandler.HandleWebhook)
	}
}

// SetupAdminOrderRoutes sets up the kitchen and back-office order queue.
func SetupAdminOrderRoutes(adminGroup *gin.RouterGroup, orderHandler *handlers.OrderHandler) {
	orderRoutes := adminGroup.Group("/orders")
	orderRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RoleStaff))
	{
		orderRoutes.GET("", orderHandler.GetOrders)
		orderRoutes.GET("/:id", orderHandler.GetOrderByID)
		orderRoutes.PATCH("/:id/status", orderHandler.UpdateOrderStatus)
		orderRoutes.POST("/:id/cancel", orderHandler.CancelOrder)
	}
}

// SetupAdminPaymentRoutes sets up payment reporting and refunds. Refunds are admin only.
func SetupAdminPaymentRoutes(adminGroup *gin.RouterGroup, paymentHandler *handlers.PaymentHandler) {
	paymentRoutes := adminGroup.Group("/payments")
	paymentRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RoleStaff))
	{
		paymentRoutes.GET("/stats", paymentHandler.GetPaymentStats)
		paymentRoutes.POST("/:id/refund", middleware.RoleAuthMiddleware(models.RoleAdmin), paymentHandler.RefundPayment)
	}
}

// SetupAdminMenuRoutes sets up menu management.
// Note: staff may list items and toggle availability; the remaining writes are admin only.
func SetupAdminMenuRoutes(adminGroup *gin.RouterGroup, menuHandler *handlers.MenuHandler) {
	menuRoutes := adminGroup.Group("/menu")
	menuRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RoleStaff))
	{
		menuRoutes.GET("", menuHandler.ListMenuItems)
		menuRoutes.GET("/:id", menuHandler.GetMenuItem)
		menuRoutes.PATCH("/:id/availability", menuHandler.SetAvailability)
	}

	menuWriteRoutes := adminGroup.Group("/menu")
	menuWriteRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin))
	{
		menuWriteRoutes.POST("", menuHandler.CreateMenuItem)
		menuWriteRoutes.PUT("/:id", menuHandler.UpdateMenuItem)
		menuWriteRoutes.DELETE("/:id", menuHandler.DeleteMenuItem)
	}
}

func SetupAdminUserRoutes(adminGroup *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	adminGroup.POST("/users", middleware.RoleAuthMiddleware(models.RoleAdmin), authHandler.RegisterUser)
}
