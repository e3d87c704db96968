package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"restaurant_ordering_backend/internal/cache"
	"restaurant_ordering_backend/internal/config"
	"restaurant_ordering_backend/internal/database"
	"restaurant_ordering_backend/internal/handlers"
	"restaurant_ordering_backend/internal/idempotency"
	"restaurant_ordering_backend/internal/messaging"
	"restaurant_ordering_backend/internal/payments"
	"restaurant_ordering_backend/internal/ratelimit"
	"restaurant_ordering_backend/internal/realtime"
	"restaurant_ordering_backend/internal/repositories"
	"restaurant_ordering_backend/internal/router"
	"restaurant_ordering_backend/internal/services"
	"restaurant_ordering_backend/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	utils.InitLogger(cfg.Server.LogLevel, cfg.Server.PrettyLogs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(ctx, cfg.Database)
	if err != nil {
		utils.LogError(err, "Failed to initialize database")
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Redis backs the menu cache, rate limiting and webhook de-duplication when configured.
	var (
		menuCache services.MenuCache         = cache.Noop{}
		limiter   ratelimit.Store            = ratelimit.NewMemoryStore()
		dedup     services.EventDeduplicator = idempotency.NewMemoryStore(cfg.Payment.WebhookDedupTTL)
	)
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to redis at %s: %v", cfg.Redis.Addr, err)
		}
		defer rdb.Close()
		menuCache = cache.NewRedisMenuCache(rdb, cfg.Ordering.MenuCacheTTL)
		limiter = ratelimit.NewRedisStore(rdb)
		dedup = idempotency.NewStore(rdb, cfg.Payment.WebhookDedupTTL)
		utils.LogInfo("Redis connected", map[string]interface{}{"addr": cfg.Redis.Addr})
	} else {
		utils.LogWarn("REDIS_ADDR not set; using in-process cache, rate limiter and webhook de-duplication")
	}

	// Status events always reach local SSE subscribers; RabbitMQ fans them out to other instances.
	hub := realtime.NewHub(16)
	var notifier realtime.Notifier = hub
	if cfg.RabbitMQ.Enabled() {
		conn, err := messaging.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			log.Fatalf("Failed to connect to rabbitmq: %v", err)
		}
		defer conn.Close()

		instanceID := uuid.NewString()
		notifier = realtime.MultiNotifier{hub, messaging.NewPublisher(conn, instanceID)}
		consumer := messaging.NewConsumer(conn, instanceID, hub)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				utils.LogError(err, "Order event consumer exited")
			}
		}()
		utils.LogInfo("RabbitMQ connected", map[string]interface{}{"instance_id": instanceID})
	}

	var (
		provider services.PaymentProvider
		webhooks handlers.WebhookParser
	)
	if cfg.Payment.StripeSecretKey != "" {
		stripeProvider := payments.NewStripeProvider(cfg.Payment.StripeSecretKey, cfg.Payment.StripeWebhookSecret)
		provider, webhooks = stripeProvider, stripeProvider
	} else {
		utils.LogWarn("STRIPE_SECRET_KEY not set; payment intents are disabled")
		provider, webhooks = payments.UnconfiguredProvider{}, payments.UnconfiguredProvider{}
	}

	// Initialize Repositories
	tx := repositories.NewTransactor(db)
	menuRepo := repositories.NewMenuRepository(db)
	orderRepo := repositories.NewOrderRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	authRepo := repositories.NewAuthRepository(db)

	// Initialize Services
	tokens := utils.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration)
	authService := services.NewAuthService(authRepo, tx, tokens)
	menuService := services.NewMenuService(menuRepo, tx, menuCache)
	orderService := services.NewOrderService(orderRepo, menuRepo, tx, services.OrderConfig{
		TaxRate:      cfg.Ordering.TaxRate,
		DeliveryFee:  cfg.Ordering.DeliveryFee,
		MinimumOrder: cfg.Ordering.MinimumOrder,
	})
	paymentService := services.NewPaymentService(paymentRepo, orderRepo, orderService, tx, provider, dedup, services.PaymentConfig{
		Currency:        cfg.Payment.Currency,
		ProviderTimeout: cfg.Payment.ProviderTimeout,
	})

	if cfg.Auth.AdminUsername != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
			log.Fatalf("Failed to bootstrap admin user: %v", err)
		}
	}

	gin.SetMode(cfg.Server.GinMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), utils.RequestID(), utils.GinLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", utils.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{utils.RequestIDHeader, "X-RateLimit-Remaining", "Retry-After"}
	corsConfig.AllowCredentials = true
	engine.Use(cors.New(corsConfig))

	router.Setup(engine, router.Handlers{
		Auth:    handlers.NewAuthHandler(authService),
		Menu:    handlers.NewMenuHandler(menuService),
		Order:   handlers.NewOrderHandler(orderService, notifier, hub),
		Payment: handlers.NewPaymentHandler(paymentService, orderService, webhooks, notifier),
	}, tokens, router.RateLimit{Store: limiter, Requests: cfg.RateLimit.Requests, Window: cfg.RateLimit.Window})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Shutdown waits for active requests; event streams would otherwise hold it open.
	srv.RegisterOnShutdown(hub.CloseAll)

	go func() {
		utils.LogInfo("Server starting", map[string]interface{}{"port": cfg.Server.Port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.LogError(err, "Failed to start server")
			stop()
		}
	}()

	<-ctx.Done()
	utils.LogInfo("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.LogError(err, "Server forced to shut down")
	}
}
