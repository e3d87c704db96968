package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"restaurant_ordering_backend/internal/database"
	"restaurant_ordering_backend/internal/pricing"
	"restaurant_ordering_backend/pkg/utils"

	"github.com/shopspring/decimal"
)

type ServerConfig struct {
	Port           string
	GinMode        string
	AllowedOrigins []string
	LogLevel       string
	PrettyLogs     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured. Without one the
// in-memory stores are used.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type RabbitMQConfig struct {
	URL string
}

func (r RabbitMQConfig) Enabled() bool { return r.URL != "" }

type PaymentConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	ProviderTimeout     time.Duration
	WebhookDedupTTL     time.Duration
}

type OrderingConfig struct {
	TaxRate      decimal.Decimal
	DeliveryFee  int64
	MinimumOrder int64
	MenuCacheTTL time.Duration
}

type AuthConfig struct {
	JWTSecret     string
	JWTExpiration time.Duration
	AdminUsername string
	AdminPassword string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Config is the complete runtime configuration, read from the environment.
type Config struct {
	Server    ServerConfig
	Database  database.Config
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	Payment   PaymentConfig
	Ordering  OrderingConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

const defaultJWTSecret = "change-me-in-production"

// Load reads the configuration from environment variables, applying defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           utils.Getenv("PORT", "8080"),
			GinMode:        utils.Getenv("GIN_MODE", "debug"),
			AllowedOrigins: splitList(utils.Getenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001")),
			LogLevel:       utils.Getenv("LOG_LEVEL", "info"),
			PrettyLogs:     utils.GetenvBool("LOG_PRETTY", false),
		},
		Database: database.Config{
			Host:        utils.Getenv("DB_HOST", "localhost"),
			Port:        utils.Getenv("DB_PORT", "5432"),
			User:        utils.Getenv("DB_USER", "restaurant"),
			Password:    utils.Getenv("DB_PASSWORD", "restaurant"),
			Name:        utils.Getenv("DB_NAME", "restaurant_ordering"),
			SSLMode:     utils.Getenv("DB_SSLMODE", "disable"),
			MaxOpen:     utils.GetenvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdle:     utils.GetenvInt("DB_MAX_IDLE_CONNS", 5),
			ApplySchema: utils.GetenvBool("DB_APPLY_SCHEMA", true),
		},
		Redis: RedisConfig{
			Addr:     utils.Getenv("REDIS_ADDR", ""),
			Password: utils.Getenv("REDIS_PASSWORD", ""),
			DB:       utils.GetenvInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL: utils.Getenv("RABBITMQ_URL", ""),
		},
		Payment: PaymentConfig{
			StripeSecretKey:     utils.Getenv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: utils.Getenv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:            strings.ToLower(utils.Getenv("PAYMENT_CURRENCY", "usd")),
			ProviderTimeout:     utils.GetenvDuration("PAYMENT_PROVIDER_TIMEOUT", 15*time.Second),
			WebhookDedupTTL:     utils.GetenvDuration("WEBHOOK_DEDUP_TTL", 72*time.Hour),
		},
		Ordering: OrderingConfig{
			DeliveryFee:  utils.GetenvInt64("DELIVERY_FEE", 5000),
			MinimumOrder: utils.GetenvInt64("MINIMUM_ORDER", 0),
			MenuCacheTTL: utils.GetenvDuration("MENU_CACHE_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:     utils.Getenv("JWT_SECRET", defaultJWTSecret),
			JWTExpiration: utils.GetenvDuration("JWT_EXPIRATION", 72*time.Hour),
			AdminUsername: utils.Getenv("ADMIN_USERNAME", ""),
			AdminPassword: utils.Getenv("ADMIN_PASSWORD", ""),
		},
		RateLimit: RateLimitConfig{
			Requests: utils.GetenvInt("RATE_LIMIT_REQUESTS", 100),
			Window:   utils.GetenvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
	}

	taxRate, err := pricing.ParseTaxRate(utils.Getenv("TAX_RATE", "0.075"))
	if err != nil {
		return nil, err
	}
	cfg.Ordering.TaxRate = taxRate

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == defaultJWTSecret && cfg.Server.GinMode == "release" {
		utils.LogWarn("JWT_SECRET is not set; using the development default in release mode")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Ordering.DeliveryFee < 0 {
		errs = append(errs, fmt.Errorf("DELIVERY_FEE must not be negative, got %d", c.Ordering.DeliveryFee))
	}
	if c.Ordering.MinimumOrder < 0 {
		errs = append(errs, fmt.Errorf("MINIMUM_ORDER must not be negative, got %d", c.Ordering.MinimumOrder))
	}
	if c.Payment.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_PROVIDER_TIMEOUT must be positive"))
	}
	if len(c.Payment.Currency) != 3 {
		errs = append(errs, fmt.Errorf("PAYMENT_CURRENCY must be a three-letter code, got %q", c.Payment.Currency))
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}
	if (c.Auth.AdminUsername == "") != (c.Auth.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_USERNAME and ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
