package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/camprent/libs/config"
	otelx "github.com/md-rashed-zaman/camprent/libs/otel"
)

type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"booking-service"`
	Port        string `envconfig:"PORT" default:"8083"`
	GRPCPort    string `envconfig:"GRPC_PORT" default:"9093"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"` // postgres | memory
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	DBMaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBAutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"false"`

	KafkaBrokers    string        `envconfig:"KAFKA_BROKERS"`
	OutboxPollEvery time.Duration `envconfig:"OUTBOX_POLL_EVERY" default:"2s"`
	OutboxBatchSize int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`

	JWTSecret string        `envconfig:"JWT_SECRET"`
	JWKSURL   string        `envconfig:"JWKS_URL"`
	JWKSTTL   time.Duration `envconfig:"JWKS_CACHE_TTL" default:"5m"`
	JWTIssuer string        `envconfig:"JWT_ISSUER"`

	RedisAddr         string `envconfig:"REDIS_ADDR"`
	RedisPassword     string `envconfig:"REDIS_PASSWORD"`
	RedisDB           int    `envconfig:"REDIS_DB" default:"0"`
	RateLimitPerMin   int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`
	RateLimitPrefix   string `envconfig:"RATE_LIMIT_PREFIX" default:"rl:booking"`
	RateLimitFailOpen bool   `envconfig:"RATE_LIMIT_FAIL_OPEN" default:"true"`

	CORSAllowedOrigins string        `envconfig:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	BodyLimitBytes     int64         `envconfig:"REQUEST_BODY_LIMIT_BYTES" default:"1048576"`

	Currency string `envconfig:"PAYMENT_CURRENCY" default:"usd"`

	HostedBaseURL   string        `envconfig:"HOSTED_PAY_URL"`
	HostedMerchant  string        `envconfig:"HOSTED_PAY_MERCHANT"`
	HostedSecret    string        `envconfig:"HOSTED_PAY_SECRET"`
	HostedReturnURL string        `envconfig:"HOSTED_PAY_RETURN_URL"`
	HostedTTL       time.Duration `envconfig:"HOSTED_PAY_TTL" default:"15m"`

	StripeSecretKey     string        `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeSuccessURL    string        `envconfig:"STRIPE_SUCCESS_URL"`
	StripeCancelURL     string        `envconfig:"STRIPE_CANCEL_URL"`
	StripeTTL           time.Duration `envconfig:"STRIPE_CHECKOUT_TTL" default:"30m"`
	StripeBreakerFails  uint32        `envconfig:"STRIPE_BREAKER_FAILURES" default:"5"`
	StripeBreakerWait   time.Duration `envconfig:"STRIPE_BREAKER_COOLDOWN" default:"30s"`

	otelx.Config
}

// devJWTSecret signs local tokens when the service runs on memory storage
// without a configured key.
const devJWTSecret = "dev-secret"

func loadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDevDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDevDefaults() {
	if c.StorageDriver == "memory" && c.JWTSecret == "" && c.JWKSURL == "" {
		c.JWTSecret = devJWTSecret
	}
}

func (c Config) validate() error {
	if _, err := config.Port("PORT", c.Port); err != nil {
		return err
	}
	if _, err := config.Port("GRPC_PORT", c.GRPCPort); err != nil {
		return err
	}
	switch c.StorageDriver {
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("STORAGE_DRIVER must be postgres or memory (got %q)", c.StorageDriver)
	}
	if c.JWTSecret == "" && c.JWKSURL == "" {
		return fmt.Errorf("JWT_SECRET or JWKS_URL is required")
	}
	if c.JWTSecret == devJWTSecret && c.StorageDriver != "memory" {
		return fmt.Errorf("JWT_SECRET must not be the development default unless STORAGE_DRIVER=memory")
	}
	if c.HostedBaseURL != "" && c.HostedSecret == "" {
		return fmt.Errorf("HOSTED_PAY_SECRET is required when HOSTED_PAY_URL is set")
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	return c.Config.Validate()
}
