package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/camprent/libs/auth"
	"github.com/md-rashed-zaman/camprent/libs/db"
	"github.com/md-rashed-zaman/camprent/libs/grpcx"
	"github.com/md-rashed-zaman/camprent/libs/httpx"
	"github.com/md-rashed-zaman/camprent/libs/kafkax"
	otelx "github.com/md-rashed-zaman/camprent/libs/otel"
	"github.com/md-rashed-zaman/camprent/libs/runtime"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/memstore"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/payment"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/staffing"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/camprent/services/booking-service/internal/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, cfg.ServiceName, cfg.Config)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var (
		st     store.Store
		checks []runtime.ReadyCheck
	)
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("using in-memory storage; state is lost on restart")
		st = memstore.New()
	default:
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: cfg.DBMaxConns})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		if cfg.DBAutoMigrate {
			if err := storage.Migrate(ctx, pool, logger); err != nil {
				logger.Error("db migration failed", "err", err)
				os.Exit(1)
			}
		}

		outboxRepo := outbox.NewRepository()
		st = storage.New(pool, outboxRepo)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
		if len(kafkax.SplitBrokers(cfg.KafkaBrokers)) > 0 {
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
		}

		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: cfg.OutboxPollEvery,
			BatchSize: cfg.OutboxBatchSize,
		})
		go publisher.Run(ctx)
	}

	var limiter httpx.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMin, time.Minute, cfg.RateLimitPrefix)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimitPerMin, "redis_addr", cfg.RedisAddr)
	} else {
		limiter = httpx.NewMemoryRateLimiter(cfg.RateLimitPerMin, time.Minute)
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimitPerMin)
	}

	var hosted *payment.HostedGateway
	if cfg.HostedBaseURL != "" {
		hosted = payment.NewHostedGateway(payment.HostedConfig{
			BaseURL:      cfg.HostedBaseURL,
			MerchantCode: cfg.HostedMerchant,
			Secret:       cfg.HostedSecret,
			ReturnURL:    cfg.HostedReturnURL,
			TTL:          cfg.HostedTTL,
		})
	}
	var stripeGW *payment.StripeGateway
	if cfg.StripeSecretKey != "" {
		stripeGW = payment.NewStripeGateway(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			SuccessURL:    cfg.StripeSuccessURL,
			CancelURL:     cfg.StripeCancelURL,
			TTL:           cfg.StripeTTL,

			BreakerFailures: cfg.StripeBreakerFails,
			BreakerCooldown: cfg.StripeBreakerWait,
			Logger:          logger,
		})
	}
	if hosted == nil && stripeGW == nil {
		logger.Warn("no payment gateway configured; payment initiation will be rejected")
	}

	var jwks *auth.JWKSClient
	if cfg.JWKSURL != "" {
		jwks = auth.NewJWKSClient(cfg.JWKSURL, cfg.JWKSTTL)
	}
	verifier := auth.NewVerifier(cfg.JWTSecret, jwks, cfg.JWTIssuer)

	h := handlers.New(
		booking.NewService(st, logger),
		payment.NewService(st, logger, cfg.Currency, hosted, stripeGW),
		staffing.NewScheduler(st, logger),
		logger,
	)

	mux := runtime.NewBaseMuxWithReady(checks...)
	h.Register(mux, handlers.Guards{
		Public: httpx.RateLimit(limiter, logger, cfg.RateLimitFailOpen),
		Auth:   auth.RequireAuth(verifier),
	})

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: httpx.SplitList(cfg.CORSAllowedOrigins),
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
}
