package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gobarber/gobarber/libs/auth"
	"github.com/gobarber/gobarber/libs/db"
	"github.com/gobarber/gobarber/libs/httpx"
	"github.com/gobarber/gobarber/libs/kafkax"
	otelx "github.com/gobarber/gobarber/libs/otel"
	"github.com/gobarber/gobarber/libs/runtime"
	"github.com/gobarber/gobarber/services/booking-service/internal/booking"
	"github.com/gobarber/gobarber/services/booking-service/internal/clock"
	"github.com/gobarber/gobarber/services/booking-service/internal/config"
	"github.com/gobarber/gobarber/services/booking-service/internal/directory"
	"github.com/gobarber/gobarber/services/booking-service/internal/grpcserver"
	"github.com/gobarber/gobarber/services/booking-service/internal/handlers"
	"github.com/gobarber/gobarber/services/booking-service/internal/identity"
	"github.com/gobarber/gobarber/services/booking-service/internal/mailjobs"
	"github.com/gobarber/gobarber/services/booking-service/internal/notification"
	"github.com/gobarber/gobarber/services/booking-service/internal/outbox"
	"github.com/gobarber/gobarber/services/booking-service/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		runtime.NewLogger("booking-service").Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLoggerWithLevel(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.ShutdownContext(context.Background(), logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	formatter, err := notification.NewFormatter(cfg.Locale)
	if err != nil {
		logger.Error("notification formatter init failed", "err", err)
		os.Exit(1)
	}

	outboxRepo := outbox.NewRepository()
	jobsRepo := mailjobs.NewRepository(cfg.MailRetry.MaxAttempts)
	bookingRepo := postgres.NewBookingRepository(pool, outboxRepo, jobsRepo)
	users := postgres.NewUserRepository(pool)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var dir booking.Directory = users
	var profiles *directory.CachedDirectory
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		profiles = directory.NewCachedDirectory(users, rdb, cfg.UserTTL, logger)
		dir = profiles
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	var writer outbox.MessageWriter
	if len(cfg.KafkaAddrs) > 0 {
		kw := kafkax.NewWriter(cfg.KafkaAddrs)
		defer func() { _ = kw.Close() }()
		writer = kw
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaAddrs)})
	}
	publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{
		PollEvery: cfg.OutboxPollInterval,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	svc := booking.NewService(bookingRepo, dir, clock.System{}, formatter, logger)

	verifier := &auth.Verifier{Secret: cfg.JWTSecret}
	if cfg.JWKSURL != "" {
		verifier.JWKS = auth.NewJWKSClient(cfg.JWKSURL, cfg.JWKSTTL)
	}

	ids := identity.NewService(users, clock.System{}, identity.Config{Secret: cfg.JWTSecret, SessionTTL: cfg.SessionTTL}, logger)
	if profiles != nil {
		ids.WithProfileCache(profiles)
	}
	idHandler := handlers.NewIdentityHandler(ids, logger)

	limit := rateLimit(cfg, rdb, logger)
	public := http.NewServeMux()
	idHandler.Register(public)
	publicHandler := httpx.Chain(public,
		limit,
		httpx.WithBodyLimit(16<<10),
		httpx.WithTimeout(cfg.RequestTimeout),
	)

	api := http.NewServeMux()
	handlers.NewAppointmentHandler(svc, logger).Register(api)
	idHandler.RegisterAuthenticated(api)
	apiHandler := httpx.Chain(api,
		auth.RequireUser(verifier, logger),
		limit,
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(cfg.RequestTimeout),
	)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("POST /api/v1/users", publicHandler)
	mux.Handle("POST /api/v1/sessions", publicHandler)
	mux.Handle("/api/", apiHandler)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(cfg.CORSOrigins),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		os.Exit(1)
	}
	grpcSrv := grpcserver.New(logger, checks...)
	go func() {
		if err := grpcSrv.Serve(ctx, lis, 10*time.Second); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// rateLimit shares counters through redis when it is configured and keeps
// them in process otherwise.
func rateLimit(cfg config.Config, rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	if rdb != nil {
		return httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, time.Minute, "gobarber:rl", auth.UserKey).Middleware(logger, true)
	}
	return httpx.NewRateLimiter(cfg.RateLimit, time.Minute, auth.UserKey).Middleware()
}
