package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gobarber/gobarber/libs/config"
	"github.com/gobarber/gobarber/libs/db"
	"github.com/gobarber/gobarber/libs/httpx"
	otelx "github.com/gobarber/gobarber/libs/otel"
	"github.com/gobarber/gobarber/libs/runtime"
	bookingconfig "github.com/gobarber/gobarber/services/booking-service/internal/config"
	"github.com/gobarber/gobarber/services/booking-service/internal/email"
	"github.com/gobarber/gobarber/services/booking-service/internal/mailjobs"
	"github.com/gobarber/gobarber/services/booking-service/internal/notification"
	"github.com/gobarber/gobarber/services/booking-service/internal/outbox"
)

func main() {
	service := config.String("SERVICE_NAME", "mail-worker")
	cfg, err := bookingconfig.LoadWorker()
	if err != nil {
		runtime.NewLogger(service).Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	port, err := config.Port("WORKER_PORT", "8093")
	if err != nil {
		runtime.NewLogger(service).Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLoggerWithLevel(service, cfg.LogLevel)

	ctx, stop := runtime.ShutdownContext(context.Background(), logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
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

	worker := mailjobs.NewWorker(pool, mailjobs.NewRepository(cfg.MailRetry.MaxAttempts), outbox.NewRepository(), logger, mailjobs.WorkerConfig{
		Interval:  cfg.MailPollInterval,
		BatchSize: cfg.MailBatchSize,
		Retry:     cfg.MailRetry,
	})
	sender := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	worker.Register(mailjobs.KindCancellationMail, mailjobs.CancellationMailHandler(sender, formatter))
	go worker.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(httpx.Chain(mux, httpx.WithRequestID, httpx.WithAccessLog(logger)), "mail-worker"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("mail worker stopped")
}
