// Package config loads the booking service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/gobarber/gobarber/libs/config"
	"github.com/gobarber/gobarber/libs/kafkax"
	"github.com/gobarber/gobarber/services/booking-service/internal/mailjobs"
)

type Config struct {
	ServiceName     string
	Port            string
	GRPCPort        string
	LogLevel        string
	DatabaseURL     string
	DBMaxConns      int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	JWTSecret  string
	JWKSURL    string
	JWKSTTL    time.Duration
	SessionTTL time.Duration
	RateLimit  int
	RedisAddr  string
	RedisPass  string
	RedisDB    int
	UserTTL    time.Duration
	Locale     string
	KafkaAddrs []string

	OutboxPollInterval time.Duration
	MailPollInterval   time.Duration
	MailBatchSize      int
	MailRetry          mailjobs.RetryPolicy

	SMTPHost string
	SMTPPort string
	SMTPFrom string
}

// Load reads the API server settings, collecting all malformed values into
// one error.
func Load() (Config, error) {
	return load(true)
}

// LoadWorker reads the settings of the mail worker, which serves no API and
// needs no token verification.
func LoadWorker() (Config, error) {
	return load(false)
}

func load(api bool) (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		ServiceName: config.String("SERVICE_NAME", "booking-service"),
		LogLevel:    config.String("LOG_LEVEL", "info"),
		CORSOrigins: config.List("CORS_ALLOWED_ORIGINS"),
		JWTSecret:   config.String("JWT_SECRET", ""),
		JWKSURL:     config.String("JWKS_URL", ""),
		RedisAddr:   config.String("REDIS_ADDR", ""),
		RedisPass:   config.String("REDIS_PASSWORD", ""),
		Locale:      config.String("NOTIFICATION_LOCALE", "pt_BR"),
		KafkaAddrs:  kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")),
		SMTPHost:    config.String("SMTP_HOST", "localhost"),
		SMTPFrom:    config.String("SMTP_FROM", ""),
	}

	var err error
	cfg.Port, err = config.Port("PORT", "8083")
	collect(err)
	cfg.GRPCPort, err = config.Port("GRPC_PORT", "9093")
	collect(err)
	cfg.SMTPPort, err = config.Port("SMTP_PORT", "1025")
	collect(err)
	cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL")
	collect(err)
	cfg.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10)
	collect(err)
	cfg.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.ShutdownTimeout, err = config.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.JWKSTTL, err = config.Duration("JWKS_CACHE_TTL", 5*time.Minute)
	collect(err)
	cfg.SessionTTL, err = config.Duration("SESSION_TTL", 24*time.Hour)
	collect(err)
	cfg.RateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 120)
	collect(err)
	cfg.RedisDB, err = config.Int("REDIS_DB", 0)
	collect(err)
	cfg.UserTTL, err = config.Duration("USER_CACHE_TTL", 10*time.Minute)
	collect(err)
	cfg.OutboxPollInterval, err = config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	collect(err)
	cfg.MailPollInterval, err = config.Duration("MAIL_POLL_INTERVAL", 2*time.Second)
	collect(err)
	cfg.MailBatchSize, err = config.Int("MAIL_BATCH_SIZE", 20)
	collect(err)

	cfg.MailRetry = mailjobs.DefaultRetryPolicy()
	cfg.MailRetry.Initial, err = config.Duration("MAIL_BACKOFF", cfg.MailRetry.Initial)
	collect(err)
	cfg.MailRetry.MaxAttempts, err = config.Int("MAIL_MAX_ATTEMPTS", cfg.MailRetry.MaxAttempts)
	collect(err)

	if api && cfg.JWTSecret == "" && cfg.JWKSURL == "" {
		errs = append(errs, errors.New("one of JWT_SECRET or JWKS_URL is required"))
	}
	if cfg.MailRetry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("MAIL_MAX_ATTEMPTS must be at least 1 (got %d)", cfg.MailRetry.MaxAttempts))
	}
	if cfg.DBMaxConns < 1 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS must be at least 1 (got %d)", cfg.DBMaxConns))
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}
