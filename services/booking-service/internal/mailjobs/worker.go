package mailjobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gobarber/gobarber/libs/db"
	otelx "github.com/gobarber/gobarber/libs/otel"
	"github.com/gobarber/gobarber/services/booking-service/internal/outbox"
)

// Handler runs one job. Returning an error schedules a retry.
type Handler func(ctx context.Context, job Job) error

// Worker drains due mail jobs. Each batch is claimed with FOR UPDATE SKIP
// LOCKED, so several workers can run against one table.
type Worker struct {
	pool      *db.Pool
	repo      *Repository
	outbox    *outbox.Repository
	handlers  map[string]Handler
	logger    *slog.Logger
	tracer    trace.Tracer
	interval  time.Duration
	batchSize int
	retry     RetryPolicy
	now       func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Retry     RetryPolicy
}

func NewWorker(pool *db.Pool, repo *Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Retry.Initial <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		outbox:    outboxRepo,
		handlers:  map[string]Handler{},
		logger:    logger.With("component", "mail_worker"),
		tracer:    otel.Tracer("mailjobs"),
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		retry:     cfg.Retry,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (w *Worker) Register(kind string, h Handler) {
	w.handlers[kind] = h
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("mail batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	return w.pool.InTx(ctx, func(tx pgx.Tx) error {
		jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
		if err != nil {
			return err
		}

		var done []int64
		for _, job := range jobs {
			jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
			runErr := w.run(jobCtx, job)
			if runErr == nil {
				done = append(done, job.ID)
				continue
			}

			out := w.retry.Settle(job, runErr, w.now())
			if err := w.repo.MarkFailed(ctx, tx, job.ID, out.Attempts, out.Status, out.NextRunAt, out.LastError); err != nil {
				return err
			}
			if out.Status == StatusFailed {
				w.logger.Error("mail job dead-lettered", "job_id", job.ID, "kind", job.Kind, "attempts", out.Attempts, "err", runErr)
				if err := w.enqueueDLQ(jobCtx, tx, job, out); err != nil {
					return err
				}
				continue
			}
			w.logger.Warn("mail job failed, will retry", "job_id", job.ID, "kind", job.Kind, "attempts", out.Attempts, "next_run_at", out.NextRunAt, "err", runErr)
		}
		return w.repo.MarkProcessed(ctx, tx, done)
	})
}

func (w *Worker) run(ctx context.Context, job Job) error {
	ctx, span := w.tracer.Start(ctx, "mailjobs.run", trace.WithAttributes(
		attribute.String("mail_job.kind", job.Kind),
		attribute.Int64("mail_job.id", job.ID),
	))
	defer span.End()

	h, ok := w.handlers[job.Kind]
	if !ok {
		err := backoff.Permanent(fmt.Errorf("no handler for job kind %q", job.Kind))
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := h(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (w *Worker) enqueueDLQ(ctx context.Context, tx pgx.Tx, job Job, out Outcome) error {
	payload, err := json.Marshal(map[string]any{
		"job_id":          job.ID,
		"kind":            job.Kind,
		"idempotency_key": job.IdempotencyKey,
		"payload":         json.RawMessage(job.Payload),
		"attempts":        out.Attempts,
		"error_reason":    out.LastError,
		"failed_at":       out.NextRunAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: outbox.AggregateMailJob,
		AggregateID:   job.IdempotencyKey,
		EventType:     outbox.EventMailDeadLettered,
		Payload:       payload,
	})
}
