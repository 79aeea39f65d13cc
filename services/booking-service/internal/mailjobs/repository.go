package mailjobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	otelx "github.com/gobarber/gobarber/libs/otel"
)

type Repository struct {
	maxAttempts int
}

func NewRepository(maxAttempts int) *Repository {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Repository{maxAttempts: maxAttempts}
}

// Insert enqueues job in tx. A job with an existing idempotency key is ignored.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, job Job) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.maxAttempts
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO mail_jobs (kind, idempotency_key, payload, max_attempts, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, job.Kind, job.IdempotencyKey, job.Payload, maxAttempts, traceparent, tracestate)
	return err
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, kind, idempotency_key, payload, traceparent, tracestate, attempts, max_attempts, next_run_at, created_at
		FROM mail_jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY next_run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Kind, &j.IdempotencyKey, &j.Payload, &j.Traceparent, &j.Tracestate, &j.Attempts, &j.MaxAttempts, &j.NextRunAt, &j.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE mail_jobs
		SET status = 'processed', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, status Status, nextRunAt time.Time, lastError string) error {
	_, err := tx.Exec(ctx, `
		UPDATE mail_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, string(status), nextRunAt, lastError)
	return err
}
