package mailjobs

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

const KindCancellationMail = "CancellationMail"

// Job is a durable deferred-mail job. IdempotencyKey makes enqueueing the
// same logical job twice a no-op.
type Job struct {
	ID             int64
	Kind           string
	IdempotencyKey string
	Payload        []byte
	Traceparent    string
	Tracestate     string
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
	CreatedAt      time.Time
}
