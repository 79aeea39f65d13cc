package mailjobs

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy spaces retries of a failed job exponentially.
type RetryPolicy struct {
	Initial     time.Duration
	Max         time.Duration
	Jitter      float64
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Initial: 30 * time.Second, Max: 30 * time.Minute, Jitter: 0.2, MaxAttempts: 5}
}

// Delay is the wait before retry number attempts (1-based).
func (p RetryPolicy) Delay(attempts int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Initial,
		RandomizationFactor: p.Jitter,
		Multiplier:          2,
		MaxInterval:         p.Max,
	}
	b.Reset()
	d := p.Initial
	for i := 0; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Outcome is how a job row changes after one run.
type Outcome struct {
	Attempts  int
	Status    Status
	NextRunAt time.Time
	LastError string
}

// Settle decides the next state of a job whose handler returned err. Errors
// wrapped with backoff.Permanent fail the job without further retries.
func (p RetryPolicy) Settle(job Job, err error, now time.Time) Outcome {
	if err == nil {
		return Outcome{Attempts: job.Attempts + 1, Status: StatusProcessed, NextRunAt: now}
	}
	out := Outcome{Attempts: job.Attempts + 1, Status: StatusPending, LastError: err.Error()}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = p.MaxAttempts
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) || out.Attempts >= maxAttempts {
		out.Status = StatusFailed
		out.NextRunAt = now
		return out
	}
	out.NextRunAt = now.Add(p.Delay(out.Attempts))
	return out
}
