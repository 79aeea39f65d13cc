package mailjobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/gobarber/gobarber/services/booking-service/internal/email"
	"github.com/gobarber/gobarber/services/booking-service/internal/model"
	"github.com/gobarber/gobarber/services/booking-service/internal/notification"
)

type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CancellationPayload snapshots the appointment and both parties at cancel time.
type CancellationPayload struct {
	AppointmentID string    `json:"appointment_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	CancelledAt   time.Time `json:"cancelled_at"`
	Provider      Party     `json:"provider"`
	Requester     Party     `json:"requester"`
}

func partyFrom(p model.Party) Party {
	return Party{ID: p.ID, Name: p.Name, Email: p.Email}
}

// NewCancellationJob builds the single CancellationMail job for a cancelled appointment.
func NewCancellationJob(appt model.Appointment, provider, requester model.Party) (Job, error) {
	if appt.CancelledAt == nil {
		return Job{}, fmt.Errorf("appointment %s is not cancelled", appt.ID)
	}
	payload, err := json.Marshal(CancellationPayload{
		AppointmentID: appt.ID,
		ScheduledAt:   appt.ScheduledAt.UTC(),
		CancelledAt:   appt.CancelledAt.UTC(),
		Provider:      partyFrom(provider),
		Requester:     partyFrom(requester),
	})
	if err != nil {
		return Job{}, err
	}
	return Job{
		Kind:           KindCancellationMail,
		IdempotencyKey: KindCancellationMail + ":" + appt.ID,
		Payload:        payload,
	}, nil
}

// CancellationMailHandler mails both parties. A party without an email
// address is skipped; a failed send fails the whole job so it is retried.
func CancellationMailHandler(sender email.Sender, formatter notification.Formatter) Handler {
	return func(ctx context.Context, job Job) error {
		var p CancellationPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return backoff.Permanent(fmt.Errorf("decode cancellation payload: %w", err))
		}

		var errs []error
		for _, m := range []struct{ to, other Party }{
			{p.Provider, p.Requester},
			{p.Requester, p.Provider},
		} {
			if m.to.Email == "" {
				continue
			}
			err := sender.Send(ctx, email.Message{
				ToName:  m.to.Name,
				ToEmail: m.to.Email,
				Subject: notification.CancellationSubject(),
				Body:    notification.CancellationBody(m.to.Name, m.other.Name, p.ScheduledAt, formatter),
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("send to %s: %w", m.to.ID, err))
			}
		}
		return errors.Join(errs...)
	}
}
