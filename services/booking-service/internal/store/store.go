// Package store declares the persistence seam of the booking lifecycle.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/gobarber/gobarber/services/booking-service/internal/mailjobs"
	"github.com/gobarber/gobarber/services/booking-service/internal/model"
	"github.com/gobarber/gobarber/services/booking-service/internal/outbox"
)

var (
	// ErrConflict reports a uniqueness violation, such as a second active
	// appointment for the same provider slot.
	ErrConflict = errors.New("store: conflict")
	ErrNotFound = errors.New("store: not found")
)

// BookingTx is one storage transaction. Every write made through it commits
// or rolls back together.
type BookingTx interface {
	HasActiveAppointment(ctx context.Context, providerID string, slot time.Time) (bool, error)
	InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	// GetAppointmentForUpdate locks the row until the transaction ends.
	GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	UpdateCancellation(ctx context.Context, appt model.Appointment) error
	AppendNotification(ctx context.Context, n model.Notification) error
	EnqueueMailJob(ctx context.Context, job mailjobs.Job) error
	AppendOutboxEvent(ctx context.Context, evt outbox.Event) error
}

type BookingStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx BookingTx) error) error
	// ListActiveByRequester returns active appointments ordered by ScheduledAt.
	ListActiveByRequester(ctx context.Context, requesterID string, limit, offset int) ([]model.AppointmentView, error)
	// ListProviderSlots returns the start of every active appointment of the
	// provider in [from, to).
	ListProviderSlots(ctx context.Context, providerID string, from, to time.Time) ([]time.Time, error)
}

// UserStore is the directory backing store.
type UserStore interface {
	GetUser(ctx context.Context, id string) (model.User, error)
}
