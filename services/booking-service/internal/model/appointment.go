package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/gobarber/gobarber/services/booking-service/internal/clock"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

var ErrAlreadyCancelled = errors.New("appointment is already cancelled")

type Appointment struct {
	ID          string
	RequesterID string
	ProviderID  string
	ScheduledAt time.Time
	Status      Status
	CancelledAt *time.Time
	CreatedAt   time.Time
}

func (a Appointment) Active() bool {
	return a.Status == StatusActive
}

// IsPast reports whether the slot has already started.
func (a Appointment) IsPast(now time.Time) bool {
	return !a.ScheduledAt.After(now)
}

func (a Appointment) IsCancelable(now time.Time) bool {
	return a.Active() && clock.CanCancel(now, a.ScheduledAt)
}

// Cancel moves an active appointment to cancelled. Cancellation is terminal.
func (a *Appointment) Cancel(at time.Time) error {
	switch a.Status {
	case StatusActive:
		ts := at.UTC()
		a.Status = StatusCancelled
		a.CancelledAt = &ts
		return nil
	case StatusCancelled:
		return ErrAlreadyCancelled
	default:
		return fmt.Errorf("appointment %s has unknown status %q", a.ID, a.Status)
	}
}

// Party is the public profile of a user attached to an appointment.
type Party struct {
	ID    string
	Name  string
	Email string
}

// AppointmentView is an appointment as listed to its requester.
type AppointmentView struct {
	Appointment
	Provider   Party
	Past       bool
	Cancelable bool
}
