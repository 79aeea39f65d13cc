// Package clock holds the time rules of the booking lifecycle. All instants
// are compared in UTC.
package clock

import "time"

const (
	// LeadTime is how far ahead of now a slot must start to be bookable.
	LeadTime time.Duration = 0
	// CancellationWindow is the minimum notice, strictly exceeded, for a cancel.
	CancellationWindow = 2 * time.Hour
)

type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always reports the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f).UTC() }

// Func adapts a function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f().UTC() }

// TruncateToHour returns the start of the UTC hour containing t.
func TruncateToHour(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), 0, 0, 0, time.UTC)
}

func IsBefore(a, b time.Time) bool {
	return a.Before(b)
}

// IsPastSlot reports whether slot starts earlier than now plus the lead time.
func IsPastSlot(slot, now time.Time) bool {
	return IsBefore(slot, now.Add(LeadTime))
}

// CanCancel reports whether now is more than CancellationWindow before scheduledAt.
func CanCancel(now, scheduledAt time.Time) bool {
	return now.Add(CancellationWindow).Before(scheduledAt)
}
