package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelIsTerminal(t *testing.T) {
	appt := Appointment{ID: "a1", Status: StatusActive, ScheduledAt: time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)}
	at := time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)

	require.NoError(t, appt.Cancel(at))
	assert.Equal(t, StatusCancelled, appt.Status)
	require.NotNil(t, appt.CancelledAt)
	assert.Equal(t, at, *appt.CancelledAt)

	assert.ErrorIs(t, appt.Cancel(at.Add(time.Minute)), ErrAlreadyCancelled)
	assert.Equal(t, at, *appt.CancelledAt, "second cancel must not move cancelled_at")
}

func TestCancelRejectsUnknownStatus(t *testing.T) {
	appt := Appointment{ID: "a1", Status: "pending"}
	err := appt.Cancel(time.Now())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyCancelled)
}

func TestDerivedFlags(t *testing.T) {
	scheduled := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	appt := Appointment{Status: StatusActive, ScheduledAt: scheduled}

	assert.False(t, appt.IsPast(scheduled.Add(-time.Minute)))
	assert.True(t, appt.IsPast(scheduled))
	assert.True(t, appt.IsCancelable(scheduled.Add(-3*time.Hour)))
	assert.False(t, appt.IsCancelable(scheduled.Add(-2*time.Hour)))

	appt.Status = StatusCancelled
	assert.False(t, appt.IsCancelable(scheduled.Add(-3*time.Hour)))
}
