package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupFunc func(ctx context.Context, providerID string, slot time.Time) (bool, error)

func (f lookupFunc) HasActiveAppointment(ctx context.Context, providerID string, slot time.Time) (bool, error) {
	return f(ctx, providerID, slot)
}

func TestIsAvailableQueriesTruncatedSlot(t *testing.T) {
	var asked time.Time
	checker := NewChecker(lookupFunc(func(_ context.Context, _ string, slot time.Time) (bool, error) {
		asked = slot
		return true, nil
	}))

	ok, err := checker.IsAvailable(context.Background(), "p1", time.Date(2026, 5, 10, 14, 37, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC), asked)
}

func TestIsAvailablePropagatesLookupFailure(t *testing.T) {
	boom := errors.New("connection reset")
	checker := NewChecker(lookupFunc(func(context.Context, string, time.Time) (bool, error) {
		return false, boom
	}))

	ok, err := checker.IsAvailable(context.Background(), "p1", time.Now())

	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestDaySlots(t *testing.T) {
	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	now := day.Add(9*time.Hour + 30*time.Minute)
	booked := []time.Time{day.Add(11 * time.Hour)}

	slots := DaySlots(day, booked, now)

	require.Len(t, slots, ClosingHour-OpeningHour)
	assert.Equal(t, day.Add(8*time.Hour), slots[0].Start)
	assert.False(t, slots[0].Available, "08:00 already started")
	assert.False(t, slots[1].Available, "09:00 already started")
	assert.True(t, slots[2].Available, "10:00 is free")
	assert.False(t, slots[3].Available, "11:00 is booked")
	assert.Equal(t, day.Add(19*time.Hour), slots[len(slots)-1].Start)
}
