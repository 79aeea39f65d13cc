package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/gobarber/gobarber/services/booking-service/internal/clock"
)

// Lookup answers whether a provider already holds an active appointment at slot.
type Lookup interface {
	HasActiveAppointment(ctx context.Context, providerID string, slot time.Time) (bool, error)
}

// Checker decides whether a provider's slot is still free. It is advisory;
// the storage uniqueness rule is what closes concurrent bookings.
type Checker struct {
	lookup Lookup
}

func NewChecker(lookup Lookup) *Checker {
	return &Checker{lookup: lookup}
}

func (c *Checker) IsAvailable(ctx context.Context, providerID string, slot time.Time) (bool, error) {
	taken, err := c.lookup.HasActiveAppointment(ctx, providerID, clock.TruncateToHour(slot))
	if err != nil {
		return false, fmt.Errorf("availability lookup: %w", err)
	}
	return !taken, nil
}
