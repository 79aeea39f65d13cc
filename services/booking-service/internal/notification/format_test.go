package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingContentPtBR(t *testing.T) {
	f, err := NewFormatter("pt_BR")
	require.NoError(t, err)

	got := BookingContent("Ana", time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC), f)

	assert.Equal(t, "New booking from Ana for dia 10 de maio, às 14:00h", got)
}

func TestBookingContentEnUS(t *testing.T) {
	f, err := NewFormatter("en_US")
	require.NoError(t, err)

	got := BookingContent("Ana", time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC), f)

	assert.Equal(t, "New booking from Ana for May 10 at 2:00 PM", got)
}

func TestFormatterUsesUTC(t *testing.T) {
	f, err := NewFormatter("en_US")
	require.NoError(t, err)

	local := time.Date(2026, 5, 10, 11, 0, 0, 0, time.FixedZone("BRT", -3*60*60))
	assert.Equal(t, "May 10 at 2:00 PM", f.FormatSlot(local))
}

func TestNewFormatterRejectsUnknownLocale(t *testing.T) {
	_, err := NewFormatter("xx_XX")
	assert.Error(t, err)
}

func TestCancellationBody(t *testing.T) {
	f, err := NewFormatter("en_US")
	require.NoError(t, err)

	body := CancellationBody("Bruno", "Ana", time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC), f)

	assert.Contains(t, body, "Hello Bruno")
	assert.Contains(t, body, "with Ana for May 10 at 2:00 PM")
}
