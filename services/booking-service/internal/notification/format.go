package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/goodsign/monday"
)

// Formatter renders appointment instants for humans.
type Formatter interface {
	FormatSlot(t time.Time) string
}

type localeLayout struct {
	locale monday.Locale
	layout string
}

var layouts = map[string]localeLayout{
	"pt_BR": {monday.LocalePtBR, "dia 02 de January, às 15:04h"},
	"en_US": {monday.LocaleEnUS, "January 2 at 3:04 PM"},
	"es_ES": {monday.LocaleEsES, "2 de January a las 15:04"},
}

// LocaleFormatter formats in UTC using month names of one locale.
type LocaleFormatter struct {
	locale monday.Locale
	layout string
}

// NewFormatter returns a formatter for locale (pt_BR, en_US or es_ES).
func NewFormatter(locale string) (*LocaleFormatter, error) {
	l, ok := layouts[strings.TrimSpace(locale)]
	if !ok {
		return nil, fmt.Errorf("unsupported notification locale %q", locale)
	}
	return &LocaleFormatter{locale: l.locale, layout: l.layout}, nil
}

func (f *LocaleFormatter) FormatSlot(t time.Time) string {
	return monday.Format(t.UTC(), f.layout, f.locale)
}

// BookingContent is the in-app message a provider receives for a new booking.
func BookingContent(requesterName string, slot time.Time, f Formatter) string {
	return fmt.Sprintf("New booking from %s for %s", requesterName, f.FormatSlot(slot))
}

// CancellationSubject and CancellationBody render the cancellation email.
func CancellationSubject() string {
	return "Appointment cancelled"
}

func CancellationBody(recipientName, otherName string, slot time.Time, f Formatter) string {
	return fmt.Sprintf("Hello %s,\n\nThe appointment with %s for %s has been cancelled.\n", recipientName, otherName, f.FormatSlot(slot))
}
