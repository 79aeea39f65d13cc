package outbox

import (
	"context"
	"testing"

	"github.com/gobarber/gobarber/libs/kafkax"
)

func TestMessageFromRecord(t *testing.T) {
	rec := Record{
		ID:          7,
		EventID:     "4f6c3e2a-0f8e-4a55-8f0b-5a7c5a3f4b10",
		AggregateID: "appt-1",
		EventType:   EventAppointmentCancelled,
		Payload:     []byte(`{"appointment_id":"appt-1"}`),
		Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}

	msg := Message(context.Background(), rec)

	if msg.Topic != EventAppointmentCancelled {
		t.Fatalf("unexpected topic %q", msg.Topic)
	}
	if string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	if kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID) != rec.EventID {
		t.Fatalf("event_id header missing: %v", msg.Headers)
	}
	if kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventType) != EventAppointmentCancelled {
		t.Fatalf("event_type header missing: %v", msg.Headers)
	}
}
