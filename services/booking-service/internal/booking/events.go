package booking

import (
	"encoding/json"
	"time"

	"github.com/gobarber/gobarber/services/booking-service/internal/model"
	"github.com/gobarber/gobarber/services/booking-service/internal/outbox"
)

type appointmentEvent struct {
	AppointmentID string     `json:"appointment_id"`
	RequesterID   string     `json:"requester_id"`
	ProviderID    string     `json:"provider_id"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	Status        string     `json:"status"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

func appointmentOutboxEvent(eventType string, appt model.Appointment, at time.Time) (outbox.Event, error) {
	payload, err := json.Marshal(appointmentEvent{
		AppointmentID: appt.ID,
		RequesterID:   appt.RequesterID,
		ProviderID:    appt.ProviderID,
		ScheduledAt:   appt.ScheduledAt.UTC(),
		Status:        string(appt.Status),
		CancelledAt:   appt.CancelledAt,
		OccurredAt:    at.UTC(),
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: outbox.AggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
