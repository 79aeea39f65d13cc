// Package booking implements the appointment lifecycle: create, cancel and list.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gobarber/gobarber/services/booking-service/internal/availability"
	"github.com/gobarber/gobarber/services/booking-service/internal/clock"
	"github.com/gobarber/gobarber/services/booking-service/internal/mailjobs"
	"github.com/gobarber/gobarber/services/booking-service/internal/model"
	"github.com/gobarber/gobarber/services/booking-service/internal/notification"
	"github.com/gobarber/gobarber/services/booking-service/internal/outbox"
	"github.com/gobarber/gobarber/services/booking-service/internal/store"
)

const PageSize = 20

// Directory resolves users. GetUser returns store.ErrNotFound for unknown ids.
type Directory interface {
	IsProvider(ctx context.Context, id string) (bool, error)
	GetUser(ctx context.Context, id string) (model.User, error)
}

type CreateInput struct {
	RequesterID string
	ProviderID  string
	Date        time.Time
}

type Service struct {
	store     store.BookingStore
	directory Directory
	clock     clock.Clock
	formatter notification.Formatter
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewService(st store.BookingStore, dir Directory, clk clock.Clock, formatter notification.Formatter, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		store:     st,
		directory: dir,
		clock:     clk,
		formatter: formatter,
		logger:    logger.With("component", "booking"),
		tracer:    otel.Tracer("booking"),
	}
}

// Create books the hour slot containing in.Date with a provider. On success
// the appointment, the provider's notification and the booked event are
// committed together.
func (s *Service) Create(ctx context.Context, in CreateInput) (appt model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.Create")
	defer func() { s.endSpan(span, err) }()

	requesterID := normalizeID(in.RequesterID)
	providerID := normalizeID(in.ProviderID)
	switch {
	case requesterID == "":
		return model.Appointment{}, invalid("requester_id", "is required")
	case providerID == "":
		return model.Appointment{}, invalid("provider_id", "is required")
	case !isUUID(providerID):
		return model.Appointment{}, invalid("provider_id", "must be a UUID")
	case in.Date.IsZero():
		return model.Appointment{}, invalid("date", "is required")
	}
	span.SetAttributes(attribute.String("booking.provider_id", providerID))

	isProvider, err := s.directory.IsProvider(ctx, providerID)
	if err != nil {
		return model.Appointment{}, dependency("provider lookup", err)
	}
	if !isProvider {
		return model.Appointment{}, ErrInvalidProvider
	}

	slot := clock.TruncateToHour(in.Date)
	now := s.clock.Now()
	if clock.IsPastSlot(slot, now) {
		return model.Appointment{}, ErrPastDate
	}

	requester, err := s.directory.GetUser(ctx, requesterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Appointment{}, ErrInvalidRequester
		}
		return model.Appointment{}, dependency("requester lookup", err)
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
		free, err := availability.NewChecker(tx).IsAvailable(ctx, providerID, slot)
		if err != nil {
			return err
		}
		if !free {
			return ErrSlotUnavailable
		}

		created, err := tx.InsertAppointment(ctx, model.Appointment{
			RequesterID: requesterID,
			ProviderID:  providerID,
			ScheduledAt: slot,
			Status:      model.StatusActive,
		})
		if err != nil {
			return err
		}

		if err := tx.AppendNotification(ctx, model.Notification{
			UserID:  providerID,
			Content: notification.BookingContent(requester.Name, created.ScheduledAt, s.formatter),
		}); err != nil {
			return err
		}

		evt, err := appointmentOutboxEvent(outbox.EventAppointmentBooked, created, now)
		if err != nil {
			return err
		}
		if err := tx.AppendOutboxEvent(ctx, evt); err != nil {
			return err
		}
		appt = created
		return nil
	})
	if err != nil {
		return model.Appointment{}, s.translate("create appointment", err)
	}

	s.logger.InfoContext(ctx, "appointment booked",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"scheduled_at", appt.ScheduledAt,
	)
	return appt, nil
}

// Cancel cancels an active appointment on behalf of its requester and queues
// the cancellation email in the same transaction.
func (s *Service) Cancel(ctx context.Context, callerID, appointmentID string) (appt model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.Cancel", trace.WithAttributes(attribute.String("booking.appointment_id", appointmentID)))
	defer func() { s.endSpan(span, err) }()

	appointmentID = normalizeID(appointmentID)
	if !isUUID(appointmentID) {
		return model.Appointment{}, ErrNotFound
	}
	callerID = normalizeID(callerID)

	err = s.store.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
		current, err := tx.GetAppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if current.RequesterID != callerID {
			return ErrUnauthorized
		}
		if !current.Active() {
			return ErrAlreadyCancelled
		}
		now := s.clock.Now()
		if !clock.CanCancel(now, current.ScheduledAt) {
			return ErrCancellationWindowExpired
		}
		if err := current.Cancel(now); err != nil {
			return err
		}
		if err := tx.UpdateCancellation(ctx, current); err != nil {
			return err
		}

		provider, err := s.party(ctx, current.ProviderID)
		if err != nil {
			return err
		}
		requester, err := s.party(ctx, current.RequesterID)
		if err != nil {
			return err
		}
		job, err := mailjobs.NewCancellationJob(current, provider, requester)
		if err != nil {
			return err
		}
		if err := tx.EnqueueMailJob(ctx, job); err != nil {
			return err
		}

		evt, err := appointmentOutboxEvent(outbox.EventAppointmentCancelled, current, now)
		if err != nil {
			return err
		}
		if err := tx.AppendOutboxEvent(ctx, evt); err != nil {
			return err
		}
		appt = current
		return nil
	})
	if err != nil {
		return model.Appointment{}, s.translate("cancel appointment", err)
	}

	s.logger.InfoContext(ctx, "appointment cancelled", "appointment_id", appt.ID, "scheduled_at", appt.ScheduledAt)
	return appt, nil
}

// List returns one page of the requester's active appointments, earliest first.
func (s *Service) List(ctx context.Context, requesterID string, page int) (views []model.AppointmentView, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.List")
	defer func() { s.endSpan(span, err) }()

	requesterID = normalizeID(requesterID)
	if requesterID == "" {
		return nil, invalid("requester_id", "is required")
	}
	if page < 1 {
		page = 1
	}

	views, err = s.store.ListActiveByRequester(ctx, requesterID, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, s.translate("list appointments", err)
	}
	now := s.clock.Now()
	for i := range views {
		views[i].Past = views[i].IsPast(now)
		views[i].Cancelable = views[i].IsCancelable(now)
	}
	return views, nil
}

// DayAvailability lists the provider's working-hour slots on day.
func (s *Service) DayAvailability(ctx context.Context, providerID string, day time.Time) (slots []availability.Slot, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.DayAvailability")
	defer func() { s.endSpan(span, err) }()

	providerID = normalizeID(providerID)
	if !isUUID(providerID) {
		return nil, invalid("provider_id", "must be a UUID")
	}
	isProvider, err := s.directory.IsProvider(ctx, providerID)
	if err != nil {
		return nil, dependency("provider lookup", err)
	}
	if !isProvider {
		return nil, ErrInvalidProvider
	}

	d := day.UTC()
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	booked, err := s.store.ListProviderSlots(ctx, providerID, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, s.translate("list provider slots", err)
	}
	return availability.DaySlots(from, booked, s.clock.Now()), nil
}

// party resolves a user for the mail payload. A user missing from the
// directory is kept with its id only and receives no email.
func (s *Service) party(ctx context.Context, id string) (model.Party, error) {
	u, err := s.directory.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.WarnContext(ctx, "appointment party missing from directory", "user_id", id)
		return model.Party{ID: id}, nil
	}
	if err != nil {
		return model.Party{}, dependency("party lookup", err)
	}
	return u.Party(), nil
}

// translate maps storage outcomes to lifecycle errors. Anything unexpected
// becomes ErrDependencyFailure.
func (s *Service) translate(op string, err error) error {
	switch {
	case isDomainError(err):
		return err
	case errors.Is(err, store.ErrConflict):
		return ErrSlotUnavailable
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	default:
		return dependency(op, err)
	}
}

func (s *Service) endSpan(span trace.Span, err error) {
	if err != nil && errors.Is(err, ErrDependencyFailure) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// normalizeID trims ids and puts UUIDs in canonical lower-case form.
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
