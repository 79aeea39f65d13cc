package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gobarber/gobarber/libs/db"
	"github.com/gobarber/gobarber/services/booking-service/internal/mailjobs"
	"github.com/gobarber/gobarber/services/booking-service/internal/model"
	"github.com/gobarber/gobarber/services/booking-service/internal/outbox"
	"github.com/gobarber/gobarber/services/booking-service/internal/store"
)

type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	jobs   *mailjobs.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository, jobsRepo *mailjobs.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo, jobs: jobsRepo}
}

var _ store.BookingStore = (*BookingRepository)(nil)

func (r *BookingRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &bookingTx{tx: tx, repo: r})
	})
}

func (r *BookingRepository) ListActiveByRequester(ctx context.Context, requesterID string, limit, offset int) ([]model.AppointmentView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id::text, a.requester_id::text, a.provider_id::text, a.scheduled_at, a.status, a.cancelled_at, a.created_at,
			u.name, u.email
		FROM appointments a
		JOIN users u ON u.id = a.provider_id
		WHERE a.requester_id = $1 AND a.status = 'active'
		ORDER BY a.scheduled_at ASC
		LIMIT $2 OFFSET $3
	`, requesterID, limit, offset)
	if err != nil {
		if IsNotFound(err) {
			return []model.AppointmentView{}, nil
		}
		return nil, mapError("list appointments", err)
	}
	defer rows.Close()

	views := []model.AppointmentView{}
	for rows.Next() {
		var v model.AppointmentView
		var status string
		if err := rows.Scan(
			&v.ID,
			&v.RequesterID,
			&v.ProviderID,
			&v.ScheduledAt,
			&status,
			&v.CancelledAt,
			&v.CreatedAt,
			&v.Provider.Name,
			&v.Provider.Email,
		); err != nil {
			return nil, mapError("scan appointment", err)
		}
		v.Status = model.Status(status)
		v.ScheduledAt = v.ScheduledAt.UTC()
		v.Provider.ID = v.ProviderID
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		if IsNotFound(err) {
			return []model.AppointmentView{}, nil
		}
		return nil, mapError("list appointments", err)
	}
	return views, nil
}

func (r *BookingRepository) ListProviderSlots(ctx context.Context, providerID string, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_at
		FROM appointments
		WHERE provider_id = $1 AND status = 'active' AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at ASC
	`, providerID, from, to)
	if err != nil {
		return nil, mapError("list provider slots", err)
	}
	defer rows.Close()

	var slots []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, mapError("scan provider slot", err)
		}
		slots = append(slots, t.UTC())
	}
	return slots, mapError("list provider slots", rows.Err())
}

type bookingTx struct {
	tx   pgx.Tx
	repo *BookingRepository
}

func (t *bookingTx) HasActiveAppointment(ctx context.Context, providerID string, slot time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE provider_id = $1 AND scheduled_at = $2 AND status = 'active'
		)
	`, providerID, slot).Scan(&exists)
	return exists, mapError("check slot", err)
}

func (t *bookingTx) InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (requester_id, provider_id, scheduled_at, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, created_at
	`, appt.RequesterID, appt.ProviderID, appt.ScheduledAt.UTC(), string(appt.Status)).Scan(&appt.ID, &appt.CreatedAt)
	if err != nil {
		return model.Appointment{}, mapError("insert appointment", err)
	}
	return appt, nil
}

func (t *bookingTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, requester_id::text, provider_id::text, scheduled_at, status, cancelled_at, created_at
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&appt.ID,
		&appt.RequesterID,
		&appt.ProviderID,
		&appt.ScheduledAt,
		&status,
		&appt.CancelledAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, mapError("load appointment", err)
	}
	appt.Status = model.Status(status)
	appt.ScheduledAt = appt.ScheduledAt.UTC()
	return appt, nil
}

func (t *bookingTx) UpdateCancellation(ctx context.Context, appt model.Appointment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			cancelled_at = $3
		WHERE id = $1
	`, appt.ID, string(appt.Status), appt.CancelledAt)
	if err != nil {
		return mapError("cancel appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return mapError("cancel appointment", pgx.ErrNoRows)
	}
	return nil
}

func (t *bookingTx) AppendNotification(ctx context.Context, n model.Notification) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO notifications (user_id, content, read)
		VALUES ($1, $2, $3)
	`, n.UserID, n.Content, n.Read)
	return mapError("append notification", err)
}

func (t *bookingTx) EnqueueMailJob(ctx context.Context, job mailjobs.Job) error {
	return mapError("enqueue mail job", t.repo.jobs.Insert(ctx, t.tx, job))
}

func (t *bookingTx) AppendOutboxEvent(ctx context.Context, evt outbox.Event) error {
	return mapError("append outbox event", t.repo.outbox.Insert(ctx, t.tx, evt))
}
