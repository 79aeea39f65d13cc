package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gobarber/gobarber/libs/db"
	"github.com/gobarber/gobarber/services/booking-service/internal/booking"
	"github.com/gobarber/gobarber/services/booking-service/internal/clock"
	"github.com/gobarber/gobarber/services/booking-service/internal/identity"
	"github.com/gobarber/gobarber/services/booking-service/internal/mailjobs"
	"github.com/gobarber/gobarber/services/booking-service/internal/model"
	"github.com/gobarber/gobarber/services/booking-service/internal/notification"
	"github.com/gobarber/gobarber/services/booking-service/internal/outbox"
	"github.com/gobarber/gobarber/services/booking-service/internal/store"
)

const (
	requesterID = "0b0f6a52-6c55-4f7e-9a0e-1b7a3d0c9a01"
	providerID  = "5c2e8d1a-3f4b-4a6c-8e9d-2a1b3c4d5e02"
)

func TestPostgresIntegration_BookingLifecycle(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("BOOKING_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("BOOKING_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool := openTestSchema(ctx, t, databaseURL)
	if _, err := pool.Exec(ctx, `
		INSERT INTO users (id, name, email, provider) VALUES
			($1, 'Ana', 'ana@example.com', false),
			($2, 'Bruno', 'bruno@example.com', true)
	`, requesterID, providerID); err != nil {
		t.Fatalf("seed users: %v", err)
	}

	outboxRepo := outbox.NewRepository()
	jobsRepo := mailjobs.NewRepository(5)
	repo := NewBookingRepository(pool, outboxRepo, jobsRepo)
	users := NewUserRepository(pool)
	formatter, err := notification.NewFormatter("en_US")
	if err != nil {
		t.Fatalf("formatter: %v", err)
	}
	now := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	svc := booking.NewService(repo, users, clock.Fixed(now), formatter, slog.New(slog.NewTextHandler(io.Discard, nil)))

	appt, err := svc.Create(ctx, booking.CreateInput{RequesterID: requesterID, ProviderID: providerID, Date: now.Add(5*time.Hour + 37*time.Minute)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if want := now.Add(5 * time.Hour); !appt.ScheduledAt.Equal(want) {
		t.Fatalf("scheduled_at = %s, want %s", appt.ScheduledAt, want)
	}

	if _, err := svc.Create(ctx, booking.CreateInput{RequesterID: requesterID, ProviderID: providerID, Date: now.Add(5*time.Hour + 5*time.Minute)}); !errors.Is(err, booking.ErrSlotUnavailable) {
		t.Fatalf("second create err = %v, want ErrSlotUnavailable", err)
	}

	// Both writers skip the advisory check; the partial unique index decides.
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		conflicts int
	)
	slot := now.Add(7 * time.Hour)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.InTx(ctx, func(ctx context.Context, tx store.BookingTx) error {
				_, err := tx.InsertAppointment(ctx, bookingFor(slot))
				return err
			})
			if errors.Is(err, store.ErrConflict) {
				mu.Lock()
				conflicts++
				mu.Unlock()
			} else if err != nil {
				t.Errorf("insert: %v", err)
			}
		}()
	}
	wg.Wait()
	if conflicts != 1 {
		t.Fatalf("conflicts = %d, want 1", conflicts)
	}

	views, err := svc.List(ctx, requesterID, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 || views[0].ID != appt.ID || views[0].Provider.Name != "Bruno" {
		t.Fatalf("unexpected list: %+v", views)
	}

	cancelled, err := svc.Cancel(ctx, requesterID, appt.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.CancelledAt == nil {
		t.Fatalf("cancelled_at not set")
	}
	if _, err := svc.Cancel(ctx, requesterID, appt.ID); !errors.Is(err, booking.ErrAlreadyCancelled) {
		t.Fatalf("second cancel err = %v, want ErrAlreadyCancelled", err)
	}
	if _, err := svc.Cancel(ctx, requesterID, "6f1c2d3e-4b5a-4c6d-8e7f-000000000000"); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("cancel unknown err = %v, want ErrNotFound", err)
	}

	err = pool.InTx(ctx, func(tx pgx.Tx) error {
		jobs, err := jobsRepo.FetchDue(ctx, tx, 10)
		if err != nil {
			return err
		}
		if len(jobs) != 1 || jobs[0].IdempotencyKey != mailjobs.KindCancellationMail+":"+appt.ID {
			return fmt.Errorf("unexpected jobs: %+v", jobs)
		}
		records, err := outboxRepo.FetchUnpublished(ctx, tx, 10)
		if err != nil {
			return err
		}
		types := make([]string, 0, len(records))
		for _, r := range records {
			types = append(types, r.EventType)
		}
		if len(types) != 2 || types[0] != outbox.EventAppointmentBooked || types[1] != outbox.EventAppointmentCancelled {
			return fmt.Errorf("unexpected outbox events: %v", types)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify side effects: %v", err)
	}

	var notes int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE user_id = $1`, providerID).Scan(&notes); err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if notes != 1 {
		t.Fatalf("notifications = %d, want 1", notes)
	}

	rebooked, err := svc.Create(ctx, booking.CreateInput{RequesterID: requesterID, ProviderID: providerID, Date: appt.ScheduledAt})
	if err != nil {
		t.Fatalf("rebook cancelled slot: %v", err)
	}
	if rebooked.ID == appt.ID {
		t.Fatalf("rebooked appointment reused id %s", appt.ID)
	}
}

func TestPostgresIntegration_UpdateAccount(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("BOOKING_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("BOOKING_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool := openTestSchema(ctx, t, databaseURL)
	users := NewUserRepository(pool)
	ana, err := users.CreateAccount(ctx, identity.Account{User: model.User{Name: "Ana", Email: "ana@example.com"}, PasswordHash: "h1"})
	if err != nil {
		t.Fatalf("create ana: %v", err)
	}
	if _, err := users.CreateAccount(ctx, identity.Account{User: model.User{Name: "Bruno", Email: "bruno@example.com", Provider: true}}); err != nil {
		t.Fatalf("create bruno: %v", err)
	}

	acc, err := users.GetAccount(ctx, ana.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	acc.User.Email = "bruno@example.com"
	if _, err := users.UpdateAccount(ctx, acc); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("update to taken email err = %v, want ErrConflict", err)
	}

	acc.User.Name = "Ana Souza"
	acc.User.Email = "ana.souza@example.com"
	acc.User.Provider = true
	acc.PasswordHash = "h2"
	updated, err := users.UpdateAccount(ctx, acc)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Ana Souza" || updated.Email != "ana.souza@example.com" || updated.Provider {
		t.Fatalf("unexpected updated user: %+v", updated)
	}
	stored, err := users.GetAccountByEmail(ctx, "ana.souza@example.com")
	if err != nil || stored.PasswordHash != "h2" {
		t.Fatalf("stored account = %+v, err = %v", stored, err)
	}

	if _, err := users.UpdateAccount(ctx, identity.Account{User: model.User{ID: "6f1c2d3e-4b5a-4c6d-8e7f-000000000000", Name: "x", Email: "x@example.com"}}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update unknown err = %v, want ErrNotFound", err)
	}
}

func bookingFor(slot time.Time) model.Appointment {
	return model.Appointment{
		RequesterID: requesterID,
		ProviderID:  providerID,
		ScheduledAt: slot,
		Status:      model.StatusActive,
	}
}

// openTestSchema applies the migrations into a throwaway schema and returns a
// pool whose connections resolve tables there.
func openTestSchema(ctx context.Context, t *testing.T, databaseURL string) *db.Pool {
	t.Helper()
	admin, err := db.Open(ctx, databaseURL, db.Options{MaxConns: 2})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(admin.Close)

	schema := "booking_test_" + randomHex(t, 8)
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.Exec(cleanupCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
	})

	pool, err := db.Open(ctx, withSearchPath(databaseURL, schema), db.Options{MaxConns: 4})
	if err != nil {
		t.Fatalf("open schema pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.InTx(ctx, func(tx pgx.Tx) error { return applyMigrations(ctx, tx) }); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return pool
}

func withSearchPath(databaseURL, schema string) string {
	param := "search_path=" + schema + ",public"
	if strings.Contains(databaseURL, "://") {
		sep := "?"
		if strings.Contains(databaseURL, "?") {
			sep = "&"
		}
		return databaseURL + sep + strings.ReplaceAll(param, ",", "%2C")
	}
	return databaseURL + " " + param
}

func randomHex(t *testing.T, n int) string {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return hex.EncodeToString(b)
}

func applyMigrations(ctx context.Context, tx pgx.Tx) error {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return fmt.Errorf("runtime.Caller failed")
	}
	dir := filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations"))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		up, err := gooseUp(string(b))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, up); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func gooseUp(sql string) (string, error) {
	const upMarker, downMarker = "-- +goose Up", "-- +goose Down"
	i := strings.Index(sql, upMarker)
	if i < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	up := sql[i+len(upMarker):]
	if j := strings.Index(up, downMarker); j >= 0 {
		up = up[:j]
	}
	return strings.TrimSpace(up), nil
}
