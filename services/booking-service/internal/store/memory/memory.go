// Package memory is an in-process implementation of the store interfaces.
// Transactions are serialized and applied atomically, and the active-slot
// uniqueness rule is enforced on insert like the database index does.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gobarber/gobarber/services/booking-service/internal/identity"
	"github.com/gobarber/gobarber/services/booking-service/internal/mailjobs"
	"github.com/gobarber/gobarber/services/booking-service/internal/model"
	"github.com/gobarber/gobarber/services/booking-service/internal/outbox"
	"github.com/gobarber/gobarber/services/booking-service/internal/store"
)

type state struct {
	appointments  map[string]model.Appointment
	notifications []model.Notification
	jobs          []mailjobs.Job
	events        []outbox.Event
}

func (s state) clone() state {
	out := state{
		appointments:  make(map[string]model.Appointment, len(s.appointments)),
		notifications: append([]model.Notification(nil), s.notifications...),
		jobs:          append([]mailjobs.Job(nil), s.jobs...),
		events:        append([]outbox.Event(nil), s.events...),
	}
	for k, v := range s.appointments {
		out.appointments[k] = v
	}
	return out
}

// Store guards transactional state with mu and the directory plus injected
// failures with dirMu. When both are needed mu is taken first.
type Store struct {
	mu    sync.Mutex
	st    state
	dirMu sync.Mutex
	users map[string]model.User
	hash  map[string]string
	fail  map[string]error
	now   func() time.Time
}

func New() *Store {
	return &Store{
		st:    state{appointments: map[string]model.Appointment{}},
		users: map[string]model.User{},
		hash:  map[string]string{},
		fail:  map[string]error{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// PutUser adds or replaces a directory entry.
func (s *Store) PutUser(u model.User) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	s.users[u.ID] = u
}

// FailOn makes the named operation (for example "AppendNotification") return
// err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

func (s *Store) failure(op string) error {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	return s.fail[op]
}

func (s *Store) user(id string) (model.User, bool) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, st: s.st.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

func (s *Store) ListActiveByRequester(_ context.Context, requesterID string, limit, offset int) ([]model.AppointmentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListActiveByRequester"); err != nil {
		return nil, err
	}

	var active []model.Appointment
	for _, a := range s.st.appointments {
		if a.RequesterID == requesterID && a.Active() {
			active = append(active, a)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ScheduledAt.Before(active[j].ScheduledAt) })

	if offset >= len(active) {
		return []model.AppointmentView{}, nil
	}
	active = active[offset:]
	if limit > 0 && len(active) > limit {
		active = active[:limit]
	}

	views := make([]model.AppointmentView, 0, len(active))
	for _, a := range active {
		provider, ok := s.user(a.ProviderID)
		if !ok {
			provider.ID = a.ProviderID
		}
		views = append(views, model.AppointmentView{Appointment: a, Provider: provider.Party()})
	}
	return views, nil
}

func (s *Store) ListProviderSlots(_ context.Context, providerID string, from, to time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("ListProviderSlots"); err != nil {
		return nil, err
	}

	var slots []time.Time
	for _, a := range s.st.appointments {
		if a.ProviderID == providerID && a.Active() && !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			slots = append(slots, a.ScheduledAt)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots, nil
}

func (s *Store) GetUser(_ context.Context, id string) (model.User, error) {
	if err := s.failure("GetUser"); err != nil {
		return model.User{}, err
	}
	u, ok := s.user(id)
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

// CreateAccount registers a user, rejecting a taken email with store.ErrConflict.
func (s *Store) CreateAccount(_ context.Context, acc identity.Account) (model.User, error) {
	if err := s.failure("CreateAccount"); err != nil {
		return model.User{}, err
	}
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	for _, u := range s.users {
		if u.Email == acc.User.Email {
			return model.User{}, store.ErrConflict
		}
	}
	u := acc.User
	u.ID = uuid.NewString()
	s.users[u.ID] = u
	s.hash[u.ID] = acc.PasswordHash
	return u, nil
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (identity.Account, error) {
	if err := s.failure("GetAccountByEmail"); err != nil {
		return identity.Account{}, err
	}
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return identity.Account{User: u, PasswordHash: s.hash[u.ID]}, nil
		}
	}
	return identity.Account{}, store.ErrNotFound
}

func (s *Store) GetAccount(_ context.Context, id string) (identity.Account, error) {
	if err := s.failure("GetAccount"); err != nil {
		return identity.Account{}, err
	}
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return identity.Account{}, store.ErrNotFound
	}
	return identity.Account{User: u, PasswordHash: s.hash[id]}, nil
}

// UpdateAccount keeps the stored provider flag and rejects an email held by
// another user with store.ErrConflict.
func (s *Store) UpdateAccount(_ context.Context, acc identity.Account) (model.User, error) {
	if err := s.failure("UpdateAccount"); err != nil {
		return model.User{}, err
	}
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	cur, ok := s.users[acc.User.ID]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	for id, u := range s.users {
		if id != cur.ID && u.Email == acc.User.Email {
			return model.User{}, store.ErrConflict
		}
	}
	cur.Name = acc.User.Name
	cur.Email = acc.User.Email
	s.users[cur.ID] = cur
	s.hash[cur.ID] = acc.PasswordHash
	return cur, nil
}

func (s *Store) IsProvider(ctx context.Context, id string) (bool, error) {
	u, err := s.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Provider, nil
}

// Appointments returns every stored appointment ordered by ScheduledAt.
func (s *Store) Appointments() []model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Appointment, 0, len(s.st.appointments))
	for _, a := range s.st.appointments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

func (s *Store) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Notification(nil), s.st.notifications...)
}

func (s *Store) MailJobs() []mailjobs.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mailjobs.Job(nil), s.st.jobs...)
}

func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.st.events...)
}

type memTx struct {
	s  *Store
	st state
}

func (t *memTx) HasActiveAppointment(_ context.Context, providerID string, slot time.Time) (bool, error) {
	if err := t.s.failure("HasActiveAppointment"); err != nil {
		return false, err
	}
	for _, a := range t.st.appointments {
		if a.ProviderID == providerID && a.Active() && a.ScheduledAt.Equal(slot) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	if err := t.s.failure("InsertAppointment"); err != nil {
		return model.Appointment{}, err
	}
	taken, _ := t.HasActiveAppointment(ctx, appt.ProviderID, appt.ScheduledAt)
	if taken && appt.Active() {
		return model.Appointment{}, store.ErrConflict
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = t.s.now()
	}
	t.st.appointments[appt.ID] = appt
	return appt, nil
}

func (t *memTx) GetAppointmentForUpdate(_ context.Context, id string) (model.Appointment, error) {
	if err := t.s.failure("GetAppointmentForUpdate"); err != nil {
		return model.Appointment{}, err
	}
	a, ok := t.st.appointments[id]
	if !ok {
		return model.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (t *memTx) UpdateCancellation(_ context.Context, appt model.Appointment) error {
	if err := t.s.failure("UpdateCancellation"); err != nil {
		return err
	}
	cur, ok := t.st.appointments[appt.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Status = appt.Status
	cur.CancelledAt = appt.CancelledAt
	t.st.appointments[appt.ID] = cur
	return nil
}

func (t *memTx) AppendNotification(_ context.Context, n model.Notification) error {
	if err := t.s.failure("AppendNotification"); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = t.s.now()
	}
	t.st.notifications = append(t.st.notifications, n)
	return nil
}

func (t *memTx) EnqueueMailJob(_ context.Context, job mailjobs.Job) error {
	if err := t.s.failure("EnqueueMailJob"); err != nil {
		return err
	}
	for _, j := range t.st.jobs {
		if j.IdempotencyKey == job.IdempotencyKey {
			return nil
		}
	}
	job.ID = int64(len(t.st.jobs) + 1)
	t.st.jobs = append(t.st.jobs, job)
	return nil
}

func (t *memTx) AppendOutboxEvent(_ context.Context, evt outbox.Event) error {
	if err := t.s.failure("AppendOutboxEvent"); err != nil {
		return err
	}
	t.st.events = append(t.st.events, evt)
	return nil
}
