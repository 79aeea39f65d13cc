package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gobarber/gobarber/libs/auth"
	"github.com/gobarber/gobarber/libs/httpx"
	"github.com/gobarber/gobarber/services/booking-service/internal/booking"
	"github.com/gobarber/gobarber/services/booking-service/internal/clock"
	"github.com/gobarber/gobarber/services/booking-service/internal/identity"
	"github.com/gobarber/gobarber/services/booking-service/internal/notification"
	"github.com/gobarber/gobarber/services/booking-service/internal/store/memory"
)

// newAppServer mounts public identity routes and bearer-protected appointment
// routes the way the service binary does.
func newAppServer(t *testing.T, now time.Time) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memory.New()
	clk := clock.Fixed(now)

	ids := identity.NewService(st, clk, identity.Config{Secret: "test-secret", SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost}, logger)
	formatter, err := notification.NewFormatter("en_US")
	require.NoError(t, err)
	svc := booking.NewService(st, st, clk, formatter, logger)

	api := http.NewServeMux()
	NewAppointmentHandler(svc, logger).Register(api)
	verifier := &auth.Verifier{Secret: "test-secret", Now: func() time.Time { return now }}

	idh := NewIdentityHandler(ids, logger)
	idh.RegisterAuthenticated(api)
	protected := httpx.Chain(api, auth.RequireUser(verifier, logger))

	mux := http.NewServeMux()
	idh.Register(mux)
	mux.Handle("PUT /api/v1/users", protected)
	mux.Handle("/api/v1/appointments", protected)
	mux.Handle("/api/v1/appointments/", protected)
	return mux
}

func post(t *testing.T, h http.Handler, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	return send(t, h, http.MethodPost, target, body, token)
}

func send(t *testing.T, h http.Handler, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegisterLoginAndBook(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	h := newAppServer(t, now)

	provider := post(t, h, "/api/v1/users", `{"name":"Bruno","email":"bruno@example.com","password":"barber123","provider":true}`, "")
	require.Equal(t, http.StatusCreated, provider.Code, provider.Body.String())
	var bruno userResponse
	require.NoError(t, json.Unmarshal(provider.Body.Bytes(), &bruno))
	assert.True(t, bruno.Provider)

	client := post(t, h, "/api/v1/users", `{"name":"Ana","email":"ana@example.com","password":"secret1"}`, "")
	require.Equal(t, http.StatusCreated, client.Code)

	login := post(t, h, "/api/v1/sessions", `{"email":"ana@example.com","password":"secret1"}`, "")
	require.Equal(t, http.StatusOK, login.Code, login.Body.String())
	var session sessionResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &session))
	assert.Equal(t, "Ana", session.User.Name)
	require.NotEmpty(t, session.Token)

	unauthenticated := post(t, h, "/api/v1/appointments", createBody(bruno.ID, "2026-05-10T14:00:00Z"), "")
	assert.Equal(t, http.StatusUnauthorized, unauthenticated.Code)

	booked := post(t, h, "/api/v1/appointments", createBody(bruno.ID, "2026-05-10T14:00:00Z"), session.Token)
	require.Equal(t, http.StatusCreated, booked.Code, booked.Body.String())
	var appt appointmentResponse
	require.NoError(t, json.Unmarshal(booked.Body.Bytes(), &appt))
	assert.Equal(t, session.User.ID, appt.RequesterID)
}

func TestIdentityErrors(t *testing.T) {
	h := newAppServer(t, time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC))
	require.Equal(t, http.StatusCreated, post(t, h, "/api/v1/users", `{"name":"Ana","email":"ana@example.com","password":"secret1"}`, "").Code)

	cases := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"duplicate email", "/api/v1/users", `{"name":"Ana","email":"ana@example.com","password":"secret1"}`, http.StatusConflict, "email_taken"},
		{"short password", "/api/v1/users", `{"name":"Ana","email":"other@example.com","password":"123"}`, http.StatusBadRequest, "validation_error"},
		{"bad json", "/api/v1/users", `{"name":`, http.StatusBadRequest, "validation_error"},
		{"wrong password", "/api/v1/sessions", `{"email":"ana@example.com","password":"nope"}`, http.StatusUnauthorized, "invalid_credentials"},
		{"unknown user", "/api/v1/sessions", `{"email":"bob@example.com","password":"secret1"}`, http.StatusUnauthorized, "invalid_credentials"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(t, h, tc.target, tc.body, "")

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, errorCode(t, rec))
		})
	}
}

func login(t *testing.T, h http.Handler, email, password string) string {
	t.Helper()
	rec := post(t, h, "/api/v1/sessions", `{"email":"`+email+`","password":"`+password+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	return session.Token
}

func TestUpdateUser(t *testing.T) {
	h := newAppServer(t, time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC))
	require.Equal(t, http.StatusCreated, post(t, h, "/api/v1/users", `{"name":"Ana","email":"ana@example.com","password":"secret1"}`, "").Code)
	token := login(t, h, "ana@example.com", "secret1")

	rec := send(t, h, http.MethodPut, "/api/v1/users",
		`{"name":"Ana Souza","email":"ana.souza@example.com","old_password":"secret1","password":"secret2","confirm_password":"secret2"}`, token)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var u userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "Ana Souza", u.Name)
	assert.Equal(t, "ana.souza@example.com", u.Email)

	stale := post(t, h, "/api/v1/sessions", `{"email":"ana@example.com","password":"secret1"}`, "")
	assert.Equal(t, http.StatusUnauthorized, stale.Code)
	login(t, h, "ana.souza@example.com", "secret2")
}

func TestUpdateUserErrors(t *testing.T) {
	h := newAppServer(t, time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC))
	require.Equal(t, http.StatusCreated, post(t, h, "/api/v1/users", `{"name":"Ana","email":"ana@example.com","password":"secret1"}`, "").Code)
	require.Equal(t, http.StatusCreated, post(t, h, "/api/v1/users", `{"name":"Bruno","email":"bruno@example.com","password":"barber123","provider":true}`, "").Code)
	token := login(t, h, "ana@example.com", "secret1")

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"wrong old password", `{"old_password":"nope12","password":"secret2","confirm_password":"secret2"}`, http.StatusBadRequest, "password_mismatch"},
		{"taken email", `{"email":"bruno@example.com"}`, http.StatusConflict, "email_taken"},
		{"confirmation differs", `{"old_password":"secret1","password":"secret2","confirm_password":"secret3"}`, http.StatusBadRequest, "validation_error"},
		{"bad json", `{"name":`, http.StatusBadRequest, "validation_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := send(t, h, http.MethodPut, "/api/v1/users", tc.body, token)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, errorCode(t, rec))
		})
	}

	unauthenticated := send(t, h, http.MethodPut, "/api/v1/users", `{"name":"Ana Lima"}`, "")
	assert.Equal(t, http.StatusUnauthorized, unauthenticated.Code)
	login(t, h, "ana@example.com", "secret1")
}
