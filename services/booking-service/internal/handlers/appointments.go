package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gobarber/gobarber/libs/auth"
	"github.com/gobarber/gobarber/libs/httpx"
	"github.com/gobarber/gobarber/services/booking-service/internal/availability"
	"github.com/gobarber/gobarber/services/booking-service/internal/booking"
	"github.com/gobarber/gobarber/services/booking-service/internal/model"
)

// Lifecycle is the booking surface the HTTP layer drives.
type Lifecycle interface {
	Create(ctx context.Context, in booking.CreateInput) (model.Appointment, error)
	Cancel(ctx context.Context, callerID, appointmentID string) (model.Appointment, error)
	List(ctx context.Context, requesterID string, page int) ([]model.AppointmentView, error)
	DayAvailability(ctx context.Context, providerID string, day time.Time) ([]availability.Slot, error)
}

type AppointmentHandler struct {
	svc    Lifecycle
	logger *slog.Logger
}

func NewAppointmentHandler(svc Lifecycle, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

// Register mounts the appointment routes on mux. Every route expects the
// caller id placed in the context by auth.RequireUser.
func (h *AppointmentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/appointments", h.List)
	mux.HandleFunc("POST /api/v1/appointments", h.Create)
	mux.HandleFunc("DELETE /api/v1/appointments/{id}", h.Cancel)
	mux.HandleFunc("GET /api/v1/providers/{id}/availability", h.Availability)
}

type createAppointmentRequest struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
}

type appointmentResponse struct {
	ID          string  `json:"id"`
	RequesterID string  `json:"requester_id"`
	ProviderID  string  `json:"provider_id"`
	Date        string  `json:"date"`
	Status      string  `json:"status"`
	CancelledAt *string `json:"cancelled_at"`
	CreatedAt   string  `json:"created_at"`
}

type partyResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type listAppointmentItem struct {
	appointmentResponse
	Provider   partyResponse `json:"provider"`
	Past       bool          `json:"past"`
	Cancelable bool          `json:"cancelable"`
}

type slotItem struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing caller")
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid json body")
		return
	}
	date, err := time.Parse(time.RFC3339, strings.TrimSpace(req.Date))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "date must be an RFC3339 timestamp")
		return
	}

	appt, err := h.svc.Create(r.Context(), booking.CreateInput{
		RequesterID: callerID,
		ProviderID:  req.ProviderID,
		Date:        date,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing caller")
		return
	}

	appt, err := h.svc.Cancel(r.Context(), callerID, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing caller")
		return
	}

	// Missing, unparsable and non-positive pages all mean the first page.
	page := 1
	if n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("page"))); err == nil && n > 1 {
		page = n
	}

	views, err := h.svc.List(r.Context(), callerID, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]listAppointmentItem, 0, len(views))
	for _, v := range views {
		items = append(items, listAppointmentItem{
			appointmentResponse: toAppointmentResponse(v.Appointment),
			Provider:            partyResponse{ID: v.Provider.ID, Name: v.Provider.Name, Email: v.Provider.Email},
			Past:                v.Past,
			Cancelable:          v.Cancelable,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *AppointmentHandler) Availability(w http.ResponseWriter, r *http.Request) {
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(r.URL.Query().Get("date")), time.UTC)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "date must be YYYY-MM-DD")
		return
	}

	slots, err := h.svc.DayAvailability(r.Context(), r.PathValue("id"), day)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{Time: s.Start.UTC().Format(time.RFC3339), Available: s.Available})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// writeServiceError maps lifecycle errors to a status and a stable code.
func (h *AppointmentHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *booking.ValidationError
	switch {
	case errors.As(err, &ve):
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", ve.Error())
	case errors.Is(err, booking.ErrDependencyFailure):
		h.logger.Error("booking dependency failure",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		httpx.WriteError(w, http.StatusServiceUnavailable, "dependency_failure", "service temporarily unavailable")
	case errors.Is(err, booking.ErrInvalidProvider):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_provider", err.Error())
	case errors.Is(err, booking.ErrPastDate):
		httpx.WriteError(w, http.StatusBadRequest, "past_date", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		httpx.WriteError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, booking.ErrUnauthorized):
		httpx.WriteError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, booking.ErrInvalidRequester):
		httpx.WriteError(w, http.StatusForbidden, "invalid_requester", err.Error())
	case errors.Is(err, booking.ErrCancellationWindowExpired):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "cancellation_window_expired", err.Error())
	case errors.Is(err, booking.ErrAlreadyCancelled):
		httpx.WriteError(w, http.StatusConflict, "already_cancelled", err.Error())
	default:
		h.logger.Error("unexpected booking error",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:          a.ID,
		RequesterID: a.RequesterID,
		ProviderID:  a.ProviderID,
		Date:        a.ScheduledAt.UTC().Format(time.RFC3339),
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		s := a.CancelledAt.UTC().Format(time.RFC3339)
		resp.CancelledAt = &s
	}
	return resp
}
