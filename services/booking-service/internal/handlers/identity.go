package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gobarber/gobarber/libs/auth"
	"github.com/gobarber/gobarber/libs/httpx"
	"github.com/gobarber/gobarber/services/booking-service/internal/identity"
	"github.com/gobarber/gobarber/services/booking-service/internal/model"
)

// Identity is the registration and login surface.
type Identity interface {
	Register(ctx context.Context, in identity.RegisterInput) (model.User, error)
	CreateSession(ctx context.Context, email, password string) (identity.Session, error)
	UpdateProfile(ctx context.Context, callerID string, in identity.UpdateProfileInput) (model.User, error)
	CanIssue() bool
}

type IdentityHandler struct {
	svc    Identity
	logger *slog.Logger
}

func NewIdentityHandler(svc Identity, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{svc: svc, logger: logger}
}

// Register mounts the public routes. Sessions are only served when the
// service can sign tokens.
func (h *IdentityHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/users", h.CreateUser)
	if h.svc.CanIssue() {
		mux.HandleFunc("POST /api/v1/sessions", h.CreateSession)
	}
}

// RegisterAuthenticated mounts the routes that act on the caller's own
// account. mux must sit behind auth.RequireUser.
func (h *IdentityHandler) RegisterAuthenticated(mux *http.ServeMux) {
	mux.HandleFunc("PUT /api/v1/users", h.UpdateUser)
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Provider bool   `json:"provider"`
}

type updateUserRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	OldPassword     string `json:"old_password"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type createSessionRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  partyResponse `json:"user"`
	Token string        `json:"token"`
}

type userResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Provider bool   `json:"provider"`
}

func (h *IdentityHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid json body")
		return
	}
	u, err := h.svc.Register(r.Context(), identity.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Provider: req.Provider,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Provider: u.Provider})
}

func (h *IdentityHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing caller")
		return
	}
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid json body")
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), callerID, identity.UpdateProfileInput{
		Name:            req.Name,
		Email:           req.Email,
		OldPassword:     req.OldPassword,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Provider: u.Provider})
}

func (h *IdentityHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid json body")
		return
	}
	session, err := h.svc.CreateSession(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		User:  partyResponse{ID: session.User.ID, Name: session.User.Name, Email: session.User.Email},
		Token: session.Token,
	})
}

func (h *IdentityHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *identity.ValidationError
	switch {
	case errors.As(err, &ve):
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", ve.Error())
	case errors.Is(err, identity.ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, identity.ErrPasswordMismatch):
		httpx.WriteError(w, http.StatusBadRequest, "password_mismatch", err.Error())
	case errors.Is(err, identity.ErrAccountNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.logger.Error("identity request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		httpx.WriteError(w, http.StatusServiceUnavailable, "dependency_failure", "service temporarily unavailable")
	}
}
