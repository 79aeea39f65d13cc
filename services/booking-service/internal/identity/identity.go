// Package identity registers users and opens sessions, issuing the bearer
// tokens the appointment routes verify.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gobarber/gobarber/libs/auth"
	"github.com/gobarber/gobarber/services/booking-service/internal/clock"
	"github.com/gobarber/gobarber/services/booking-service/internal/model"
	"github.com/gobarber/gobarber/services/booking-service/internal/store"
)

const MinPasswordLength = 6

var (
	ErrEmailTaken         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("email or password does not match")
	ErrPasswordMismatch   = errors.New("password does not match")
	ErrAccountNotFound    = errors.New("user not found")
)

// ValidationError reports a registration or login request with a bad field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Account is a directory user together with its password hash.
type Account struct {
	User         model.User
	PasswordHash string
}

// Accounts persists accounts. Create and update return store.ErrConflict for
// a taken email; lookups and updates return store.ErrNotFound for an unknown
// account.
type Accounts interface {
	CreateAccount(ctx context.Context, acc Account) (model.User, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	UpdateAccount(ctx context.Context, acc Account) (model.User, error)
}

// ProfileCache drops cached copies of a user's profile.
type ProfileCache interface {
	Forget(ctx context.Context, userID string) error
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Provider bool
}

// UpdateProfileInput changes the caller's profile. Empty Name and Email keep
// the current values. A new Password needs the current one in OldPassword and
// a matching ConfirmPassword.
type UpdateProfileInput struct {
	Name            string
	Email           string
	OldPassword     string
	Password        string
	ConfirmPassword string
}

type Session struct {
	User  model.User
	Token string
}

type Config struct {
	Secret     string
	SessionTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type Service struct {
	accounts Accounts
	profiles ProfileCache
	clock    clock.Clock
	cfg      Config
	logger   *slog.Logger
}

func NewService(accounts Accounts, clk clock.Clock, cfg Config, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{accounts: accounts, clock: clk, cfg: cfg, logger: logger.With("component", "identity")}
}

// WithProfileCache makes profile updates evict the user from c.
func (s *Service) WithProfileCache(c ProfileCache) *Service {
	s.profiles = c
	return s
}

// CanIssue reports whether sessions can be opened. Without a shared secret
// tokens come from an external issuer.
func (s *Service) CanIssue() bool {
	return s.cfg.Secret != ""
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	name := strings.TrimSpace(in.Name)
	email, err := normalizeEmail(in.Email)
	switch {
	case name == "":
		return model.User{}, &ValidationError{Field: "name", Message: "is required"}
	case err != nil:
		return model.User{}, err
	case len(in.Password) < MinPasswordLength:
		return model.User{}, &ValidationError{Field: "password", Message: fmt.Sprintf("must have at least %d characters", MinPasswordLength)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.accounts.CreateAccount(ctx, Account{
		User:         model.User{Name: name, Email: email, Provider: in.Provider},
		PasswordHash: string(hash),
	})
	if errors.Is(err, store.ErrConflict) {
		return model.User{}, ErrEmailTaken
	}
	if err != nil {
		return model.User{}, err
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", u.ID, "provider", u.Provider)
	return u, nil
}

// CreateSession checks the password and signs a token for the user.
func (s *Service) CreateSession(ctx context.Context, email, password string) (Session, error) {
	if !s.CanIssue() {
		return Session{}, errors.New("session issuing is not configured")
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if password == "" {
		return Session{}, &ValidationError{Field: "password", Message: "is required"}
	}

	acc, err := s.accounts.GetAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if acc.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	now := s.clock.Now()
	token, err := auth.SignHS256(auth.Claims{
		Sub:   acc.User.ID,
		Name:  acc.User.Name,
		Email: acc.User.Email,
		Iat:   now.Unix(),
		Exp:   now.Add(s.cfg.SessionTTL).Unix(),
	}, s.cfg.Secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{User: acc.User, Token: token}, nil
}

// UpdateProfile applies in to the account of callerID.
func (s *Service) UpdateProfile(ctx context.Context, callerID string, in UpdateProfileInput) (model.User, error) {
	if err := validateProfile(in); err != nil {
		return model.User{}, err
	}

	acc, err := s.accounts.GetAccount(ctx, callerID)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, ErrAccountNotFound
	}
	if err != nil {
		return model.User{}, err
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		acc.User.Name = name
	}
	if strings.TrimSpace(in.Email) != "" {
		email, err := normalizeEmail(in.Email)
		if err != nil {
			return model.User{}, err
		}
		acc.User.Email = email
	}
	if in.Password != "" {
		if acc.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(in.OldPassword)) != nil {
			return model.User{}, ErrPasswordMismatch
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
		if err != nil {
			return model.User{}, fmt.Errorf("hash password: %w", err)
		}
		acc.PasswordHash = string(hash)
	}

	u, err := s.accounts.UpdateAccount(ctx, acc)
	switch {
	case errors.Is(err, store.ErrConflict):
		return model.User{}, ErrEmailTaken
	case errors.Is(err, store.ErrNotFound):
		return model.User{}, ErrAccountNotFound
	case err != nil:
		return model.User{}, err
	}

	if s.profiles != nil {
		if err := s.profiles.Forget(ctx, u.ID); err != nil {
			s.logger.WarnContext(ctx, "profile cache eviction failed", "user_id", u.ID, "err", err)
		}
	}
	s.logger.InfoContext(ctx, "profile updated", "user_id", u.ID, "password_changed", in.Password != "")
	return u, nil
}

func validateProfile(in UpdateProfileInput) error {
	switch {
	case in.OldPassword != "" && in.Password == "":
		return &ValidationError{Field: "password", Message: "is required when old_password is given"}
	case in.Password == "":
		return nil
	case in.OldPassword == "":
		return &ValidationError{Field: "old_password", Message: "is required to change the password"}
	case len(in.Password) < MinPasswordLength:
		return &ValidationError{Field: "password", Message: fmt.Sprintf("must have at least %d characters", MinPasswordLength)}
	case in.ConfirmPassword != in.Password:
		return &ValidationError{Field: "confirm_password", Message: "must match password"}
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", &ValidationError{Field: "email", Message: "is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &ValidationError{Field: "email", Message: "must be a valid address"}
	}
	return email, nil
}
