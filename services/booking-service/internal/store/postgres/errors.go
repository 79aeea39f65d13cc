package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gobarber/gobarber/services/booking-service/internal/store"
)

const (
	codeUniqueViolation  = "23505"
	codeInvalidTextRepr  = "22P02"
	activeSlotConstraint = "appointments_provider_slot_active_key"
	userEmailConstraint  = "users_email_key"
)

// IsConflict reports a violation of one of the uniqueness rules the domain
// relies on: one active appointment per provider slot and one user per email.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return pgErr.ConstraintName == activeSlotConstraint || pgErr.ConstraintName == userEmailConstraint
}

// IsNotFound also treats a malformed uuid as a missing row.
func IsNotFound(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeInvalidTextRepr
}

func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case IsConflict(err):
		return fmt.Errorf("%s: %w", op, store.ErrConflict)
	case IsNotFound(err):
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
