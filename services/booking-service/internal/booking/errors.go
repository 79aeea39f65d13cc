package booking

import (
	"errors"
	"fmt"

	"github.com/gobarber/gobarber/services/booking-service/internal/model"
)

var (
	ErrInvalidProvider           = errors.New("you can only create appointments with providers")
	ErrPastDate                  = errors.New("past dates are not permitted")
	ErrSlotUnavailable           = errors.New("appointment date is not available")
	ErrNotFound                  = errors.New("appointment not found")
	ErrUnauthorized              = errors.New("you don't have permission for this appointment")
	ErrInvalidRequester          = errors.New("requester is not a registered user")
	ErrCancellationWindowExpired = errors.New("you can only cancel appointments 2 hours in advance")
	ErrAlreadyCancelled          = model.ErrAlreadyCancelled
	ErrDependencyFailure         = errors.New("a dependency is unavailable")
)

// ValidationError reports a request that fails boundary validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// dependency marks err as a failure of storage, the directory or the queue.
func dependency(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrDependencyFailure, err))
}

func isDomainError(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	for _, target := range []error{
		ErrInvalidProvider,
		ErrPastDate,
		ErrSlotUnavailable,
		ErrNotFound,
		ErrUnauthorized,
		ErrInvalidRequester,
		ErrCancellationWindowExpired,
		ErrAlreadyCancelled,
		ErrDependencyFailure,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
