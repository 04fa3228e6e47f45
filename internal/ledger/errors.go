package ledger

import (
	"errors"
	"fmt"
)

// Business outcomes. Callers branch on these with errors.Is; none of them
// indicates a system fault.
var (
	ErrValidation        = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient points")
	ErrConflict          = errors.New("already exists")
	ErrAlreadySubmitted  = errors.New("activity already submitted")
)

// ErrPersistence wraps failures of the database itself.
var ErrPersistence = errors.New("persistence failure")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// IsBusiness reports whether err is an expected ledger outcome rather than a fault.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAlreadySubmitted)
}

// outcome maps an error to a short metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
