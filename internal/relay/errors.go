package relay

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error taxonomy surfaced by the relay. Callers classify with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrSessionNotFound = errors.New("session not found")
	ErrWindowExpired   = errors.New("messaging window expired")
	ErrDeliveryFailed  = errors.New("delivery failed")
	ErrOrphanedEvent   = errors.New("orphaned event")
)

// DeliveryError is returned when the provider rejects a send. It matches
// ErrDeliveryFailed and, when the window had lapsed, ErrWindowExpired.
type DeliveryError struct {
	Op            string         // "send", "template" or "retry"
	WindowExpired bool           // the failing call was rejected for a closed window
	Details       map[string]any // provider diagnostics, nil for transport errors
	Err           error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDeliveryFailed, e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	errs := []error{ErrDeliveryFailed, e.Err}
	if e.WindowExpired {
		errs = append(errs, ErrWindowExpired)
	}
	return errs
}

// validationError wraps ErrValidation with a field-specific message.
func validationError(msg string) error {
	return errors.WithMessage(ErrValidation, msg)
}
