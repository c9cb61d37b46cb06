package models

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes domain errors so handlers can map them to HTTP codes
// without string matching.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"           // bad input, user-correctable
	KindStateConflict       ErrorKind = "state_conflict"       // illegal transition, in-flight payment
	KindNotFound            ErrorKind = "not_found"            // unknown booking/payment/property
	KindProvider            ErrorKind = "provider"             // remote processor failure
	KindSignatureInvalid    ErrorKind = "signature_invalid"    // webhook integrity failure
	KindUnsupportedProvider ErrorKind = "unsupported_provider" // unknown provider name
)

// DomainError carries a machine-readable kind alongside the message.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a DomainError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

func NewValidationError(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewStateConflict(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: KindStateConflict, Message: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewProviderError wraps a remote processor failure. The raw provider response
// is persisted separately; the wrapped error is for diagnosis only.
func NewProviderError(message string, err error) *DomainError {
	return &DomainError{Kind: KindProvider, Message: message, Err: err}
}

func NewSignatureInvalid(err error) *DomainError {
	return &DomainError{Kind: KindSignatureInvalid, Message: "webhook signature verification failed", Err: err}
}

// ErrIllegalTransition is returned when a booking status change is outside
// the transition table.
func ErrIllegalTransition(from, to BookingStatus) *DomainError {
	return &DomainError{
		Kind:    KindStateConflict,
		Message: fmt.Sprintf("cannot transition booking from %s to %s", from, to),
	}
}

// ErrBookingNotPayable is returned when payment is attempted against a
// booking that is not pending.
func ErrBookingNotPayable(status BookingStatus) *DomainError {
	return &DomainError{
		Kind:    KindStateConflict,
		Message: fmt.Sprintf("booking is not payable (status: %s)", status),
	}
}

// ErrPaymentAlreadyInFlight is returned when a booking already has an
// unresolved payment attempt.
func ErrPaymentAlreadyInFlight() *DomainError {
	return &DomainError{
		Kind:    KindStateConflict,
		Message: "an unresolved payment already exists for this booking",
	}
}

// ErrUnsupportedProvider is returned for a provider name with no registered
// strategy.
func ErrUnsupportedProvider(name string) *DomainError {
	return &DomainError{
		Kind:    KindUnsupportedProvider,
		Message: fmt.Sprintf("unsupported payment provider: %s", name),
	}
}
