package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorKind
	}{
		{NewValidationError("bad input"), KindValidation},
		{NewStateConflict("conflict"), KindStateConflict},
		{NewNotFound("missing"), KindNotFound},
		{NewProviderError("remote failed", errors.New("timeout")), KindProvider},
		{NewSignatureInvalid(errors.New("bad sig")), KindSignatureInvalid},
		{ErrIllegalTransition(BookingStatusCompleted, BookingStatusPaid), KindStateConflict},
		{ErrBookingNotPayable(BookingStatusPaid), KindStateConflict},
		{ErrPaymentAlreadyInFlight(), KindStateConflict},
		{ErrUnsupportedProvider("bitcoin"), KindUnsupportedProvider},
	}

	for _, tt := range tests {
		assert.True(t, IsKind(tt.err, tt.kind), "%v should be %s", tt.err, tt.kind)
	}
}

func TestIsKindThroughWrapping(t *testing.T) {
	inner := NewNotFound("booking missing")
	wrapped := fmt.Errorf("loading booking: %w", inner)

	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(wrapped, KindValidation))
	assert.False(t, IsKind(errors.New("plain"), KindNotFound))
}

func TestDomainErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewProviderError("gateway call failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "gateway call failed")
	assert.Contains(t, err.Error(), "connection refused")
}
