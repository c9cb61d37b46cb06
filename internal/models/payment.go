package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentProvider identifies a configured payment provider
// Matches PostgreSQL ENUM: payment_provider
type PaymentProvider string

const (
	PaymentProviderCard   PaymentProvider = "card"
	PaymentProviderWallet PaymentProvider = "wallet"
)

// PaymentStatus represents the status of a single payment attempt
// Matches PostgreSQL ENUM: payment_status
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSuccess    PaymentStatus = "success"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// IsTerminal reports whether the payment has reached a final state.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// InFlight reports whether the payment is still unresolved.
func (s PaymentStatus) InFlight() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

// JSONB stores an opaque JSON document in a jsonb column. Provider responses
// are kept verbatim for audit and replay.
type JSONB map[string]interface{}

// Value implements driver.Valuer
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = JSONB{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("jsonb scan: expected []byte")
	}
	return json.Unmarshal(b, j)
}

// Payment represents one attempt to settle a booking's total via an external
// provider. Rows are never deleted; they form the audit trail.
type Payment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BookingID uuid.UUID `db:"booking_id" json:"booking_id"`

	Provider PaymentProvider `db:"provider" json:"provider"`

	// TransactionID is the provider-assigned reference and the reconciliation
	// key between local state and provider-side state. Globally unique.
	TransactionID string `db:"transaction_id" json:"transaction_id"`

	Amount   decimal.Decimal `db:"amount" json:"amount"`
	Currency string          `db:"currency" json:"currency"`

	Status      PaymentStatus `db:"status" json:"status"`
	RawResponse JSONB         `db:"raw_response" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CreatePaymentRequest is the payload for POST /payments
type CreatePaymentRequest struct {
	BookingID string `json:"booking_id" binding:"required,uuid"`
	Provider  string `json:"provider" binding:"required"`
	Currency  string `json:"currency,omitempty"` // defaults to the configured currency
}

// CreatePaymentResponse carries the provider continuation data the client
// needs to complete the payment.
type CreatePaymentResponse struct {
	PaymentID     uuid.UUID       `json:"payment_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ClientSecret  string          `json:"client_secret,omitempty"` // card flow
	RedirectURL   string          `json:"redirect_url,omitempty"`  // wallet flow
}

// SettlementResult reports the outcome of a confirm or reconcile operation.
type SettlementResult struct {
	PaymentID     uuid.UUID     `json:"payment_id"`
	BookingID     uuid.UUID     `json:"booking_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	BookingStatus BookingStatus `json:"booking_status"`
}

// RefundPaymentRequest is the payload for POST /payments/:id/refund
type RefundPaymentRequest struct {
	// Amount is optional; empty means a full refund.
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// RefundResult reports a completed refund.
type RefundResult struct {
	PaymentID uuid.UUID     `json:"payment_id"`
	RefundID  string        `json:"refund_id"`
	Status    PaymentStatus `json:"status"`
}
