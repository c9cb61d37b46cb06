package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventInitiated              PaymentEventType = "payment_initiated"
	PaymentEventProviderResponse       PaymentEventType = "provider_response"
	PaymentEventWebhookReceived        PaymentEventType = "webhook_received"
	PaymentEventStatusCheckRequest     PaymentEventType = "status_check_request"
	PaymentEventStatusCheckResponse    PaymentEventType = "status_check_response"
	PaymentEventSuccess                PaymentEventType = "payment_success"
	PaymentEventFailed                 PaymentEventType = "payment_failed"
	PaymentEventRefundInitiated        PaymentEventType = "refund_initiated"
	PaymentEventRefundCompleted        PaymentEventType = "refund_completed"
	PaymentEventReconciliationMismatch PaymentEventType = "reconciliation_mismatch"
	PaymentEventSignatureRejected      PaymentEventType = "signature_rejected"
	PaymentEventError                  PaymentEventType = "error"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend       PaymentEventSource = "backend"
	PaymentSourceCardWebhook   PaymentEventSource = "card_webhook"
	PaymentSourceWalletWebhook PaymentEventSource = "wallet_webhook"
	PaymentSourceProviderAPI   PaymentEventSource = "provider_api"
	PaymentSourceUser          PaymentEventSource = "user"
	PaymentSourceSystem        PaymentEventSource = "system"
)

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	PaymentID     *uuid.UUID `json:"payment_id,omitempty" db:"payment_id"`
	TransactionID *string    `json:"transaction_id,omitempty" db:"transaction_id"`

	// Event info
	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	// Amount tracking - CRITICAL for verification
	ExpectedAmount *decimal.Decimal `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *decimal.Decimal `json:"received_amount,omitempty" db:"received_amount"`
	Currency       *string          `json:"currency,omitempty" db:"currency"`
	AmountsMatch   *bool            `json:"amounts_match,omitempty" db:"amounts_match"`

	// Status
	PaymentStatus *string `json:"payment_status,omitempty" db:"payment_status"`

	// Raw payloads - CRITICAL for debugging
	RawBody *string `json:"raw_body,omitempty" db:"raw_body"`

	// Error tracking
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	// Processing info
	IsDuplicate bool `json:"is_duplicate" db:"is_duplicate"`

	// Metadata
	IPAddress     *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceSummary *string `json:"device_summary,omitempty" db:"device_summary"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
		IsDuplicate: false,
	}
}

// SetPayment sets the internal payment ID for the audit
func (pa *PaymentAudit) SetPayment(paymentID uuid.UUID) *PaymentAudit {
	pa.PaymentID = &paymentID
	return pa
}

// SetTransactionID sets the provider transaction reference
func (pa *PaymentAudit) SetTransactionID(txID string) *PaymentAudit {
	pa.TransactionID = &txID
	return pa
}

// SetAmounts sets and verifies amounts - returns whether they match
func (pa *PaymentAudit) SetAmounts(expected, received decimal.Decimal, currency string) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	pa.Currency = &currency

	match := expected.Equal(received)
	pa.AmountsMatch = &match
	return match
}

// SetPaymentStatus sets the payment status observed at the provider
func (pa *PaymentAudit) SetPaymentStatus(status string) *PaymentAudit {
	pa.PaymentStatus = &status
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string) *PaymentAudit {
	pa.ErrorMessage = &message
	return pa
}

// SetRawBody stores the raw notification body before parsing
func (pa *PaymentAudit) SetRawBody(body string) *PaymentAudit {
	pa.RawBody = &body
	return pa
}

// SetMetadata sets request metadata
func (pa *PaymentAudit) SetMetadata(ip, userAgent, deviceSummary string) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if deviceSummary != "" {
		pa.DeviceSummary = &deviceSummary
	}
	return pa
}

// MarkAsDuplicate marks this event as a duplicate delivery
func (pa *PaymentAudit) MarkAsDuplicate() *PaymentAudit {
	pa.IsDuplicate = true
	return pa
}
