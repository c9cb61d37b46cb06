package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"

	"github.com/estatevista/booking-backend/internal/database"
	"github.com/estatevista/booking-backend/internal/models"
	"github.com/estatevista/booking-backend/pkg/payment"
)

// CardWebhookVerifier validates a card webhook's signature and parses the
// event. Implemented by the Stripe card gateway.
type CardWebhookVerifier interface {
	VerifyWebhook(payload []byte, signatureHeader string) (*stripe.Event, error)
}

// WebhookMeta carries request metadata for the audit trail.
type WebhookMeta struct {
	IPAddress     string
	UserAgent     string
	DeviceSummary string
}

// WebhookReconcilerService applies asynchronous provider notifications to
// local state. Deliveries are at-least-once and unordered: every event is
// resolved by transaction reference, replays converge on the first recorded
// outcome, and everything received is written to the audit trail.
type WebhookReconcilerService struct {
	orchestrator *PaymentOrchestratorService
	paymentRepo  *database.PaymentRepository
	bookingRepo  *database.BookingRepository
	auditRepo    *database.PaymentAuditRepository
	cardVerifier CardWebhookVerifier
	logger       *logrus.Logger
}

// NewWebhookReconcilerService creates a new webhook reconciler
func NewWebhookReconcilerService(
	orchestrator *PaymentOrchestratorService,
	paymentRepo *database.PaymentRepository,
	bookingRepo *database.BookingRepository,
	auditRepo *database.PaymentAuditRepository,
	cardVerifier CardWebhookVerifier,
	logger *logrus.Logger,
) *WebhookReconcilerService {
	return &WebhookReconcilerService{
		orchestrator: orchestrator,
		paymentRepo:  paymentRepo,
		bookingRepo:  bookingRepo,
		auditRepo:    auditRepo,
		cardVerifier: cardVerifier,
		logger:       logger,
	}
}

// HandleCardEvent verifies and applies a card provider webhook. A bad
// signature is the only rejection; everything after that is acknowledged so
// the provider stops retrying, with anomalies recorded in the audit trail.
func (s *WebhookReconcilerService) HandleCardEvent(ctx context.Context, payload []byte, signatureHeader string, meta WebhookMeta) error {
	event, err := s.cardVerifier.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		audit := models.NewPaymentAudit(models.PaymentEventSignatureRejected, models.PaymentSourceCardWebhook).
			SetRawBody(string(payload)).
			SetError(err.Error()).
			SetMetadata(meta.IPAddress, meta.UserAgent, meta.DeviceSummary)
		if logErr := s.auditRepo.Log(ctx, audit); logErr != nil {
			s.logger.WithError(logErr).Error("Failed to write audit entry")
		}
		return models.NewSignatureInvalid(err)
	}

	s.logger.WithField("event_type", event.Type).Info("Card webhook received")

	var outcome payment.Status
	switch event.Type {
	case "payment_intent.succeeded":
		outcome = payment.StatusSuccess
	case "payment_intent.payment_failed", "payment_intent.canceled":
		outcome = payment.StatusFailed
	default:
		// Unhandled event types are acknowledged without local effect.
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		s.auditAnomaly(ctx, models.PaymentSourceCardWebhook, string(payload), meta,
			fmt.Sprintf("failed to parse payment intent from event %s: %v", event.Type, err))
		return nil
	}

	receivedAmount := decimal.NewFromInt(intent.Amount).Div(decimal.NewFromInt(100))

	return s.applyOutcome(ctx, applyParams{
		transactionID:  intent.ID,
		outcome:        outcome,
		receivedAmount: receivedAmount,
		currency:       string(intent.Currency),
		rawBody:        string(payload),
		source:         models.PaymentSourceCardWebhook,
		meta:           meta,
	})
}

// walletNotification is the wallet provider's callback payload.
type walletNotification struct {
	PaymentID         string `json:"paymentID"`
	TransactionStatus string `json:"transactionStatus"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	StatusCode        string `json:"statusCode"`
}

// HandleWalletNotification applies a wallet provider callback. The wallet
// API signs nothing, so authenticity is established by resolving the
// transaction reference to a known payment and requiring an exact amount
// match before any state change.
func (s *WebhookReconcilerService) HandleWalletNotification(ctx context.Context, payload []byte, meta WebhookMeta) error {
	var note walletNotification
	if err := json.Unmarshal(payload, &note); err != nil {
		s.auditAnomaly(ctx, models.PaymentSourceWalletWebhook, string(payload), meta,
			fmt.Sprintf("unparseable wallet notification: %v", err))
		return models.NewValidationError("invalid wallet notification payload")
	}
	if note.PaymentID == "" {
		s.auditAnomaly(ctx, models.PaymentSourceWalletWebhook, string(payload), meta,
			"wallet notification missing paymentID")
		return models.NewValidationError("wallet notification missing paymentID")
	}

	receivedAmount, err := decimal.NewFromString(note.Amount)
	if err != nil {
		s.auditAnomaly(ctx, models.PaymentSourceWalletWebhook, string(payload), meta,
			fmt.Sprintf("invalid amount %q in wallet notification", note.Amount))
		return models.NewValidationError("invalid amount in wallet notification")
	}

	var outcome payment.Status
	switch {
	case note.StatusCode == "0000" && note.TransactionStatus == "Completed":
		outcome = payment.StatusSuccess
	case note.TransactionStatus == "Initiated", note.TransactionStatus == "Authorized":
		// Still in progress; record and wait.
		return nil
	default:
		outcome = payment.StatusFailed
	}

	return s.applyOutcome(ctx, applyParams{
		transactionID:  note.PaymentID,
		outcome:        outcome,
		receivedAmount: receivedAmount,
		currency:       note.Currency,
		rawBody:        string(payload),
		source:         models.PaymentSourceWalletWebhook,
		meta:           meta,
	})
}

type applyParams struct {
	transactionID  string
	outcome        payment.Status
	receivedAmount decimal.Decimal
	currency       string
	rawBody        string
	source         models.PaymentEventSource
	meta           WebhookMeta
}

// applyOutcome resolves the transaction reference and settles the payment.
// Unknown references and amount mismatches are audited but acknowledged; a
// replay against a terminal payment is recorded as a duplicate.
func (s *WebhookReconcilerService) applyOutcome(ctx context.Context, p applyParams) error {
	row, err := s.paymentRepo.GetByTransactionID(ctx, p.transactionID)
	if err != nil {
		return err
	}
	if row == nil {
		s.auditAnomaly(ctx, p.source, p.rawBody, p.meta,
			fmt.Sprintf("notification for unknown transaction %s", p.transactionID))
		return nil
	}

	audit := models.NewPaymentAudit(models.PaymentEventWebhookReceived, p.source).
		SetPayment(row.ID).
		SetTransactionID(p.transactionID).
		SetRawBody(p.rawBody).
		SetMetadata(p.meta.IPAddress, p.meta.UserAgent, p.meta.DeviceSummary)
	amountsMatch := audit.SetAmounts(row.Amount, p.receivedAmount, p.currency)
	if row.Status.IsTerminal() {
		audit.MarkAsDuplicate()
	}
	if err := s.auditRepo.Log(ctx, audit); err != nil {
		s.logger.WithError(err).Error("Failed to write audit entry")
	}

	if row.Status.IsTerminal() {
		s.logger.WithFields(logrus.Fields{
			"payment_id":     row.ID,
			"transaction_id": p.transactionID,
			"status":         row.Status,
		}).Info("Webhook replay for settled payment ignored")
		return nil
	}

	if p.outcome == payment.StatusSuccess && !amountsMatch {
		mismatch := models.NewPaymentAudit(models.PaymentEventReconciliationMismatch, p.source).
			SetPayment(row.ID).
			SetTransactionID(p.transactionID).
			SetError(fmt.Sprintf("notified amount %s does not match expected %s", p.receivedAmount, row.Amount))
		mismatch.SetAmounts(row.Amount, p.receivedAmount, p.currency)
		if err := s.auditRepo.Log(ctx, mismatch); err != nil {
			s.logger.WithError(err).Error("Failed to write audit entry")
		}
		s.logger.WithFields(logrus.Fields{
			"payment_id":      row.ID,
			"expected_amount": row.Amount,
			"received_amount": p.receivedAmount,
		}).Warn("Webhook amount mismatch; settlement withheld for review")
		return nil
	}

	booking, err := s.bookingRepo.GetByID(ctx, row.BookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return models.NewNotFound("booking %s not found", row.BookingID)
	}

	raw := models.JSONB{}
	if err := json.Unmarshal([]byte(p.rawBody), &raw); err != nil {
		raw = models.JSONB{"body": p.rawBody}
	}

	if _, err := s.orchestrator.settle(ctx, row, booking, p.outcome, raw, p.source); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id":     row.ID,
		"transaction_id": p.transactionID,
		"outcome":        p.outcome,
	}).Info("Webhook outcome applied")

	return nil
}

func (s *WebhookReconcilerService) auditAnomaly(ctx context.Context, source models.PaymentEventSource, rawBody string, meta WebhookMeta, message string) {
	audit := models.NewPaymentAudit(models.PaymentEventError, source).
		SetRawBody(rawBody).
		SetError(message).
		SetMetadata(meta.IPAddress, meta.UserAgent, meta.DeviceSummary)
	if err := s.auditRepo.Log(ctx, audit); err != nil {
		s.logger.WithError(err).Error("Failed to write audit entry")
	}
	s.logger.WithField("source", source).Warn(message)
}
