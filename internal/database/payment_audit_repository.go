package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/estatevista/booking-backend/internal/models"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log creates a new payment audit entry
// This should NEVER fail silently - payment events must be logged
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, payment_id, transaction_id,
			event_type, event_source,
			expected_amount, received_amount, currency, amounts_match,
			payment_status, raw_body, error_message,
			is_duplicate, ip_address, user_agent, device_summary,
			created_at
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16,
			$17
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.PaymentID, audit.TransactionID,
		audit.EventType, audit.EventSource,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.Currency, audit.AmountsMatch,
		audit.PaymentStatus, audit.RawBody, audit.ErrorMessage,
		audit.IsDuplicate, audit.IPAddress, audit.UserAgent, audit.DeviceSummary,
		audit.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":     audit.EventType,
			"transaction_id": audit.TransactionID,
		}).Error("CRITICAL: Failed to log payment audit - THIS SHOULD NEVER HAPPEN")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":       audit.ID,
		"event_type":     audit.EventType,
		"transaction_id": audit.TransactionID,
	}).Debug("Payment audit logged")

	return nil
}

// CheckDuplicate checks if a webhook event has already been processed for a
// transaction. Returns true if duplicate, false if new.
func (r *PaymentAuditRepository) CheckDuplicate(ctx context.Context, transactionID string, eventType models.PaymentEventType) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM payment_audits
		WHERE transaction_id = $1
		AND event_type = $2
		AND is_duplicate = FALSE`

	err := r.db.GetContext(ctx, &count, query, transactionID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}

	return count > 0, nil
}

// GetByPaymentID retrieves the audit trail for a payment, oldest first.
func (r *PaymentAuditRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*models.PaymentAudit, error) {
	query := `
		SELECT * FROM payment_audits
		WHERE payment_id = $1
		ORDER BY created_at ASC`

	var audits []*models.PaymentAudit
	if err := r.db.SelectContext(ctx, &audits, query, paymentID); err != nil {
		return nil, fmt.Errorf("failed to get audit trail: %w", err)
	}

	return audits, nil
}

// GetAmountMismatches retrieves recent events where the notified amount did
// not match the expected amount. Reconciliation reviews feed off this.
func (r *PaymentAuditRepository) GetAmountMismatches(ctx context.Context, limit int) ([]*models.PaymentAudit, error) {
	query := `
		SELECT * FROM payment_audits
		WHERE amounts_match = FALSE
		ORDER BY created_at DESC
		LIMIT $1`

	var audits []*models.PaymentAudit
	if err := r.db.SelectContext(ctx, &audits, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get amount mismatches: %w", err)
	}

	return audits, nil
}
