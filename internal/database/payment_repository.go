package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/estatevista/booking-backend/internal/models"
)

// PaymentRepository handles database operations for the payments table.
// Payment rows are append-mostly: status moves forward, rows are never deleted.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a new payment attempt. A partial unique index on
// payments(booking_id) WHERE status IN ('pending','processing') enforces the
// single in-flight attempt rule; a unique index on transaction_id enforces
// reconciliation key uniqueness. Both violations surface as typed errors.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}

	query := `
		INSERT INTO payments (
			id, booking_id, provider, transaction_id,
			amount, currency, status, raw_response
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx, query,
		payment.ID, payment.BookingID, payment.Provider, payment.TransactionID,
		payment.Amount, payment.Currency, payment.Status, payment.RawResponse,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "transaction_id") {
				return models.NewStateConflict("transaction %s already recorded", payment.TransactionID)
			}
			return models.ErrPaymentAlreadyInFlight()
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by ID. Returns nil without error when no row
// exists.
func (r *PaymentRepository) GetByID(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	query := `
		SELECT id, booking_id, provider, transaction_id,
			   amount, currency, status, raw_response,
			   created_at, updated_at
		FROM payments
		WHERE id = $1
	`

	var payment models.Payment
	err := r.db.GetContext(ctx, &payment, query, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return &payment, nil
}

// GetByTransactionID retrieves a payment by its provider transaction
// reference. Webhook reconciliation resolves payments through this key.
func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	query := `
		SELECT id, booking_id, provider, transaction_id,
			   amount, currency, status, raw_response,
			   created_at, updated_at
		FROM payments
		WHERE transaction_id = $1
	`

	var payment models.Payment
	err := r.db.GetContext(ctx, &payment, query, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment by transaction: %w", err)
	}

	return &payment, nil
}

// ListByBooking retrieves all payment attempts for a booking, newest first.
func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	query := `
		SELECT id, booking_id, provider, transaction_id,
			   amount, currency, status, raw_response,
			   created_at, updated_at
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at DESC
	`

	payments := []models.Payment{}
	if err := r.db.SelectContext(ctx, &payments, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return payments, nil
}

// HasInFlight reports whether the booking has a pending or processing payment.
func (r *PaymentRepository) HasInFlight(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM payments
		WHERE booking_id = $1
		  AND status IN ('pending', 'processing')
	`

	if err := r.db.GetContext(ctx, &count, query, bookingID); err != nil {
		return false, fmt.Errorf("failed to check in-flight payments: %w", err)
	}

	return count > 0, nil
}

// SettleSuccess atomically marks the payment success and the booking paid.
// Both rows are locked FOR UPDATE; if the payment is already terminal the
// call is a no-op and returns applied=false, so duplicate confirmations and
// webhook replays converge on the first writer's outcome.
func (r *PaymentRepository) SettleSuccess(ctx context.Context, paymentID uuid.UUID, rawResponse models.JSONB) (applied bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	payment, err := lockPayment(ctx, tx, paymentID)
	if err != nil {
		return false, err
	}
	if payment == nil {
		return false, models.NewNotFound("payment %s not found", paymentID)
	}

	if payment.Status.IsTerminal() {
		return false, nil
	}

	booking, err := lockBooking(ctx, tx, payment.BookingID)
	if err != nil {
		return false, err
	}
	if booking == nil {
		return false, models.NewNotFound("booking %s not found", payment.BookingID)
	}

	if !booking.Status.CanTransitionTo(models.BookingStatusPaid) {
		return false, models.ErrIllegalTransition(booking.Status, models.BookingStatusPaid)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE payments
		SET status = 'success', raw_response = $2, updated_at = NOW()
		WHERE id = $1
	`, paymentID, rawResponse)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment success: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'paid', updated_at = NOW()
		WHERE id = $1
	`, payment.BookingID)
	if err != nil {
		return false, fmt.Errorf("failed to mark booking paid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit settlement: %w", err)
	}

	return true, nil
}

// MarkFailed moves an in-flight payment to failed. Terminal payments are left
// untouched and applied=false is returned.
func (r *PaymentRepository) MarkFailed(ctx context.Context, paymentID uuid.UUID, rawResponse models.JSONB) (applied bool, err error) {
	return r.markTerminal(ctx, paymentID, models.PaymentStatusFailed, rawResponse, false)
}

// MarkRefunded moves a successful payment to refunded. Only success may move
// to refunded; any other current status returns applied=false.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, paymentID uuid.UUID, rawResponse models.JSONB) (applied bool, err error) {
	return r.markTerminal(ctx, paymentID, models.PaymentStatusRefunded, rawResponse, true)
}

func (r *PaymentRepository) markTerminal(ctx context.Context, paymentID uuid.UUID, target models.PaymentStatus, rawResponse models.JSONB, fromSuccess bool) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	payment, err := lockPayment(ctx, tx, paymentID)
	if err != nil {
		return false, err
	}
	if payment == nil {
		return false, models.NewNotFound("payment %s not found", paymentID)
	}

	if fromSuccess {
		if payment.Status != models.PaymentStatusSuccess {
			return false, nil
		}
	} else if payment.Status.IsTerminal() {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, raw_response = $3, updated_at = NOW()
		WHERE id = $1
	`, paymentID, target, rawResponse)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment %s: %w", target, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit payment update: %w", err)
	}

	return true, nil
}

// lockPayment reads a payment row FOR UPDATE inside tx. Returns nil when the
// row does not exist.
func lockPayment(ctx context.Context, tx *sqlx.Tx, paymentID uuid.UUID) (*models.Payment, error) {
	query := `
		SELECT id, booking_id, provider, transaction_id,
			   amount, currency, status, raw_response,
			   created_at, updated_at
		FROM payments
		WHERE id = $1
		FOR UPDATE
	`

	var payment models.Payment
	err := tx.GetContext(ctx, &payment, query, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}

	return &payment, nil
}

// UpdateRawResponse stores the latest provider payload for an in-flight
// payment without changing status.
func (r *PaymentRepository) UpdateRawResponse(ctx context.Context, paymentID uuid.UUID, rawResponse models.JSONB) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET raw_response = $2, updated_at = NOW()
		WHERE id = $1
	`, paymentID, rawResponse)
	if err != nil {
		return fmt.Errorf("failed to update payment response: %w", err)
	}
	return nil
}
