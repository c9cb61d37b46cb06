package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatevista/booking-backend/internal/database"
	"github.com/estatevista/booking-backend/internal/models"
	"github.com/estatevista/booking-backend/pkg/payment"
)

// stubProvider is a scriptable payment.Provider that records calls.
type stubProvider struct {
	name string

	createResult *payment.CreateResult
	createErr    error
	createCalls  int
	lastCreate   payment.CreateRequest

	confirmResult *payment.ConfirmResult
	confirmErr    error
	confirmCalls  int

	refundResult *payment.RefundResult
	refundErr    error
	refundCalls  int
	lastRefund   decimal.Decimal

	statusResult *payment.StatusResult
	statusErr    error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.CreateResult, error) {
	p.createCalls++
	p.lastCreate = req
	return p.createResult, p.createErr
}

func (p *stubProvider) ConfirmPayment(ctx context.Context, transactionID string) (*payment.ConfirmResult, error) {
	p.confirmCalls++
	return p.confirmResult, p.confirmErr
}

func (p *stubProvider) RefundPayment(ctx context.Context, transactionID string, amount decimal.Decimal, currency string) (*payment.RefundResult, error) {
	p.refundCalls++
	p.lastRefund = amount
	return p.refundResult, p.refundErr
}

func (p *stubProvider) GetStatus(ctx context.Context, transactionID string) (*payment.StatusResult, error) {
	return p.statusResult, p.statusErr
}

func newTestOrchestrator(t *testing.T, providers ...payment.Provider) (*PaymentOrchestratorService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	orchestrator := NewPaymentOrchestratorService(
		database.NewBookingRepository(db),
		database.NewPaymentRepository(db),
		database.NewPaymentAuditRepository(db, logger),
		payment.NewRegistry(providers...),
		"usd",
		logger,
	)
	return orchestrator, mock
}

func ownedBookingRow(bookingID, userID uuid.UUID, status models.BookingStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(bookingColumns()).AddRow(
		bookingID, userID, uuid.New(), now.AddDate(0, 0, 7), nil,
		"100.00", "5.00", "10.50", "115.50",
		status, "", now, now,
	)
}

func paymentRowWith(paymentID, bookingID uuid.UUID, provider, transactionID string, status models.PaymentStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(paymentColumns()).AddRow(
		paymentID, bookingID, provider, transactionID,
		"115.50", "usd", status, []byte(`{}`),
		now, now,
	)
}

func TestCreatePaymentBookingNotPayable(t *testing.T) {
	card := &stubProvider{name: "card"}
	orchestrator, mock := newTestOrchestrator(t, card)

	userID := uuid.New()
	bookingID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM bookings`).
		WithArgs(bookingID).
		WillReturnRows(ownedBookingRow(bookingID, userID, models.BookingStatusPaid))

	resp, err := orchestrator.CreatePayment(context.Background(), userID, &models.CreatePaymentRequest{
		BookingID: bookingID.String(),
		Provider:  "card",
	})
	assert.Nil(t, resp)
	assert.True(t, models.IsKind(err, models.KindStateConflict))
	assert.Contains(t, err.Error(), "not payable")
	assert.Equal(t, 0, card.createCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaymentAlreadyInFlight(t *testing.T) {
	card := &stubProvider{name: "card"}
	orchestrator, mock := newTestOrchestrator(t, card)

	userID := uuid.New()
	bookingID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM bookings`).
		WithArgs(bookingID).
		WillReturnRows(ownedBookingRow(bookingID, userID, models.BookingStatusPending))
	mock.ExpectQuery(`SELECT COUNT(.+) FROM payments`).
		WithArgs(bookingID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	resp, err := orchestrator.CreatePayment(context.Background(), userID, &models.CreatePaymentRequest{
		BookingID: bookingID.String(),
		Provider:  "card",
	})
	assert.Nil(t, resp)
	assert.True(t, models.IsKind(err, models.KindStateConflict))
	assert.Contains(t, err.Error(), "unresolved payment")
	assert.Equal(t, 0, card.createCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaymentUnknownProvider(t *testing.T) {
	orchestrator, mock := newTestOrchestrator(t)

	userID := uuid.New()
	bookingID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM bookings`).
		WithArgs(bookingID).
		WillReturnRows(ownedBookingRow(bookingID, userID, models.BookingStatusPending))
	mock.ExpectQuery(`SELECT COUNT(.+) FROM payments`).
		WithArgs(bookingID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	resp, err := orchestrator.CreatePayment(context.Background(), userID, &models.CreatePaymentRequest{
		BookingID: bookingID.String(),
		Provider:  "crypto",
	})
	assert.Nil(t, resp)
	assert.True(t, models.IsKind(err, models.KindUnsupportedProvider))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaymentNotOwned(t *testing.T) {
	card := &stubProvider{name: "card"}
	orchestrator, mock := newTestOrchestrator(t, card)

	bookingID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM bookings`).
		WithArgs(bookingID).
		WillReturnRows(ownedBookingRow(bookingID, uuid.New(), models.BookingStatusPending))

	resp, err := orchestrator.CreatePayment(context.Background(), uuid.New(), &models.CreatePaymentRequest{
		BookingID: bookingID.String(),
		Provider:  "card",
	})
	assert.Nil(t, resp)
	assert.True(t, models.IsKind(err, models.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaymentSuccess(t *testing.T) {
	card := &stubProvider{
		name: "card",
		createResult: &payment.CreateResult{
			TransactionID: "pi_new",
			ClientSecret:  "pi_new_secret",
			Status:        payment.StatusPending,
			Raw:           map[string]interface{}{"id": "pi_new"},
		},
	}
	orchestrator, mock := newTestOrchestrator(t, card)

	userID := uuid.New()
	bookingID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM bookings`).
		WithArgs(bookingID).
		WillReturnRows(ownedBookingRow(bookingID, userID, models.BookingStatusPending))
	mock.ExpectQuery(`SELECT COUNT(.+) FROM payments`).
		WithArgs(bookingID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO payments`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now(), time.Now()))
	mock.ExpectExec(`INSERT INTO payment_audits`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := orchestrator.CreatePayment(context.Background(), userID, &models.CreatePaymentRequest{
		BookingID: bookingID.String(),
		Provider:  "card",
	})
	require.NoError(t, err)

	assert.Equal(t, "pi_new", resp.TransactionID)
	assert.Equal(t, "pi_new_secret", resp.ClientSecret)
	assert.True(t, resp.Amount.Equal(decimal.RequireFromString("115.50")))
	assert.Equal(t, "usd", resp.Currency)

	// The provider is charged the booking's stored total, keyed by our id.
	assert.Equal(t, 1, card.createCalls)
	assert.True(t, card.lastCreate.Amount.Equal(decimal.RequireFromString("115.50")))
	assert.Equal(t, "usd", card.lastCreate.Currency)
	assert.Equal(t, resp.PaymentID.String(), card.lastCreate.ReferenceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaymentProviderFailure(t *testing.T) {
	card := &stubProvider{
		name:      "card",
		createErr: &payment.Error{Provider: "card", Op: "create", Message: "intent creation failed"},
	}
	orchestrator, mock := newTestOrchestrator(t, card)

	userID := uuid.New()
	bookingID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM bookings`).
		WithArgs(bookingID).
		WillReturnRows(ownedBookingRow(bookingID, userID, models.BookingStatusPending))
	mock.ExpectQuery(`SELECT COUNT(.+) FROM payments`).
		WithArgs(bookingID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	// The failure is audited; no payment row is written.
	mock.ExpectExec(`INSERT INTO payment_audits`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := orchestrator.CreatePayment(context.Background(), userID, &models.CreatePaymentRequest{
		BookingID: bookingID.String(),
		Provider:  "card",
	})
	assert.Nil(t, resp)
	assert.True(t, models.IsKind(err, models.KindProvider))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmPaymentTerminalIsNoOp(t *testing.T) {
	card := &stubProvider{name: "card"}
	orchestrator, mock := newTestOrchestrator(t, card)

	userID := uuid.New()
	paymentID := uuid.New()
	bookingID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM payments`).
		WithArgs(paymentID).
		WillReturnRows(paymentRowWith(paymentID, bookingID, "card", "pi_done", models.PaymentStatusSuccess))
	mock.ExpectQuery(`SELECT (.+) FROM bookings`).
		WithArgs(bookingID).
		WillReturnRows(ownedBookingRow(bookingID, userID, models.BookingStatusPaid))

	result, err := orchestrator.ConfirmPayment(context.Background(), userID, paymentID)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusSuccess, result.PaymentStatus)
	assert.Equal(t, models.BookingStatusPaid, result.BookingStatus)
	assert.Equal(t, 0, card.confirmCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmPaymentFailedOutcome(t *testing.T) {
	card := &stubProvider{
		name: "card",
		confirmResult: &payment.ConfirmResult{
			TransactionID: "pi_declined",
			Status:        payment.StatusFailed,
			Raw:           map[string]interface{}{"status": "canceled"},
		},
	}
	orchestrator, mock := newTestOrchestrator(t, card)

	userID := uuid.New()
	paymentID := uuid.New()
	bookingID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM payments`).
		WithArgs(paymentID).
		WillReturnRows(paymentRowWith(paymentID, bookingID, "card", "pi_declined", models.PaymentStatusProcessing))
	mock.ExpectQuery(`SELECT (.+) FROM bookings`).
		WithArgs(bookingID).
		WillReturnRows(ownedBookingRow(bookingID, userID, models.BookingStatusPending))

	// Only the payment moves; the booking stays pending.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM payments(.+)FOR UPDATE`).
		WithArgs(paymentID).
		WillReturnRows(paymentRowWith(paymentID, bookingID, "card", "pi_declined", models.PaymentStatusProcessing))
	mock.ExpectExec(`UPDATE payments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO payment_audits`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := orchestrator.ConfirmPayment(context.Background(), userID, paymentID)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusFailed, result.PaymentStatus)
	assert.Equal(t, models.BookingStatusPending, result.BookingStatus)
	assert.Equal(t, 1, card.confirmCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundPaymentDefaultsToFullAmount(t *testing.T) {
	wallet := &stubProvider{
		name: "wallet",
		refundResult: &payment.RefundResult{
			RefundID: "RF001",
			Status:   payment.StatusSuccess,
			Raw:      map[string]interface{}{"refundTrxID": "RF001"},
		},
	}
	orchestrator, mock := newTestOrchestrator(t, wallet)

	userID := uuid.New()
	paymentID := uuid.New()
	bookingID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM payments`).
		WithArgs(paymentID).
		WillReturnRows(paymentRowWith(paymentID, bookingID, "wallet", "TR0011ref", models.PaymentStatusSuccess))
	mock.ExpectQuery(`SELECT (.+) FROM bookings`).
		WithArgs(bookingID).
		WillReturnRows(ownedBookingRow(bookingID, userID, models.BookingStatusPaid))

	// Payment → refunded.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM payments(.+)FOR UPDATE`).
		WithArgs(paymentID).
		WillReturnRows(paymentRowWith(paymentID, bookingID, "wallet", "TR0011ref", models.PaymentStatusSuccess))
	mock.ExpectExec(`UPDATE payments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Booking → canceled.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM bookings(.+)FOR UPDATE`).
		WithArgs(bookingID).
		WillReturnRows(ownedBookingRow(bookingID, userID, models.BookingStatusPaid))
	mock.ExpectQuery(`UPDATE bookings`).
		WithArgs(bookingID, models.BookingStatusCanceled).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	mock.ExpectExec(`INSERT INTO payment_audits`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := orchestrator.RefundPayment(context.Background(), userID, paymentID, nil)
	require.NoError(t, err)

	assert.Equal(t, "RF001", result.RefundID)
	assert.Equal(t, models.PaymentStatusRefunded, result.Status)

	// The omitted amount means the full stored amount, never zero.
	assert.Equal(t, 1, wallet.refundCalls)
	assert.True(t, wallet.lastRefund.Equal(decimal.RequireFromString("115.50")),
		"refunded %s", wallet.lastRefund)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundPaymentRejectsBadAmounts(t *testing.T) {
	tests := []struct {
		name   string
		amount string
	}{
		{"Zero", "0.00"},
		{"Negative", "-5.00"},
		{"Exceeds Payment", "200.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wallet := &stubProvider{name: "wallet"}
			orchestrator, mock := newTestOrchestrator(t, wallet)

			userID := uuid.New()
			paymentID := uuid.New()
			bookingID := uuid.New()

			mock.ExpectQuery(`SELECT (.+) FROM payments`).
				WithArgs(paymentID).
				WillReturnRows(paymentRowWith(paymentID, bookingID, "wallet", "TR0011bad", models.PaymentStatusSuccess))
			mock.ExpectQuery(`SELECT (.+) FROM bookings`).
				WithArgs(bookingID).
				WillReturnRows(ownedBookingRow(bookingID, userID, models.BookingStatusPaid))

			amount := decimal.RequireFromString(tt.amount)
			result, err := orchestrator.RefundPayment(context.Background(), userID, paymentID, &models.RefundPaymentRequest{
				Amount: &amount,
			})
			assert.Nil(t, result)
			assert.True(t, models.IsKind(err, models.KindValidation))
			assert.Equal(t, 0, wallet.refundCalls)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRefundPaymentRequiresSuccess(t *testing.T) {
	wallet := &stubProvider{name: "wallet"}
	orchestrator, mock := newTestOrchestrator(t, wallet)

	userID := uuid.New()
	paymentID := uuid.New()
	bookingID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM payments`).
		WithArgs(paymentID).
		WillReturnRows(paymentRowWith(paymentID, bookingID, "wallet", "TR0011wip", models.PaymentStatusProcessing))
	mock.ExpectQuery(`SELECT (.+) FROM bookings`).
		WithArgs(bookingID).
		WillReturnRows(ownedBookingRow(bookingID, userID, models.BookingStatusPending))

	result, err := orchestrator.RefundPayment(context.Background(), userID, paymentID, nil)
	assert.Nil(t, result)
	assert.True(t, models.IsKind(err, models.KindStateConflict))
	assert.Equal(t, 0, wallet.refundCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
