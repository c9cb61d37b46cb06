package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/estatevista/booking-backend/internal/database"
	"github.com/estatevista/booking-backend/internal/models"
	"github.com/estatevista/booking-backend/pkg/payment"
)

// PaymentOrchestratorService drives a payment attempt through its lifecycle:
// initiation against a provider, confirmation, settlement and refund. All
// provider calls happen outside database transactions; local state is only
// committed once the provider outcome is known.
type PaymentOrchestratorService struct {
	bookingRepo     *database.BookingRepository
	paymentRepo     *database.PaymentRepository
	auditRepo       *database.PaymentAuditRepository
	registry        *payment.Registry
	defaultCurrency string
	logger          *logrus.Logger
}

// NewPaymentOrchestratorService creates a new payment orchestrator
func NewPaymentOrchestratorService(
	bookingRepo *database.BookingRepository,
	paymentRepo *database.PaymentRepository,
	auditRepo *database.PaymentAuditRepository,
	registry *payment.Registry,
	defaultCurrency string,
	logger *logrus.Logger,
) *PaymentOrchestratorService {
	return &PaymentOrchestratorService{
		bookingRepo:     bookingRepo,
		paymentRepo:     paymentRepo,
		auditRepo:       auditRepo,
		registry:        registry,
		defaultCurrency: defaultCurrency,
		logger:          logger,
	}
}

// CreatePayment initiates a payment attempt for a pending booking. The
// amount always comes from the booking's stored total; clients never supply
// it. Exactly one unresolved attempt may exist per booking.
func (s *PaymentOrchestratorService) CreatePayment(ctx context.Context, userID uuid.UUID, req *models.CreatePaymentRequest) (*models.CreatePaymentResponse, error) {
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		return nil, models.NewValidationError("invalid booking id: %s", req.BookingID)
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil || booking.UserID != userID {
		return nil, models.NewNotFound("booking %s not found", bookingID)
	}

	if booking.Status != models.BookingStatusPending {
		return nil, models.ErrBookingNotPayable(booking.Status)
	}

	inFlight, err := s.paymentRepo.HasInFlight(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if inFlight {
		return nil, models.ErrPaymentAlreadyInFlight()
	}

	provider, err := s.registry.Lookup(req.Provider)
	if err != nil {
		return nil, mapProviderError(err)
	}

	currency := req.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	paymentID := uuid.New()
	result, err := provider.CreatePayment(ctx, payment.CreateRequest{
		ReferenceID: paymentID.String(),
		Amount:      booking.TotalAmount,
		Currency:    currency,
		Description: fmt.Sprintf("Property visit booking %s", bookingID),
	})
	if err != nil {
		s.auditProviderFailure(ctx, paymentID, models.PaymentEventInitiated, err)
		return nil, mapProviderError(err)
	}

	row := &models.Payment{
		ID:            paymentID,
		BookingID:     bookingID,
		Provider:      models.PaymentProvider(provider.Name()),
		TransactionID: result.TransactionID,
		Amount:        booking.TotalAmount,
		Currency:      currency,
		Status:        models.PaymentStatusProcessing,
		RawResponse:   models.JSONB(result.Raw),
	}
	if err := s.paymentRepo.Create(ctx, row); err != nil {
		// The provider object is now orphaned; the transaction reference in
		// the audit trail is what allows manual reconciliation.
		audit := models.NewPaymentAudit(models.PaymentEventError, models.PaymentSourceBackend).
			SetPayment(paymentID).
			SetTransactionID(result.TransactionID).
			SetError(fmt.Sprintf("failed to persist payment after provider create: %v", err))
		if logErr := s.auditRepo.Log(ctx, audit); logErr != nil {
			s.logger.WithError(logErr).Error("Failed to write audit entry")
		}
		return nil, err
	}

	audit := models.NewPaymentAudit(models.PaymentEventInitiated, models.PaymentSourceBackend).
		SetPayment(paymentID).
		SetTransactionID(result.TransactionID).
		SetPaymentStatus(string(result.Status))
	audit.SetAmounts(booking.TotalAmount, booking.TotalAmount, currency)
	if err := s.auditRepo.Log(ctx, audit); err != nil {
		s.logger.WithError(err).Error("Failed to write audit entry")
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id":     paymentID,
		"booking_id":     bookingID,
		"provider":       provider.Name(),
		"transaction_id": result.TransactionID,
		"amount":         booking.TotalAmount,
	}).Info("Payment initiated")

	return &models.CreatePaymentResponse{
		PaymentID:     paymentID,
		TransactionID: result.TransactionID,
		Amount:        booking.TotalAmount,
		Currency:      currency,
		ClientSecret:  result.ClientSecret,
		RedirectURL:   result.RedirectURL,
	}, nil
}

// ConfirmPayment resolves an in-flight payment against the provider and
// settles local state. Confirming an already settled payment returns the
// settled state without another provider call.
func (s *PaymentOrchestratorService) ConfirmPayment(ctx context.Context, userID, paymentID uuid.UUID) (*models.SettlementResult, error) {
	row, booking, err := s.getOwnedPayment(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}

	if row.Status.IsTerminal() {
		return &models.SettlementResult{
			PaymentID:     row.ID,
			BookingID:     booking.ID,
			PaymentStatus: row.Status,
			BookingStatus: booking.Status,
		}, nil
	}

	provider, err := s.registry.Lookup(string(row.Provider))
	if err != nil {
		return nil, mapProviderError(err)
	}

	result, err := provider.ConfirmPayment(ctx, row.TransactionID)
	if err != nil {
		s.auditProviderFailure(ctx, row.ID, models.PaymentEventError, err)
		return nil, mapProviderError(err)
	}

	return s.settle(ctx, row, booking, result.Status, models.JSONB(result.Raw), models.PaymentSourceBackend)
}

// RefundPayment refunds a successful payment and cancels its booking.
func (s *PaymentOrchestratorService) RefundPayment(ctx context.Context, userID, paymentID uuid.UUID, req *models.RefundPaymentRequest) (*models.RefundResult, error) {
	row, booking, err := s.getOwnedPayment(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}

	if row.Status != models.PaymentStatusSuccess {
		return nil, models.NewStateConflict("only successful payments can be refunded (status: %s)", row.Status)
	}

	// An omitted amount refunds the full payment; providers always receive
	// an explicit figure.
	amount := row.Amount
	if req != nil && req.Amount != nil {
		amount = *req.Amount
		if !amount.IsPositive() || amount.GreaterThan(row.Amount) {
			return nil, models.NewValidationError("refund amount must be positive and at most %s", row.Amount)
		}
	}

	provider, err := s.registry.Lookup(string(row.Provider))
	if err != nil {
		return nil, mapProviderError(err)
	}

	result, err := provider.RefundPayment(ctx, row.TransactionID, amount, row.Currency)
	if err != nil {
		s.auditProviderFailure(ctx, row.ID, models.PaymentEventRefundInitiated, err)
		return nil, mapProviderError(err)
	}

	applied, err := s.paymentRepo.MarkRefunded(ctx, row.ID, models.JSONB(result.Raw))
	if err != nil {
		return nil, err
	}

	if applied && booking.Status == models.BookingStatusPaid {
		if _, err := s.bookingRepo.TransitionStatus(ctx, booking.ID, models.BookingStatusCanceled); err != nil {
			// Refund already happened at the provider; surface the booking
			// inconsistency but do not fail the refund.
			s.logger.WithError(err).WithField("booking_id", booking.ID).
				Error("Refund applied but booking cancellation failed")
		}
	}

	audit := models.NewPaymentAudit(models.PaymentEventRefundCompleted, models.PaymentSourceBackend).
		SetPayment(row.ID).
		SetTransactionID(row.TransactionID).
		SetPaymentStatus(string(models.PaymentStatusRefunded))
	if err := s.auditRepo.Log(ctx, audit); err != nil {
		s.logger.WithError(err).Error("Failed to write audit entry")
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id": row.ID,
		"refund_id":  result.RefundID,
		"booking_id": booking.ID,
	}).Info("Payment refunded")

	return &models.RefundResult{
		PaymentID: row.ID,
		RefundID:  result.RefundID,
		Status:    models.PaymentStatusRefunded,
	}, nil
}

// GetPayment retrieves a payment owned by the user.
func (s *PaymentOrchestratorService) GetPayment(ctx context.Context, userID, paymentID uuid.UUID) (*models.Payment, error) {
	row, _, err := s.getOwnedPayment(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// CheckProviderStatus polls the provider for the current state of an
// in-flight payment and settles it when the provider reports a terminal
// outcome. Useful when the client lost the redirect flow and no webhook has
// arrived yet. An already-settled payment is returned as is.
func (s *PaymentOrchestratorService) CheckProviderStatus(ctx context.Context, userID, paymentID uuid.UUID) (*models.SettlementResult, error) {
	row, booking, err := s.getOwnedPayment(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}

	if row.Status.IsTerminal() {
		return &models.SettlementResult{
			PaymentID:     row.ID,
			BookingID:     booking.ID,
			PaymentStatus: row.Status,
			BookingStatus: booking.Status,
		}, nil
	}

	request := models.NewPaymentAudit(models.PaymentEventStatusCheckRequest, models.PaymentSourceBackend).
		SetPayment(row.ID).
		SetTransactionID(row.TransactionID)
	if err := s.auditRepo.Log(ctx, request); err != nil {
		s.logger.WithError(err).Error("Failed to write audit entry")
	}

	provider, err := s.registry.Lookup(string(row.Provider))
	if err != nil {
		return nil, mapProviderError(err)
	}

	result, err := provider.GetStatus(ctx, row.TransactionID)
	if err != nil {
		s.auditProviderFailure(ctx, row.ID, models.PaymentEventStatusCheckResponse, err)
		return nil, mapProviderError(err)
	}

	response := models.NewPaymentAudit(models.PaymentEventStatusCheckResponse, models.PaymentSourceProviderAPI).
		SetPayment(row.ID).
		SetTransactionID(row.TransactionID).
		SetPaymentStatus(string(result.Status))
	if err := s.auditRepo.Log(ctx, response); err != nil {
		s.logger.WithError(err).Error("Failed to write audit entry")
	}

	return s.settle(ctx, row, booking, result.Status, models.JSONB(result.Raw), models.PaymentSourceBackend)
}

// ListPayments retrieves the payment attempts for a booking the user owns.
func (s *PaymentOrchestratorService) ListPayments(ctx context.Context, userID, bookingID uuid.UUID) ([]models.Payment, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil || booking.UserID != userID {
		return nil, models.NewNotFound("booking %s not found", bookingID)
	}
	return s.paymentRepo.ListByBooking(ctx, bookingID)
}

// settle applies a provider outcome to local state. Pending outcomes leave
// the row in processing; success and failure are terminal. The first writer
// wins: if the row settled in the meantime the stored state is returned.
func (s *PaymentOrchestratorService) settle(ctx context.Context, row *models.Payment, booking *models.Booking, outcome payment.Status, raw models.JSONB, source models.PaymentEventSource) (*models.SettlementResult, error) {
	switch outcome {
	case payment.StatusSuccess:
		applied, err := s.paymentRepo.SettleSuccess(ctx, row.ID, raw)
		if err != nil {
			return nil, err
		}
		if applied {
			row.Status = models.PaymentStatusSuccess
			booking.Status = models.BookingStatusPaid
			s.auditOutcome(ctx, row, models.PaymentEventSuccess, source)
		} else {
			return s.currentState(ctx, row.ID)
		}

	case payment.StatusFailed:
		applied, err := s.paymentRepo.MarkFailed(ctx, row.ID, raw)
		if err != nil {
			return nil, err
		}
		if applied {
			row.Status = models.PaymentStatusFailed
			s.auditOutcome(ctx, row, models.PaymentEventFailed, source)
		} else {
			return s.currentState(ctx, row.ID)
		}

	case payment.StatusPending:
		if err := s.paymentRepo.UpdateRawResponse(ctx, row.ID, raw); err != nil {
			return nil, err
		}
	}

	return &models.SettlementResult{
		PaymentID:     row.ID,
		BookingID:     booking.ID,
		PaymentStatus: row.Status,
		BookingStatus: booking.Status,
	}, nil
}

// currentState re-reads the settled state after losing a settlement race.
func (s *PaymentOrchestratorService) currentState(ctx context.Context, paymentID uuid.UUID) (*models.SettlementResult, error) {
	row, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, models.NewNotFound("payment %s not found", paymentID)
	}
	booking, err := s.bookingRepo.GetByID(ctx, row.BookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.NewNotFound("booking %s not found", row.BookingID)
	}
	return &models.SettlementResult{
		PaymentID:     row.ID,
		BookingID:     booking.ID,
		PaymentStatus: row.Status,
		BookingStatus: booking.Status,
	}, nil
}

func (s *PaymentOrchestratorService) getOwnedPayment(ctx context.Context, userID, paymentID uuid.UUID) (*models.Payment, *models.Booking, error) {
	row, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if row == nil {
		return nil, nil, models.NewNotFound("payment %s not found", paymentID)
	}

	booking, err := s.bookingRepo.GetByID(ctx, row.BookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking == nil || booking.UserID != userID {
		return nil, nil, models.NewNotFound("payment %s not found", paymentID)
	}

	return row, booking, nil
}

func (s *PaymentOrchestratorService) auditOutcome(ctx context.Context, row *models.Payment, eventType models.PaymentEventType, source models.PaymentEventSource) {
	audit := models.NewPaymentAudit(eventType, source).
		SetPayment(row.ID).
		SetTransactionID(row.TransactionID).
		SetPaymentStatus(string(row.Status))
	if err := s.auditRepo.Log(ctx, audit); err != nil {
		s.logger.WithError(err).Error("Failed to write audit entry")
	}
}

func (s *PaymentOrchestratorService) auditProviderFailure(ctx context.Context, paymentID uuid.UUID, eventType models.PaymentEventType, callErr error) {
	audit := models.NewPaymentAudit(eventType, models.PaymentSourceProviderAPI).
		SetPayment(paymentID).
		SetError(callErr.Error())
	if err := s.auditRepo.Log(ctx, audit); err != nil {
		s.logger.WithError(err).Error("Failed to write audit entry")
	}
}

// mapProviderError converts pkg/payment errors into domain errors.
func mapProviderError(err error) error {
	var unknown *payment.ErrUnknownProvider
	if errors.As(err, &unknown) {
		return models.ErrUnsupportedProvider(unknown.Name)
	}

	var provErr *payment.Error
	if errors.As(err, &provErr) {
		return models.NewProviderError(fmt.Sprintf("%s provider %s failed", provErr.Provider, provErr.Op), err)
	}

	return err
}
