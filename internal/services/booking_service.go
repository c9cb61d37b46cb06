package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/estatevista/booking-backend/internal/database"
	"github.com/estatevista/booking-backend/internal/models"
)

// BookingService handles the booking lifecycle: creation with a priced
// quote, reads, and user-driven cancellation. Payment-driven transitions
// live in the payment orchestrator.
type BookingService struct {
	bookingRepo  *database.BookingRepository
	propertyRepo *database.PropertyRepository
	paymentRepo  *database.PaymentRepository
	pricing      *PricingService
	logger       *logrus.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookingRepo *database.BookingRepository,
	propertyRepo *database.PropertyRepository,
	paymentRepo *database.PaymentRepository,
	pricing *PricingService,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		bookingRepo:  bookingRepo,
		propertyRepo: propertyRepo,
		paymentRepo:  paymentRepo,
		pricing:      pricing,
		logger:       logger,
	}
}

// CreateBooking validates the request against the property catalog, prices
// the visit and inserts the booking in pending status. Amounts are fixed
// here and never recomputed.
func (s *BookingService) CreateBooking(ctx context.Context, userID uuid.UUID, req *models.CreateBookingRequest) (*models.Booking, error) {
	propertyID, err := uuid.Parse(req.PropertyID)
	if err != nil {
		return nil, models.NewValidationError("invalid property id: %s", req.PropertyID)
	}

	visitDate, err := time.Parse("2006-01-02", req.VisitDate)
	if err != nil {
		return nil, models.NewValidationError("invalid visit date: %s (expected YYYY-MM-DD)", req.VisitDate)
	}
	if visitDate.Before(time.Now().Truncate(24 * time.Hour)) {
		return nil, models.NewValidationError("visit date cannot be in the past")
	}

	property, err := s.propertyRepo.GetByID(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load property: %w", err)
	}
	if property == nil {
		return nil, models.NewNotFound("property %s not found", propertyID)
	}
	if !property.IsActive {
		return nil, models.NewValidationError("property %s is not available for booking", propertyID)
	}

	overlap, err := s.bookingRepo.HasDateOverlap(ctx, propertyID, visitDate)
	if err != nil {
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	if overlap {
		return nil, models.NewStateConflict("property is already booked for %s", req.VisitDate)
	}

	quote, err := s.pricing.Quote(property.Price)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:          uuid.New(),
		UserID:      userID,
		PropertyID:  propertyID,
		VisitDate:   visitDate,
		VisitTime:   req.VisitTime,
		BaseAmount:  quote.BaseAmount,
		ServiceFee:  quote.ServiceFee,
		TaxAmount:   quote.TaxAmount,
		TotalAmount: quote.TotalAmount,
		Status:      models.BookingStatusPending,
		Notes:       req.Notes,
	}

	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"property_id": propertyID,
		"user_id":     userID,
		"total":       booking.TotalAmount,
	}).Info("Booking created")

	return booking, nil
}

// GetBooking retrieves a booking owned by the user.
func (s *BookingService) GetBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil || booking.UserID != userID {
		return nil, models.NewNotFound("booking %s not found", bookingID)
	}
	return booking, nil
}

// ListBookings retrieves the user's bookings, newest first.
func (s *BookingService) ListBookings(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	return s.bookingRepo.ListByUser(ctx, userID)
}

// CancelBooking cancels a pending or paid booking. A booking with an
// unresolved payment attempt cannot be canceled until the attempt settles.
func (s *BookingService) CancelBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil || booking.UserID != userID {
		return nil, models.NewNotFound("booking %s not found", bookingID)
	}

	if !booking.CanCancel() {
		return nil, models.ErrIllegalTransition(booking.Status, models.BookingStatusCanceled)
	}

	inFlight, err := s.paymentRepo.HasInFlight(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if inFlight {
		return nil, models.NewStateConflict("booking has an unresolved payment; wait for it to settle before canceling")
	}

	updated, err := s.bookingRepo.TransitionStatus(ctx, bookingID, models.BookingStatusCanceled)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"user_id":    userID,
		"from":       booking.Status,
	}).Info("Booking canceled")

	return updated, nil
}
