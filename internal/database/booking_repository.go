package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/estatevista/booking-backend/internal/models"
)

// BookingRepository handles database operations for the bookings table
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts a new booking. Monetary columns are written once here and
// never touched by later updates.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}

	query := `
		INSERT INTO bookings (
			id, user_id, property_id, visit_date, visit_time,
			base_amount, service_fee, tax_amount, total_amount,
			status, notes
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx, query,
		booking.ID, booking.UserID, booking.PropertyID, booking.VisitDate, booking.VisitTime,
		booking.BaseAmount, booking.ServiceFee, booking.TaxAmount, booking.TotalAmount,
		booking.Status, booking.Notes,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	return nil
}

// GetByID retrieves a booking by ID. Returns nil without error when no row
// exists.
func (r *BookingRepository) GetByID(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	query := `
		SELECT id, user_id, property_id, visit_date, visit_time,
			   base_amount, service_fee, tax_amount, total_amount,
			   status, notes, created_at, updated_at
		FROM bookings
		WHERE id = $1
	`

	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, query, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return &booking, nil
}

// ListByUser retrieves all bookings for a user, newest first.
func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	query := `
		SELECT id, user_id, property_id, visit_date, visit_time,
			   base_amount, service_fee, tax_amount, total_amount,
			   status, notes, created_at, updated_at
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	bookings := []models.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	return bookings, nil
}

// HasDateOverlap reports whether the property already has a live booking on
// the given visit date. Canceled bookings do not block the slot.
func (r *BookingRepository) HasDateOverlap(ctx context.Context, propertyID uuid.UUID, visitDate time.Time) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM bookings
		WHERE property_id = $1
		  AND visit_date = $2
		  AND status != 'canceled'
	`

	if err := r.db.GetContext(ctx, &count, query, propertyID, visitDate); err != nil {
		return false, fmt.Errorf("failed to check date overlap: %w", err)
	}

	return count > 0, nil
}

// TransitionStatus moves a booking to the target status under a row lock.
// The current status is re-read inside the transaction so concurrent writers
// serialize and the loser sees the winner's state.
func (r *BookingRepository) TransitionStatus(ctx context.Context, bookingID uuid.UUID, target models.BookingStatus) (*models.Booking, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	booking, err := lockBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.NewNotFound("booking %s not found", bookingID)
	}

	if !booking.Status.CanTransitionTo(target) {
		return nil, models.ErrIllegalTransition(booking.Status, target)
	}

	query := `
		UPDATE bookings
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := tx.QueryRowContext(ctx, query, bookingID, target).Scan(&booking.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	booking.Status = target

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit booking transition: %w", err)
	}

	return booking, nil
}

// lockBooking reads a booking row FOR UPDATE inside tx. Returns nil when the
// row does not exist.
func lockBooking(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID) (*models.Booking, error) {
	query := `
		SELECT id, user_id, property_id, visit_date, visit_time,
			   base_amount, service_fee, tax_amount, total_amount,
			   status, notes, created_at, updated_at
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`

	var booking models.Booking
	err := tx.GetContext(ctx, &booking, query, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}

	return &booking, nil
}
