package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingStatus represents the lifecycle status of a booking
// Matches PostgreSQL ENUM: booking_status
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Created, awaiting payment
	BookingStatusPaid      BookingStatus = "paid"      // Payment settled
	BookingStatusCompleted BookingStatus = "completed" // Visit took place (terminal)
	BookingStatusCanceled  BookingStatus = "canceled"  // Canceled by user or after refund (terminal)
)

// bookingTransitions is the closed transition table for booking statuses.
// Any (from, to) pair not listed here is illegal.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusPaid, BookingStatusCanceled},
	BookingStatusPaid:      {BookingStatusCompleted, BookingStatusCanceled},
	BookingStatusCompleted: {},
	BookingStatusCanceled:  {},
}

// CanTransitionTo reports whether a booking in this status may move to target.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted from this status.
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// Booking represents a reservation for a property visit. Monetary fields are
// computed once at creation and never recomputed on update.
type Booking struct {
	ID         uuid.UUID `db:"id" json:"id"`
	UserID     uuid.UUID `db:"user_id" json:"user_id"`
	PropertyID uuid.UUID `db:"property_id" json:"property_id"`

	VisitDate time.Time `db:"visit_date" json:"visit_date"`
	VisitTime *string   `db:"visit_time" json:"visit_time,omitempty"`

	BaseAmount  decimal.Decimal `db:"base_amount" json:"base_amount"`
	ServiceFee  decimal.Decimal `db:"service_fee" json:"service_fee"`
	TaxAmount   decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`

	Status BookingStatus `db:"status" json:"status"`
	Notes  string        `db:"notes" json:"notes,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CanCancel reports whether the booking may still be canceled.
func (b *Booking) CanCancel() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusPaid
}

// CreateBookingRequest is the payload for POST /bookings
type CreateBookingRequest struct {
	PropertyID string  `json:"property_id" binding:"required,uuid"`
	VisitDate  string  `json:"visit_date" binding:"required"` // YYYY-MM-DD
	VisitTime  *string `json:"visit_time,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}
