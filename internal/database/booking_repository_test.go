package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatevista/booking-backend/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func bookingColumns() []string {
	return []string{
		"id", "user_id", "property_id", "visit_date", "visit_time",
		"base_amount", "service_fee", "tax_amount", "total_amount",
		"status", "notes", "created_at", "updated_at",
	}
}

func bookingRow(id, userID uuid.UUID, status models.BookingStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(bookingColumns()).AddRow(
		id, userID, uuid.New(), now.AddDate(0, 0, 7), nil,
		"100.00", "5.00", "10.50", "115.50",
		status, "", now, now,
	)
}

func TestBookingCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		booking := &models.Booking{
			UserID:     uuid.New(),
			PropertyID: uuid.New(),
			VisitDate:  now.AddDate(0, 0, 7),
			Status:     models.BookingStatusPending,
		}

		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		err := repo.Create(context.Background(), booking)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, booking.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		booking := &models.Booking{Status: models.BookingStatusPending}

		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnError(fmt.Errorf("database error"))

		err := repo.Create(context.Background(), booking)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create booking")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingGetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	t.Run("Found", func(t *testing.T) {
		bookingID := uuid.New()
		userID := uuid.New()

		mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(bookingID).
			WillReturnRows(bookingRow(bookingID, userID, models.BookingStatusPending))

		booking, err := repo.GetByID(context.Background(), bookingID)
		require.NoError(t, err)
		require.NotNil(t, booking)
		assert.Equal(t, bookingID, booking.ID)
		assert.Equal(t, models.BookingStatusPending, booking.Status)
		assert.True(t, booking.TotalAmount.Equal(decimalFromString(t, "115.50")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found Returns Nil", func(t *testing.T) {
		bookingID := uuid.New()

		mock.ExpectQuery(`SELECT (.+) FROM bookings`).
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows(bookingColumns()))

		booking, err := repo.GetByID(context.Background(), bookingID)
		require.NoError(t, err)
		assert.Nil(t, booking)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingHasDateOverlap(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	propertyID := uuid.New()
	visitDate := time.Now().AddDate(0, 0, 7)

	t.Run("Overlap", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM bookings`).
			WithArgs(propertyID, visitDate).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		overlap, err := repo.HasDateOverlap(context.Background(), propertyID, visitDate)
		require.NoError(t, err)
		assert.True(t, overlap)
	})

	t.Run("Free Slot", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM bookings`).
			WithArgs(propertyID, visitDate).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		overlap, err := repo.HasDateOverlap(context.Background(), propertyID, visitDate)
		require.NoError(t, err)
		assert.False(t, overlap)
	})
}

func TestBookingTransitionStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	t.Run("Pending To Canceled", func(t *testing.T) {
		bookingID := uuid.New()
		userID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM bookings(.+)FOR UPDATE`).
			WithArgs(bookingID).
			WillReturnRows(bookingRow(bookingID, userID, models.BookingStatusPending))
		mock.ExpectQuery(`UPDATE bookings`).
			WithArgs(bookingID, models.BookingStatusCanceled).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
		mock.ExpectCommit()

		booking, err := repo.TransitionStatus(context.Background(), bookingID, models.BookingStatusCanceled)
		require.NoError(t, err)
		assert.Equal(t, models.BookingStatusCanceled, booking.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Illegal Transition Rejected", func(t *testing.T) {
		bookingID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM bookings(.+)FOR UPDATE`).
			WithArgs(bookingID).
			WillReturnRows(bookingRow(bookingID, uuid.New(), models.BookingStatusCompleted))
		mock.ExpectRollback()

		booking, err := repo.TransitionStatus(context.Background(), bookingID, models.BookingStatusPaid)
		assert.Nil(t, booking)
		assert.True(t, models.IsKind(err, models.KindStateConflict))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing Booking", func(t *testing.T) {
		bookingID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM bookings(.+)FOR UPDATE`).
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows(bookingColumns()))
		mock.ExpectRollback()

		booking, err := repo.TransitionStatus(context.Background(), bookingID, models.BookingStatusCanceled)
		assert.Nil(t, booking)
		assert.True(t, models.IsKind(err, models.KindNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
