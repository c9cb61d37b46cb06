package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/estatevista/booking-backend/internal/models"
)

// PropertyRepository reads the property catalog. The booking core never
// writes this table.
type PropertyRepository struct {
	db *sqlx.DB
}

// NewPropertyRepository creates a new PropertyRepository
func NewPropertyRepository(db *sqlx.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// GetByID retrieves a property by ID. Returns nil without error when no row
// exists.
func (r *PropertyRepository) GetByID(ctx context.Context, propertyID uuid.UUID) (*models.Property, error) {
	query := `
		SELECT id, name, price, is_active, created_at, updated_at
		FROM properties
		WHERE id = $1
	`

	var property models.Property
	err := r.db.GetContext(ctx, &property, query, propertyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get property: %w", err)
	}

	return &property, nil
}

// GetByIDs retrieves multiple properties in one round trip.
func (r *PropertyRepository) GetByIDs(ctx context.Context, propertyIDs []uuid.UUID) ([]models.Property, error) {
	if len(propertyIDs) == 0 {
		return []models.Property{}, nil
	}

	ids := make([]string, len(propertyIDs))
	for i, id := range propertyIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT id, name, price, is_active, created_at, updated_at
		FROM properties
		WHERE id = ANY($1)
	`

	properties := []models.Property{}
	if err := r.db.SelectContext(ctx, &properties, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to get properties: %w", err)
	}

	return properties, nil
}
