package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-workflow/internal/database"
	"github.com/ledgerline/be-workflow/internal/errors"
)

// entityTables maps the entity types that gated actions may touch to their
// tables. Every table listed here carries the uniform lifecycle columns
// (is_active, deleted_at) and, where applicable, a quantity column.
var entityTables = map[string]string{
	"product":  "products",
	"customer": "customers",
	"supplier": "suppliers",
	"warranty": "warranties",
}

// EntityRepository applies gated mutations uniformly across domain tables.
// Soft deletion is a lifecycle flag; rows are never physically removed.
type EntityRepository struct {
	db *database.DB
}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository(db *database.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

func tableFor(entityType string) (string, error) {
	table, ok := entityTables[entityType]
	if !ok {
		return "", errors.InvalidInput("entity_type", "unsupported entity type "+entityType)
	}
	return table, nil
}

// SoftDelete marks an entity as deleted via its lifecycle columns.
func (r *EntityRepository) SoftDelete(ctx context.Context, entityType, entityID string) error {
	table, err := tableFor(entityType)
	if err != nil {
		return err
	}

	query := `
		UPDATE ` + table + `
		SET is_active  = FALSE,
		    deleted_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND is_active = TRUE
		RETURNING id
	`

	var returnedID string
	scanErr := r.db.QueryRow(ctx, query, entityID).Scan(&returnedID)
	if scanErr == pgx.ErrNoRows {
		return errors.NotFound(entityType, entityID)
	}
	if scanErr != nil {
		return errors.Wrap(scanErr, errors.ErrCodeInternal, "failed to soft-delete "+entityType)
	}
	return nil
}

// SetQuantity overwrites the stored quantity of an entity.
func (r *EntityRepository) SetQuantity(ctx context.Context, entityType, entityID string, quantity int64) error {
	table, err := tableFor(entityType)
	if err != nil {
		return err
	}
	if quantity < 0 {
		return errors.InvalidInput("quantity", "quantity cannot be negative")
	}

	query := `
		UPDATE ` + table + `
		SET quantity   = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	scanErr := r.db.QueryRow(ctx, query, entityID, quantity).Scan(&returnedID)
	if scanErr == pgx.ErrNoRows {
		return errors.NotFound(entityType, entityID)
	}
	if scanErr != nil {
		return errors.Wrap(scanErr, errors.ErrCodeInternal, "failed to set quantity on "+entityType)
	}
	return nil
}
