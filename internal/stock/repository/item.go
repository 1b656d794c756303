package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clinicstock/clinicstock-backend/pkg/database"
	"github.com/clinicstock/clinicstock-backend/pkg/errors"
)

// Item categories
const (
	CategoryMedication = "medication"
	CategoryVaccine    = "vaccine"
)

// Item is a catalog entry. Identity and thresholds are owned by the
// external catalog process; this service only reads them. The legacy_*
// columns hold the pre-batch scalar stock data consumed exactly once
// by the legacy migrator.
type Item struct {
	ID            string          `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Category      string          `db:"category" json:"category"`
	UnitOfMeasure string          `db:"unit_of_measure" json:"unit_of_measure"`
	MinimumStock  int             `db:"minimum_stock" json:"minimum_stock"`
	UnitCost      decimal.Decimal `db:"unit_cost" json:"unit_cost"`

	LegacyStock        *int       `db:"legacy_stock" json:"-"`
	LegacyBatchNumber  *string    `db:"legacy_batch_number" json:"-"`
	LegacyExpiryDate   *time.Time `db:"legacy_expiry_date" json:"-"`
	LegacyReceivedDate *time.Time `db:"legacy_received_date" json:"-"`

	BatchSequence int       `db:"batch_sequence" json:"-"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ItemRepository reads the item catalog
type ItemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// GetByID gets an item by ID
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*Item, error) {
	var item Item
	query := `SELECT * FROM items WHERE id = $1 AND is_active = true`
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("item")
		}
		return nil, err
	}
	return &item, nil
}

// List lists items with pagination and an optional category filter
func (r *ItemRepository) List(ctx context.Context, page, perPage int, category string) ([]*Item, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	var items []*Item
	var total int64

	if category != "" {
		countQuery := `SELECT COUNT(*) FROM items WHERE is_active = true AND category = $1`
		if err := r.db.GetContext(ctx, &total, countQuery, category); err != nil {
			return nil, 0, err
		}
		query := `
			SELECT * FROM items
			WHERE is_active = true AND category = $1
			ORDER BY name
			LIMIT $2 OFFSET $3
		`
		if err := r.db.SelectContext(ctx, &items, query, category, perPage, offset); err != nil {
			return nil, 0, err
		}
		return items, total, nil
	}

	countQuery := `SELECT COUNT(*) FROM items WHERE is_active = true`
	if err := r.db.GetContext(ctx, &total, countQuery); err != nil {
		return nil, 0, err
	}
	query := `
		SELECT * FROM items
		WHERE is_active = true
		ORDER BY name
		LIMIT $1 OFFSET $2
	`
	if err := r.db.SelectContext(ctx, &items, query, perPage, offset); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetAllActive gets all active items
func (r *ItemRepository) GetAllActive(ctx context.Context) ([]*Item, error) {
	var items []*Item
	query := `SELECT * FROM items WHERE is_active = true ORDER BY name`
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, err
	}
	return items, nil
}
