package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// stockSchema is the DDL for the stock ledger tables. It mirrors the
// production migrations so integration tests exercise the same
// constraints (batch number uniqueness, quantity bounds).
const stockSchema = `
	CREATE TABLE IF NOT EXISTS items (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name VARCHAR(255) NOT NULL,
		category VARCHAR(50) NOT NULL,
		unit_of_measure VARCHAR(50) NOT NULL DEFAULT 'unit',
		minimum_stock INT NOT NULL DEFAULT 0,
		unit_cost NUMERIC(12,4) NOT NULL DEFAULT 0,
		legacy_stock INT,
		legacy_batch_number VARCHAR(100),
		legacy_expiry_date TIMESTAMPTZ,
		legacy_received_date TIMESTAMPTZ,
		batch_sequence INT NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT items_category_valid CHECK (category IN ('medication', 'vaccine')),
		CONSTRAINT items_minimum_stock_nonnegative CHECK (minimum_stock >= 0)
	);

	CREATE TABLE IF NOT EXISTS batches (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		item_id UUID NOT NULL REFERENCES items(id),
		batch_number VARCHAR(100) NOT NULL,
		lot_number VARCHAR(100),
		quantity_received INT NOT NULL,
		quantity_remaining INT NOT NULL,
		expiry_date TIMESTAMPTZ NOT NULL,
		received_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		unit_cost NUMERIC(12,4),
		supplier VARCHAR(255),
		notes TEXT,
		seq BIGINT GENERATED ALWAYS AS IDENTITY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT batches_item_batch_number_unique UNIQUE (item_id, batch_number),
		CONSTRAINT batches_quantity_received_positive CHECK (quantity_received > 0),
		CONSTRAINT batches_quantity_remaining_bounds CHECK (quantity_remaining >= 0 AND quantity_remaining <= quantity_received)
	);

	CREATE INDEX IF NOT EXISTS idx_batches_item_expiry ON batches (item_id, expiry_date, seq);

	CREATE TABLE IF NOT EXISTS usage_events (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		item_id UUID NOT NULL REFERENCES items(id),
		total_quantity INT NOT NULL,
		usage_date TIMESTAMPTZ NOT NULL,
		recorded_by VARCHAR(255),
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT usage_events_total_quantity_positive CHECK (total_quantity > 0)
	);

	CREATE TABLE IF NOT EXISTS usage_allocations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		usage_event_id UUID NOT NULL REFERENCES usage_events(id),
		batch_id UUID NOT NULL REFERENCES batches(id),
		quantity_deducted INT NOT NULL,
		position INT NOT NULL,
		CONSTRAINT usage_allocations_quantity_positive CHECK (quantity_deducted > 0)
	);

	CREATE TABLE IF NOT EXISTS forecast_parameters (
		item_id UUID PRIMARY KEY REFERENCES items(id),
		daily_patient_volume NUMERIC(10,2) NOT NULL,
		service_split NUMERIC(6,4) NOT NULL,
		prescription_rate NUMERIC(6,4) NOT NULL,
		units_per_event NUMERIC(10,2) NOT NULL,
		demand_multiplier NUMERIC(6,2) NOT NULL DEFAULT 1.0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// CreateStockSchema creates the stock ledger tables
func CreateStockSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, stockSchema); err != nil {
		return fmt.Errorf("failed to create stock schema: %w", err)
	}
	return nil
}

// TruncateStockTables resets all stock tables between tests
func TruncateStockTables(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		TRUNCATE usage_allocations, usage_events, batches, forecast_parameters, items CASCADE
	`)
	if err != nil {
		return fmt.Errorf("failed to truncate stock tables: %w", err)
	}
	return nil
}

// ItemFixture represents test item catalog data
type ItemFixture struct {
	ID            string
	Name          string
	Category      string
	UnitOfMeasure string
	MinimumStock  int
	UnitCost      decimal.Decimal
	LegacyStock   *int
}

// BatchFixture represents test batch data
type BatchFixture struct {
	ID               string
	ItemID           string
	BatchNumber      string
	QuantityReceived int
	ExpiryDate       time.Time
	ReceivedDate     time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Item creates an item fixture with defaults
func (f *FixtureFactory) Item(opts ...func(*ItemFixture)) ItemFixture {
	seq := f.nextSeq()

	item := ItemFixture{
		ID:            uuid.New().String(),
		Name:          fmt.Sprintf("Amoxicillin %dmg", 100+seq),
		Category:      "medication",
		UnitOfMeasure: "tablet",
		MinimumStock:  20,
		UnitCost:      decimal.NewFromFloat(0.45),
	}

	for _, opt := range opts {
		opt(&item)
	}
	return item
}

// Batch creates a batch fixture with defaults
func (f *FixtureFactory) Batch(itemID string, opts ...func(*BatchFixture)) BatchFixture {
	seq := f.nextSeq()

	batch := BatchFixture{
		ID:               uuid.New().String(),
		ItemID:           itemID,
		BatchNumber:      fmt.Sprintf("LOT-%04d", seq),
		QuantityReceived: 100,
		ExpiryDate:       time.Now().UTC().AddDate(1, 0, 0).Truncate(time.Second),
		ReceivedDate:     time.Now().UTC().Truncate(time.Second),
	}

	for _, opt := range opts {
		opt(&batch)
	}
	return batch
}

// InsertItem inserts an item fixture directly, bypassing the service layer
func (f *FixtureFactory) InsertItem(ctx context.Context, db *sqlx.DB, item ItemFixture) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO items (id, name, category, unit_of_measure, minimum_stock, unit_cost, legacy_stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.Name, item.Category, item.UnitOfMeasure, item.MinimumStock, item.UnitCost, item.LegacyStock)
	return err
}
