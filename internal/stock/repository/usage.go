package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinicstock/clinicstock-backend/pkg/database"
	"github.com/clinicstock/clinicstock-backend/pkg/errors"
)

// UsageEvent is the append-only audit record of a single consumption.
// Usage events function as a write-ahead log: replaying all allocations
// against quantity_received must always reproduce quantity_remaining.
type UsageEvent struct {
	ID            string    `db:"id" json:"id"`
	ItemID        string    `db:"item_id" json:"item_id"`
	TotalQuantity int       `db:"total_quantity" json:"total_quantity"`
	UsageDate     time.Time `db:"usage_date" json:"usage_date"`
	RecordedBy    *string   `db:"recorded_by" json:"recorded_by,omitempty"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`

	Allocations []*BatchAllocation `db:"-" json:"batch_allocations"`
}

// BatchAllocation records how much a usage event drew from one batch.
// Position preserves the FIFO deduction order.
type BatchAllocation struct {
	ID               string `db:"id" json:"id"`
	UsageEventID     string `db:"usage_event_id" json:"-"`
	BatchID          string `db:"batch_id" json:"batch_id"`
	QuantityDeducted int    `db:"quantity_deducted" json:"quantity_deducted"`
	Position         int    `db:"position" json:"position"`
}

// UsageRepository handles usage event persistence
type UsageRepository struct {
	db *database.DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *database.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// CreateTx persists a usage event and its allocations inside the caller's
// transaction, so the audit record commits atomically with the deductions.
func (r *UsageRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, event *UsageEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	query := `
		INSERT INTO usage_events (id, item_id, total_quantity, usage_date, recorded_by, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := tx.QueryRowxContext(ctx, query,
		event.ID, event.ItemID, event.TotalQuantity, event.UsageDate,
		event.RecordedBy, event.Notes,
	).Scan(&event.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	allocQuery := `
		INSERT INTO usage_allocations (id, usage_event_id, batch_id, quantity_deducted, position)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i, alloc := range event.Allocations {
		if alloc.ID == "" {
			alloc.ID = uuid.New().String()
		}
		alloc.UsageEventID = event.ID
		alloc.Position = i

		if _, err := tx.ExecContext(ctx, allocQuery,
			alloc.ID, alloc.UsageEventID, alloc.BatchID, alloc.QuantityDeducted, alloc.Position,
		); err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
	}

	return nil
}

// GetByID gets a usage event with its allocations
func (r *UsageRepository) GetByID(ctx context.Context, id string) (*UsageEvent, error) {
	var event UsageEvent
	query := `SELECT * FROM usage_events WHERE id = $1`
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("usage event")
		}
		return nil, err
	}

	if err := r.loadAllocations(ctx, []*UsageEvent{&event}); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListByItem lists usage events for an item, newest first
func (r *UsageRepository) ListByItem(ctx context.Context, itemID string, limit int) ([]*UsageEvent, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	var events []*UsageEvent
	query := `
		SELECT * FROM usage_events
		WHERE item_id = $1
		ORDER BY usage_date DESC, created_at DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &events, query, itemID, limit); err != nil {
		return nil, err
	}

	if err := r.loadAllocations(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// loadAllocations attaches allocations to the given events in one query
func (r *UsageRepository) loadAllocations(ctx context.Context, events []*UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	ids := make([]string, len(events))
	byID := make(map[string]*UsageEvent, len(events))
	for i, e := range events {
		ids[i] = e.ID
		byID[e.ID] = e
		e.Allocations = []*BatchAllocation{}
	}

	query, args, err := sqlx.In(`
		SELECT * FROM usage_allocations
		WHERE usage_event_id IN (?)
		ORDER BY usage_event_id, position
	`, ids)
	if err != nil {
		return err
	}

	var allocations []*BatchAllocation
	if err := r.db.SelectContext(ctx, &allocations, r.db.Rebind(query), args...); err != nil {
		return err
	}

	for _, alloc := range allocations {
		if event, ok := byID[alloc.UsageEventID]; ok {
			event.Allocations = append(event.Allocations, alloc)
		}
	}
	return nil
}

// SumAllocationsByBatch replays the audit trail for one batch. Reconciliation
// jobs compare this against quantity_received - quantity_remaining.
func (r *UsageRepository) SumAllocationsByBatch(ctx context.Context, batchID string) (int, error) {
	var total sql.NullInt64
	query := `SELECT SUM(quantity_deducted) FROM usage_allocations WHERE batch_id = $1`
	if err := r.db.GetContext(ctx, &total, query, batchID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}
