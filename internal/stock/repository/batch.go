package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/clinicstock/clinicstock-backend/pkg/database"
	"github.com/clinicstock/clinicstock-backend/pkg/errors"
)

// Derived batch statuses. Status is computed from expiry and remainder,
// never stored as an authoritative column.
const (
	BatchStatusActive   = "active"
	BatchStatusExpired  = "expired"
	BatchStatusDepleted = "depleted"
)

// Batch is a discrete received lot of an item. Immutable after receipt
// except for quantity_remaining, which only the consume path decrements.
// The seq column records insertion order and breaks expiry-date ties
// during FIFO allocation.
type Batch struct {
	ID                string           `db:"id" json:"id"`
	ItemID            string           `db:"item_id" json:"item_id"`
	BatchNumber       string           `db:"batch_number" json:"batch_number"`
	LotNumber         *string          `db:"lot_number" json:"lot_number,omitempty"`
	QuantityReceived  int              `db:"quantity_received" json:"quantity_received"`
	QuantityRemaining int              `db:"quantity_remaining" json:"quantity_remaining"`
	ExpiryDate        time.Time        `db:"expiry_date" json:"expiry_date"`
	ReceivedDate      time.Time        `db:"received_date" json:"received_date"`
	UnitCost          *decimal.Decimal `db:"unit_cost" json:"unit_cost,omitempty"`
	Supplier          *string          `db:"supplier" json:"supplier,omitempty"`
	Notes             *string          `db:"notes" json:"notes,omitempty"`
	Seq               int64            `db:"seq" json:"-"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// Status derives the batch status as of the given time
func (b *Batch) Status(asOf time.Time) string {
	switch {
	case b.QuantityRemaining == 0:
		return BatchStatusDepleted
	case !b.ExpiryDate.After(asOf):
		return BatchStatusExpired
	default:
		return BatchStatusActive
	}
}

// Usable reports whether the batch can satisfy consumption as of the given time
func (b *Batch) Usable(asOf time.Time) bool {
	return b.QuantityRemaining > 0 && b.ExpiryDate.After(asOf)
}

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// CreateTx inserts a new batch inside the caller's transaction.
// Callers hold the per-item lock; see LockItem.
func (r *BatchRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, batch *Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}

	query := `
		INSERT INTO batches (
			id, item_id, batch_number, lot_number, quantity_received, quantity_remaining,
			expiry_date, received_date, unit_cost, supplier, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq, created_at, updated_at
	`

	err := tx.QueryRowxContext(ctx, query,
		batch.ID, batch.ItemID, batch.BatchNumber, batch.LotNumber,
		batch.QuantityReceived, batch.QuantityRemaining, batch.ExpiryDate,
		batch.ReceivedDate, batch.UnitCost, batch.Supplier, batch.Notes,
	).Scan(&batch.Seq, &batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*Batch, error) {
	var batch Batch
	query := `SELECT * FROM batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// ListByItem lists batches for an item, soonest expiry first.
// Expired batches are included unless excluded by the caller.
func (r *BatchRepository) ListByItem(ctx context.Context, itemID string, includeExpired bool, asOf time.Time) ([]*Batch, error) {
	var batches []*Batch

	if includeExpired {
		query := `
			SELECT * FROM batches
			WHERE item_id = $1
			ORDER BY expiry_date, seq
		`
		if err := r.db.SelectContext(ctx, &batches, query, itemID); err != nil {
			return nil, err
		}
		return batches, nil
	}

	query := `
		SELECT * FROM batches
		WHERE item_id = $1 AND expiry_date > $2
		ORDER BY expiry_date, seq
	`
	if err := r.db.SelectContext(ctx, &batches, query, itemID, asOf); err != nil {
		return nil, err
	}
	return batches, nil
}

// CurrentStock sums the remaining quantity over non-expired batches.
// Expired remainders are excluded; they are wastage, not usable stock.
func (r *BatchRepository) CurrentStock(ctx context.Context, itemID string, asOf time.Time) (int, error) {
	var total sql.NullInt64
	query := `
		SELECT SUM(quantity_remaining) FROM batches
		WHERE item_id = $1 AND expiry_date > $2
	`
	if err := r.db.GetContext(ctx, &total, query, itemID, asOf); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// ExpiredRemainders lists expired batches that still hold stock (wastage)
func (r *BatchRepository) ExpiredRemainders(ctx context.Context, itemID string, asOf time.Time) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM batches
		WHERE item_id = $1 AND expiry_date <= $2 AND quantity_remaining > 0
		ORDER BY expiry_date, seq
	`
	if err := r.db.SelectContext(ctx, &batches, query, itemID, asOf); err != nil {
		return nil, err
	}
	return batches, nil
}

// LockItem acquires the per-item write lock inside the caller's transaction.
// The item row itself is locked so writers serialize even when the item has
// no batches yet (receipt, migration). lock_timeout bounds the wait; on
// expiry Postgres raises 55P03 which maps to the retryable lock error.
func (r *BatchRepository) LockItem(ctx context.Context, tx *sqlx.Tx, itemID string, timeout time.Duration) error {
	// SET LOCAL does not accept bind parameters
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())); err != nil {
		return err
	}

	var id string
	query := `SELECT id FROM items WHERE id = $1 AND is_active = true FOR UPDATE`
	if err := tx.GetContext(ctx, &id, query, itemID); err != nil {
		if err == sql.ErrNoRows {
			return errors.NotFound("item")
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// ActiveBatchesForUpdate locks and returns the item's usable batches in
// FIFO-by-expiry order (expiry ascending, insertion order as tie-break).
func (r *BatchRepository) ActiveBatchesForUpdate(ctx context.Context, tx *sqlx.Tx, itemID string, asOf time.Time) ([]*Batch, error) {
	var batches []*Batch
	query := `
		SELECT * FROM batches
		WHERE item_id = $1 AND expiry_date > $2 AND quantity_remaining > 0
		ORDER BY expiry_date, seq
		FOR UPDATE
	`
	if err := tx.SelectContext(ctx, &batches, query, itemID, asOf); err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}
	return batches, nil
}

// DeductTx decrements a batch's remaining quantity inside the caller's
// transaction. The guard predicate backs up the allocation arithmetic: a
// deduction below zero affects no rows and is reported as an internal error.
func (r *BatchRepository) DeductTx(ctx context.Context, tx *sqlx.Tx, batchID string, quantity int) error {
	query := `
		UPDATE batches
		SET quantity_remaining = quantity_remaining - $2, updated_at = NOW()
		WHERE id = $1 AND quantity_remaining >= $2
	`
	result, err := tx.ExecContext(ctx, query, batchID, quantity)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Internal(fmt.Sprintf("deduction of %d from batch %s would drive remainder negative", quantity, batchID))
	}
	return nil
}

// CountByItemTx counts an item's batches inside the caller's transaction.
// Used by the migrator for its already-migrated re-check under the lock.
func (r *BatchRepository) CountByItemTx(ctx context.Context, tx *sqlx.Tx, itemID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM batches WHERE item_id = $1`
	if err := tx.GetContext(ctx, &count, query, itemID); err != nil {
		return 0, err
	}
	return count, nil
}

// NextBatchSequenceTx advances and returns the item's batch number sequence.
// Runs under the item lock, so synthesized numbers cannot collide.
func (r *BatchRepository) NextBatchSequenceTx(ctx context.Context, tx *sqlx.Tx, itemID string) (int, error) {
	var seq int
	query := `
		UPDATE items SET batch_sequence = batch_sequence + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING batch_sequence
	`
	if err := tx.GetContext(ctx, &seq, query, itemID); err != nil {
		return 0, err
	}
	return seq, nil
}

// Delete removes an untouched batch as a receipt correction. A batch that
// has recorded usage is soft-locked and may never be deleted.
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var batch Batch
		query := `SELECT * FROM batches WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &batch, query, id); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("batch")
			}
			return err
		}

		if batch.QuantityRemaining != batch.QuantityReceived {
			return errors.Conflict("batch has recorded usage and cannot be deleted")
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, id); err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		return nil
	})
}
