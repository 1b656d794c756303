package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/clinicstock/clinicstock-backend/internal/stock/events"
	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
	"github.com/clinicstock/clinicstock-backend/pkg/database"
	"github.com/clinicstock/clinicstock-backend/pkg/errors"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
)

// BatchLedger owns all batch records: receipt, usable stock, and
// FIFO-by-expiry consumption. Consume and CreateBatch are the only
// stock-mutating operations and both run under the per-item lock.
type BatchLedger struct {
	db          *database.DB
	itemRepo    *repository.ItemRepository
	batchRepo   *repository.BatchRepository
	usageRepo   *repository.UsageRepository
	publisher   *events.StockEventPublisher
	lockTimeout time.Duration
	logger      *logger.Logger
}

// NewBatchLedger creates a new batch ledger
func NewBatchLedger(
	db *database.DB,
	itemRepo *repository.ItemRepository,
	batchRepo *repository.BatchRepository,
	usageRepo *repository.UsageRepository,
	publisher *events.StockEventPublisher,
	lockTimeout time.Duration,
	log *logger.Logger,
) *BatchLedger {
	return &BatchLedger{
		db:          db,
		itemRepo:    itemRepo,
		batchRepo:   batchRepo,
		usageRepo:   usageRepo,
		publisher:   publisher,
		lockTimeout: lockTimeout,
		logger:      log,
	}
}

// CreateBatchInput carries the fields of a manual batch receipt
type CreateBatchInput struct {
	QuantityReceived int
	ExpiryDate       time.Time
	BatchNumber      string
	LotNumber        *string
	ReceivedDate     time.Time
	UnitCost         *decimal.Decimal
	Supplier         *string
	Notes            *string
}

// CreateBatch records a received lot. When no batch number is supplied one
// is synthesized from the item identifier and a per-item sequence.
func (l *BatchLedger) CreateBatch(ctx context.Context, itemID string, in CreateBatchInput) (*repository.Batch, error) {
	details := make(map[string]string)
	if in.QuantityReceived <= 0 {
		details["quantity_received"] = "must be greater than zero"
	}
	if in.ExpiryDate.IsZero() {
		details["expiry_date"] = "this field is required"
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	received := in.ReceivedDate
	if received.IsZero() {
		received = time.Now().UTC()
	}

	batch := &repository.Batch{
		ItemID:            itemID,
		BatchNumber:       in.BatchNumber,
		LotNumber:         in.LotNumber,
		QuantityReceived:  in.QuantityReceived,
		QuantityRemaining: in.QuantityReceived,
		ExpiryDate:        in.ExpiryDate,
		ReceivedDate:      received,
		UnitCost:          in.UnitCost,
		Supplier:          in.Supplier,
		Notes:             in.Notes,
	}

	err := l.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := l.batchRepo.LockItem(ctx, tx, itemID, l.lockTimeout); err != nil {
			return err
		}

		if batch.BatchNumber == "" {
			seq, err := l.batchRepo.NextBatchSequenceTx(ctx, tx, itemID)
			if err != nil {
				return err
			}
			batch.BatchNumber = synthesizeBatchNumber(itemID, seq)
		}

		return l.batchRepo.CreateTx(ctx, tx, batch)
	})
	if err != nil {
		return nil, err
	}

	l.publisher.PublishBatchReceived(ctx, batch)
	l.logger.Info().
		Str("item_id", itemID).
		Str("batch_id", batch.ID).
		Str("batch_number", batch.BatchNumber).
		Int("quantity_received", batch.QuantityReceived).
		Msg("batch received")

	return batch, nil
}

// ConsumeOptions carries the audit fields of a consumption
type ConsumeOptions struct {
	AsOf       time.Time
	UsageDate  time.Time
	RecordedBy string
	Notes      string
}

// Consume deducts quantity from the item's usable batches, soonest expiry
// first, expiry ties broken by insertion order. All-or-nothing: when usable
// stock is short no batch is modified and InsufficientStock is returned.
// The usage event commits in the same transaction as the deductions.
func (l *BatchLedger) Consume(ctx context.Context, itemID string, quantity int, opts ConsumeOptions) (*repository.UsageEvent, error) {
	if quantity <= 0 {
		return nil, errors.Validation(map[string]string{
			"quantity": "must be greater than zero",
		})
	}

	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	usageDate := opts.UsageDate
	if usageDate.IsZero() {
		usageDate = asOf
	}

	var event *repository.UsageEvent

	err := l.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := l.batchRepo.LockItem(ctx, tx, itemID, l.lockTimeout); err != nil {
			return err
		}

		batches, err := l.batchRepo.ActiveBatchesForUpdate(ctx, tx, itemID, asOf)
		if err != nil {
			return err
		}

		allocations, err := allocateByExpiry(batches, quantity)
		if err != nil {
			return err
		}

		for _, alloc := range allocations {
			if err := l.batchRepo.DeductTx(ctx, tx, alloc.BatchID, alloc.QuantityDeducted); err != nil {
				return err
			}
		}

		event = &repository.UsageEvent{
			ItemID:        itemID,
			TotalQuantity: quantity,
			UsageDate:     usageDate,
			Allocations:   allocations,
		}
		if opts.RecordedBy != "" {
			event.RecordedBy = &opts.RecordedBy
		}
		if opts.Notes != "" {
			event.Notes = &opts.Notes
		}

		return l.usageRepo.CreateTx(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info().
		Str("item_id", itemID).
		Str("usage_event_id", event.ID).
		Int("quantity", quantity).
		Int("batches_drawn", len(event.Allocations)).
		Msg("stock consumed")

	return event, nil
}

// CurrentStock returns the usable stock for an item as of the given time
func (l *BatchLedger) CurrentStock(ctx context.Context, itemID string, asOf time.Time) (int, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	if _, err := l.itemRepo.GetByID(ctx, itemID); err != nil {
		return 0, err
	}
	return l.batchRepo.CurrentStock(ctx, itemID, asOf)
}

// ListBatches lists an item's batches, soonest expiry first
func (l *BatchLedger) ListBatches(ctx context.Context, itemID string, includeExpired bool) ([]*repository.Batch, error) {
	if _, err := l.itemRepo.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return l.batchRepo.ListByItem(ctx, itemID, includeExpired, time.Now().UTC())
}

// Wastage lists expired batches that still hold stock
func (l *BatchLedger) Wastage(ctx context.Context, itemID string) ([]*repository.Batch, error) {
	if _, err := l.itemRepo.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return l.batchRepo.ExpiredRemainders(ctx, itemID, time.Now().UTC())
}

// DeleteBatch removes an untouched batch as a receipt correction
func (l *BatchLedger) DeleteBatch(ctx context.Context, id string) error {
	batch, err := l.batchRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := l.batchRepo.Delete(ctx, id); err != nil {
		return err
	}

	l.publisher.PublishBatchDeleted(ctx, batch)
	l.logger.Info().Str("batch_id", id).Str("item_id", batch.ItemID).Msg("batch deleted")
	return nil
}

// allocateByExpiry splits a requested quantity across batches that arrive
// already ordered soonest-expiry-first. Returns InsufficientStock without
// touching anything when the batches cannot cover the request.
func allocateByExpiry(batches []*repository.Batch, quantity int) ([]*repository.BatchAllocation, error) {
	available := 0
	for _, b := range batches {
		available += b.QuantityRemaining
	}
	if available < quantity {
		return nil, errors.InsufficientStock(quantity, available)
	}

	var allocations []*repository.BatchAllocation
	remaining := quantity
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		take := b.QuantityRemaining
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, &repository.BatchAllocation{
			BatchID:          b.ID,
			QuantityDeducted: take,
		})
		remaining -= take
	}

	return allocations, nil
}

// synthesizeBatchNumber builds a deterministic batch number from the item
// identifier and its receipt sequence.
func synthesizeBatchNumber(itemID string, seq int) string {
	short := strings.ReplaceAll(itemID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("AUTO-%s-%04d", strings.ToUpper(short), seq)
}
