package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/clinicstock/clinicstock-backend/internal/stock/events"
	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
	"github.com/clinicstock/clinicstock-backend/pkg/database"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
)

// Migration outcomes per item
const (
	MigrationMigrated MigrationOutcome = "migrated"
	MigrationSkipped  MigrationOutcome = "skipped"
	MigrationFailed   MigrationOutcome = "failed"
)

// MigrationOutcome is the per-item result of a legacy migration run
type MigrationOutcome string

// MigrationReport summarizes a full migration run
type MigrationReport struct {
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// LegacyMigrator converts pre-batch scalar stock into synthetic batches.
// Idempotent: an item that already has any batch is never migrated again,
// and the check runs under the per-item lock so concurrent runs cannot
// both insert.
type LegacyMigrator struct {
	db               *database.DB
	itemRepo         *repository.ItemRepository
	batchRepo        *repository.BatchRepository
	publisher        *events.StockEventPublisher
	placeholderYears int
	lockTimeout      time.Duration
	logger           *logger.Logger
}

// NewLegacyMigrator creates a new legacy migrator
func NewLegacyMigrator(
	db *database.DB,
	itemRepo *repository.ItemRepository,
	batchRepo *repository.BatchRepository,
	publisher *events.StockEventPublisher,
	placeholderYears int,
	lockTimeout time.Duration,
	log *logger.Logger,
) *LegacyMigrator {
	return &LegacyMigrator{
		db:               db,
		itemRepo:         itemRepo,
		batchRepo:        batchRepo,
		publisher:        publisher,
		placeholderYears: placeholderYears,
		lockTimeout:      lockTimeout,
		logger:           log,
	}
}

// MigrateItem migrates one item's legacy scalar stock into a synthetic
// batch. Skips items that already have batches or carry no positive
// legacy stock.
func (m *LegacyMigrator) MigrateItem(ctx context.Context, itemID string) (MigrationOutcome, error) {
	item, err := m.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return MigrationFailed, err
	}

	var (
		batch      *repository.Batch
		skipReason string
	)

	err = m.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := m.batchRepo.LockItem(ctx, tx, item.ID, m.lockTimeout); err != nil {
			return err
		}

		// Re-check under the lock: another run may have migrated between
		// our read and the lock acquisition.
		count, err := m.batchRepo.CountByItemTx(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			skipReason = "item already has batches"
			return nil
		}

		if item.LegacyStock == nil || *item.LegacyStock <= 0 {
			skipReason = "no positive legacy stock"
			return nil
		}

		b := buildLegacyBatch(item, time.Now().UTC(), m.placeholderYears)
		if b.BatchNumber == "" {
			seq, err := m.batchRepo.NextBatchSequenceTx(ctx, tx, item.ID)
			if err != nil {
				return err
			}
			b.BatchNumber = synthesizeBatchNumber(item.ID, seq)
		}

		if err := m.batchRepo.CreateTx(ctx, tx, b); err != nil {
			return err
		}

		batch = b
		return nil
	})
	if err != nil {
		return MigrationFailed, err
	}

	if skipReason != "" {
		m.logger.Debug().Str("item_id", item.ID).Str("reason", skipReason).Msg("legacy migration skipped")
		return MigrationSkipped, nil
	}

	m.publisher.PublishLegacyMigrated(ctx, item.ID, batch.ID, batch.QuantityReceived)
	m.logger.Info().
		Str("item_id", item.ID).
		Str("batch_id", batch.ID).
		Int("original_stock", batch.QuantityReceived).
		Msg("legacy stock migrated")

	return MigrationMigrated, nil
}

// MigrateAll migrates every active item. Per-item failures are counted,
// logged, and do not stop the run.
func (m *LegacyMigrator) MigrateAll(ctx context.Context) (*MigrationReport, error) {
	items, err := m.itemRepo.GetAllActive(ctx)
	if err != nil {
		return nil, err
	}

	report := &MigrationReport{}
	for _, item := range items {
		outcome, err := m.MigrateItem(ctx, item.ID)
		if err != nil {
			m.logger.Error().Err(err).Str("item_id", item.ID).Msg("legacy migration failed")
		}

		switch outcome {
		case MigrationMigrated:
			report.Migrated++
		case MigrationSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	m.logger.Info().
		Int("migrated", report.Migrated).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("legacy migration run complete")

	return report, nil
}

// buildLegacyBatch assembles the synthetic batch for an item's legacy
// scalar stock. Missing legacy dates fall back to now for receipt and a
// far-future placeholder for expiry; the notes record the provenance.
func buildLegacyBatch(item *repository.Item, now time.Time, placeholderYears int) *repository.Batch {
	stock := *item.LegacyStock

	expiry := now.AddDate(placeholderYears, 0, 0)
	if item.LegacyExpiryDate != nil {
		expiry = *item.LegacyExpiryDate
	}

	received := now
	if item.LegacyReceivedDate != nil {
		received = *item.LegacyReceivedDate
	}

	batchNumber := ""
	if item.LegacyBatchNumber != nil {
		batchNumber = *item.LegacyBatchNumber
	}

	notes := fmt.Sprintf("migrated from legacy field, original stock = %d", stock)

	return &repository.Batch{
		ItemID:            item.ID,
		BatchNumber:       batchNumber,
		QuantityReceived:  stock,
		QuantityRemaining: stock,
		ExpiryDate:        expiry,
		ReceivedDate:      received,
		Notes:             &notes,
	}
}
