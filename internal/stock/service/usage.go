package service

import (
	"context"
	"time"

	"github.com/clinicstock/clinicstock-backend/internal/stock/events"
	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
	"github.com/clinicstock/clinicstock-backend/pkg/messaging"
)

// UsageRecorder is the front door for consumption. It validates requests,
// delegates the deduction to the batch ledger, and publishes the resulting
// events, including a stock alert when the consumption crossed a threshold.
type UsageRecorder struct {
	ledger    *BatchLedger
	itemRepo  *repository.ItemRepository
	usageRepo *repository.UsageRepository
	alerts    *AlertEngine
	publisher *events.StockEventPublisher
	logger    *logger.Logger
}

// NewUsageRecorder creates a new usage recorder
func NewUsageRecorder(
	ledger *BatchLedger,
	itemRepo *repository.ItemRepository,
	usageRepo *repository.UsageRepository,
	alerts *AlertEngine,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *UsageRecorder {
	return &UsageRecorder{
		ledger:    ledger,
		itemRepo:  itemRepo,
		usageRepo: usageRepo,
		alerts:    alerts,
		publisher: publisher,
		logger:    log,
	}
}

// RecordUsageInput carries a consumption request
type RecordUsageInput struct {
	Quantity   int
	UsageDate  time.Time
	RecordedBy string
	Notes      string
}

// RecordUsage consumes stock for an item and appends the audit record.
// On success the usage event is published, and when the remaining stock
// is at or below the item's threshold an alert event follows.
func (u *UsageRecorder) RecordUsage(ctx context.Context, itemID string, in RecordUsageInput) (*repository.UsageEvent, error) {
	item, err := u.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	event, err := u.ledger.Consume(ctx, itemID, in.Quantity, ConsumeOptions{
		UsageDate:  in.UsageDate,
		RecordedBy: in.RecordedBy,
		Notes:      in.Notes,
	})
	if err != nil {
		return nil, err
	}

	u.publisher.PublishUsageRecorded(ctx, event)
	u.raiseStockAlert(ctx, item)

	return event, nil
}

// History lists an item's usage events, newest first
func (u *UsageRecorder) History(ctx context.Context, itemID string, limit int) ([]*repository.UsageEvent, error) {
	if _, err := u.itemRepo.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return u.usageRepo.ListByItem(ctx, itemID, limit)
}

// GetUsageEvent gets a single usage event with its allocations
func (u *UsageRecorder) GetUsageEvent(ctx context.Context, id string) (*repository.UsageEvent, error) {
	return u.usageRepo.GetByID(ctx, id)
}

// raiseStockAlert re-classifies the item after a consumption and publishes
// an alert when the item fell out of or below threshold. Alert failures
// never fail the consumption; the deduction is already committed.
func (u *UsageRecorder) raiseStockAlert(ctx context.Context, item *repository.Item) {
	alert, err := u.alerts.ClassifyItem(ctx, item.ID, time.Now().UTC())
	if err != nil {
		u.logger.Warn().Err(err).Str("item_id", item.ID).Msg("post-usage alert classification failed")
		return
	}

	if len(alert.Classifications) == 0 {
		return
	}

	u.publisher.PublishAlertRaised(ctx, messaging.AlertRaisedEvent{
		ItemID:          item.ID,
		ItemName:        item.Name,
		Classifications: alert.Classifications,
		CurrentStock:    alert.CurrentStock,
		MinimumStock:    alert.MinimumStock,
	})
}
