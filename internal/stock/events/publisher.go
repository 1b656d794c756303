package events

import (
	"context"

	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
	"github.com/clinicstock/clinicstock-backend/pkg/messaging"
)

// StockEventPublisher publishes stock domain events for external
// dashboards and reporting collaborators. All methods are nil-safe so
// tests can run without a broker.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishBatchReceived publishes a batch received event
func (p *StockEventPublisher) PublishBatchReceived(ctx context.Context, batch *repository.Batch) {
	if p == nil {
		return
	}

	data := messaging.BatchReceivedEvent{
		BatchID:          batch.ID,
		ItemID:           batch.ItemID,
		BatchNumber:      batch.BatchNumber,
		QuantityReceived: batch.QuantityReceived,
		ExpiryDate:       batch.ExpiryDate,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchReceived, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish batch received event")
	}
}

// PublishBatchDeleted publishes a batch deleted event
func (p *StockEventPublisher) PublishBatchDeleted(ctx context.Context, batch *repository.Batch) {
	if p == nil {
		return
	}

	data := messaging.BatchDeletedEvent{
		BatchID:     batch.ID,
		ItemID:      batch.ItemID,
		BatchNumber: batch.BatchNumber,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchDeleted, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish batch deleted event")
	}
}

// PublishUsageRecorded publishes a usage recorded event
func (p *StockEventPublisher) PublishUsageRecorded(ctx context.Context, event *repository.UsageEvent) {
	if p == nil {
		return
	}

	recordedBy := ""
	if event.RecordedBy != nil {
		recordedBy = *event.RecordedBy
	}

	allocations := make([]messaging.UsageAllocation, len(event.Allocations))
	for i, alloc := range event.Allocations {
		allocations[i] = messaging.UsageAllocation{
			BatchID:          alloc.BatchID,
			QuantityDeducted: alloc.QuantityDeducted,
		}
	}

	data := messaging.UsageRecordedEvent{
		UsageEventID:  event.ID,
		ItemID:        event.ItemID,
		TotalQuantity: event.TotalQuantity,
		UsageDate:     event.UsageDate,
		RecordedBy:    recordedBy,
		Allocations:   allocations,
	}

	if err := p.publisher.Publish(ctx, messaging.EventUsageRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", event.ItemID).Msg("failed to publish usage recorded event")
	}
}

// PublishLegacyMigrated publishes a legacy migration event
func (p *StockEventPublisher) PublishLegacyMigrated(ctx context.Context, itemID, batchID string, originalStock int) {
	if p == nil {
		return
	}

	data := messaging.LegacyMigratedEvent{
		ItemID:        itemID,
		BatchID:       batchID,
		OriginalStock: originalStock,
	}

	if err := p.publisher.Publish(ctx, messaging.EventLegacyMigrated, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", itemID).Msg("failed to publish legacy migrated event")
	}
}

// PublishAlertRaised publishes an alert raised event
func (p *StockEventPublisher) PublishAlertRaised(ctx context.Context, data messaging.AlertRaisedEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, messaging.EventAlertRaised, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", data.ItemID).Msg("failed to publish alert raised event")
	}
}
