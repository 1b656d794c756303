package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Batch lifecycle events
	EventBatchReceived = "stock.batch.received"
	EventBatchDeleted  = "stock.batch.deleted"

	// Consumption events
	EventUsageRecorded = "stock.usage.recorded"

	// Migration events
	EventLegacyMigrated = "stock.legacy.migrated"

	// Alert events
	EventAlertRaised = "stock.alert.raised"
)

// Exchange names
const (
	ExchangeStockEvents = "stock.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// BatchReceivedEvent is published when a new batch enters the ledger
type BatchReceivedEvent struct {
	BatchID          string    `json:"batch_id"`
	ItemID           string    `json:"item_id"`
	BatchNumber      string    `json:"batch_number"`
	QuantityReceived int       `json:"quantity_received"`
	ExpiryDate       time.Time `json:"expiry_date"`
}

// BatchDeletedEvent is published when an untouched batch is removed
type BatchDeletedEvent struct {
	BatchID     string `json:"batch_id"`
	ItemID      string `json:"item_id"`
	BatchNumber string `json:"batch_number"`
}

// UsageRecordedEvent is published after a successful consumption
type UsageRecordedEvent struct {
	UsageEventID  string            `json:"usage_event_id"`
	ItemID        string            `json:"item_id"`
	TotalQuantity int               `json:"total_quantity"`
	UsageDate     time.Time         `json:"usage_date"`
	RecordedBy    string            `json:"recorded_by"`
	Allocations   []UsageAllocation `json:"allocations"`
}

// UsageAllocation mirrors a single batch deduction within a usage event
type UsageAllocation struct {
	BatchID          string `json:"batch_id"`
	QuantityDeducted int    `json:"quantity_deducted"`
}

// LegacyMigratedEvent is published when a legacy stock scalar is converted
type LegacyMigratedEvent struct {
	ItemID        string `json:"item_id"`
	BatchID       string `json:"batch_id"`
	OriginalStock int    `json:"original_stock"`
}

// AlertRaisedEvent is published when an item's classification becomes actionable
type AlertRaisedEvent struct {
	ItemID          string   `json:"item_id"`
	ItemName        string   `json:"item_name"`
	Classifications []string `json:"classifications"`
	CurrentStock    int      `json:"current_stock"`
	MinimumStock    int      `json:"minimum_stock"`
}

type correlationKey struct{}

// WithCorrelationID attaches a correlation ID to the context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// getCorrelationID returns the correlation ID from context, generating one if absent
func getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}
