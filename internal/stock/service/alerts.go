package service

import (
	"context"
	"time"

	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
)

// Alert classification labels
const (
	AlertOutOfStock   = "out_of_stock"
	AlertLowStock     = "low_stock"
	AlertExpiringSoon = "expiring_soon"
	AlertExpired      = "expired"
)

// Classification is the set of alert conditions an item is in. The four
// conditions are independent except that out_of_stock and low_stock are
// mutually exclusive; zero stock is out_of_stock only.
type Classification struct {
	OutOfStock   bool `json:"out_of_stock"`
	LowStock     bool `json:"low_stock"`
	ExpiringSoon bool `json:"expiring_soon"`
	Expired      bool `json:"expired"`
}

// Labels returns the active classifications as a stable label list
func (c Classification) Labels() []string {
	labels := []string{}
	if c.OutOfStock {
		labels = append(labels, AlertOutOfStock)
	}
	if c.LowStock {
		labels = append(labels, AlertLowStock)
	}
	if c.ExpiringSoon {
		labels = append(labels, AlertExpiringSoon)
	}
	if c.Expired {
		labels = append(labels, AlertExpired)
	}
	return labels
}

// Actionable reports whether any condition is set
func (c Classification) Actionable() bool {
	return c.OutOfStock || c.LowStock || c.ExpiringSoon || c.Expired
}

// ItemAlert is one row of the alert report
type ItemAlert struct {
	ItemID          string     `json:"item_id"`
	Name            string     `json:"name"`
	Category        string     `json:"category"`
	Classifications []string   `json:"classifications"`
	CurrentStock    int        `json:"current_stock"`
	MinimumStock    int        `json:"minimum_stock"`
	NearestExpiry   *time.Time `json:"nearest_expiry,omitempty"`
	DaysUntilExpiry *int       `json:"days_until_expiry,omitempty"`
}

// AlertEngine classifies items against stock and expiry thresholds.
// It is read-only: classification is computed on demand, never stored.
type AlertEngine struct {
	itemRepo   *repository.ItemRepository
	batchRepo  *repository.BatchRepository
	windowDays int
	logger     *logger.Logger
}

// NewAlertEngine creates a new alert engine
func NewAlertEngine(itemRepo *repository.ItemRepository, batchRepo *repository.BatchRepository, windowDays int, log *logger.Logger) *AlertEngine {
	return &AlertEngine{
		itemRepo:   itemRepo,
		batchRepo:  batchRepo,
		windowDays: windowDays,
		logger:     log,
	}
}

// Classify computes the classification set for one item from its batches
// as of the given time. windowDays is the expiring-soon horizon.
func Classify(item *repository.Item, batches []*repository.Batch, asOf time.Time, windowDays int) Classification {
	var c Classification
	horizon := asOf.AddDate(0, 0, windowDays)

	stock := 0
	for _, b := range batches {
		if b.ExpiryDate.After(asOf) {
			stock += b.QuantityRemaining
			if b.QuantityRemaining > 0 && !b.ExpiryDate.After(horizon) {
				c.ExpiringSoon = true
			}
		} else if b.QuantityRemaining > 0 {
			c.Expired = true
		}
	}

	if stock == 0 {
		c.OutOfStock = true
	} else if stock <= item.MinimumStock {
		c.LowStock = true
	}

	return c
}

// ClassifyItem classifies a single item by ID
func (e *AlertEngine) ClassifyItem(ctx context.Context, itemID string, asOf time.Time) (*ItemAlert, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	item, err := e.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	batches, err := e.batchRepo.ListByItem(ctx, itemID, true, asOf)
	if err != nil {
		return nil, err
	}

	return buildItemAlert(item, batches, asOf, e.windowDays), nil
}

// Report classifies every active item. With actionableOnly set, items with
// an empty classification set are dropped from the result.
func (e *AlertEngine) Report(ctx context.Context, asOf time.Time, actionableOnly bool) ([]*ItemAlert, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	items, err := e.itemRepo.GetAllActive(ctx)
	if err != nil {
		return nil, err
	}

	alerts := []*ItemAlert{}
	for _, item := range items {
		batches, err := e.batchRepo.ListByItem(ctx, item.ID, true, asOf)
		if err != nil {
			return nil, err
		}

		alert := buildItemAlert(item, batches, asOf, e.windowDays)
		if actionableOnly && len(alert.Classifications) == 0 {
			continue
		}
		alerts = append(alerts, alert)
	}

	e.logger.Debug().Int("items", len(items)).Int("alerts", len(alerts)).Msg("alert report built")
	return alerts, nil
}

// WindowDays returns the configured expiring-soon horizon
func (e *AlertEngine) WindowDays() int {
	return e.windowDays
}

func buildItemAlert(item *repository.Item, batches []*repository.Batch, asOf time.Time, windowDays int) *ItemAlert {
	c := Classify(item, batches, asOf, windowDays)

	alert := &ItemAlert{
		ItemID:          item.ID,
		Name:            item.Name,
		Category:        item.Category,
		Classifications: c.Labels(),
		MinimumStock:    item.MinimumStock,
	}

	for _, b := range batches {
		if !b.Usable(asOf) {
			continue
		}
		alert.CurrentStock += b.QuantityRemaining
		if alert.NearestExpiry == nil || b.ExpiryDate.Before(*alert.NearestExpiry) {
			expiry := b.ExpiryDate
			alert.NearestExpiry = &expiry
		}
	}

	if alert.NearestExpiry != nil {
		days := int(alert.NearestExpiry.Sub(asOf).Hours() / 24)
		alert.DaysUntilExpiry = &days
	}

	return alert
}
