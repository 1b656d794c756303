package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
)

func alertBatch(remaining int, expiry time.Time) *repository.Batch {
	return &repository.Batch{
		QuantityReceived:  remaining + 10,
		QuantityRemaining: remaining,
		ExpiryDate:        expiry,
	}
}

func TestClassify(t *testing.T) {
	now := time.Now().UTC()
	item := &repository.Item{MinimumStock: 20}

	t.Run("no batches is out of stock", func(t *testing.T) {
		c := Classify(item, nil, now, 30)
		assert.True(t, c.OutOfStock)
		assert.False(t, c.LowStock)
		assert.Equal(t, []string{AlertOutOfStock}, c.Labels())
	})

	t.Run("zero stock is out of stock, never low stock", func(t *testing.T) {
		batches := []*repository.Batch{alertBatch(0, now.AddDate(1, 0, 0))}
		c := Classify(item, batches, now, 30)
		assert.True(t, c.OutOfStock)
		assert.False(t, c.LowStock)
	})

	t.Run("stock at threshold is low stock", func(t *testing.T) {
		batches := []*repository.Batch{alertBatch(20, now.AddDate(1, 0, 0))}
		c := Classify(item, batches, now, 30)
		assert.True(t, c.LowStock)
		assert.False(t, c.OutOfStock)
	})

	t.Run("stock above threshold is clean", func(t *testing.T) {
		batches := []*repository.Batch{alertBatch(21, now.AddDate(1, 0, 0))}
		c := Classify(item, batches, now, 30)
		assert.False(t, c.Actionable())
		assert.Empty(t, c.Labels())
	})

	t.Run("expired remainders do not count as stock", func(t *testing.T) {
		batches := []*repository.Batch{
			alertBatch(100, now.AddDate(0, 0, -1)),
		}
		c := Classify(item, batches, now, 30)
		assert.True(t, c.OutOfStock)
		assert.True(t, c.Expired)
	})

	t.Run("batch expiring inside the window", func(t *testing.T) {
		batches := []*repository.Batch{
			alertBatch(50, now.AddDate(0, 0, 15)),
		}
		c := Classify(item, batches, now, 30)
		assert.True(t, c.ExpiringSoon)
		assert.False(t, c.Expired)
	})

	t.Run("batch expiring exactly at the window edge", func(t *testing.T) {
		batches := []*repository.Batch{
			alertBatch(50, now.AddDate(0, 0, 30)),
		}
		c := Classify(item, batches, now, 30)
		assert.True(t, c.ExpiringSoon)
	})

	t.Run("batch beyond the window is not expiring soon", func(t *testing.T) {
		batches := []*repository.Batch{
			alertBatch(50, now.AddDate(0, 0, 31)),
		}
		c := Classify(item, batches, now, 30)
		assert.False(t, c.ExpiringSoon)
	})

	t.Run("depleted expired batch raises nothing", func(t *testing.T) {
		batches := []*repository.Batch{
			alertBatch(0, now.AddDate(0, 0, -5)),
			alertBatch(50, now.AddDate(1, 0, 0)),
		}
		c := Classify(item, batches, now, 30)
		assert.False(t, c.Expired)
		assert.False(t, c.Actionable())
	})

	t.Run("conditions combine independently", func(t *testing.T) {
		batches := []*repository.Batch{
			alertBatch(5, now.AddDate(0, 0, 10)),  // low and expiring soon
			alertBatch(30, now.AddDate(0, 0, -2)), // expired remainder
		}
		c := Classify(item, batches, now, 30)
		assert.True(t, c.LowStock)
		assert.True(t, c.ExpiringSoon)
		assert.True(t, c.Expired)
		assert.False(t, c.OutOfStock)
		assert.Equal(t, []string{AlertLowStock, AlertExpiringSoon, AlertExpired}, c.Labels())
	})
}

func TestBuildItemAlert(t *testing.T) {
	now := time.Now().UTC()
	item := &repository.Item{ID: "i1", Name: "Amoxicillin", Category: "medication", MinimumStock: 10}

	soon := now.AddDate(0, 0, 12)
	batches := []*repository.Batch{
		alertBatch(5, soon),
		alertBatch(40, now.AddDate(1, 0, 0)),
		alertBatch(7, now.AddDate(0, 0, -1)),
	}

	alert := buildItemAlert(item, batches, now, 30)

	assert.Equal(t, 45, alert.CurrentStock)
	assert.Equal(t, 10, alert.MinimumStock)
	if assert.NotNil(t, alert.NearestExpiry) {
		assert.Equal(t, soon, *alert.NearestExpiry)
	}
	if assert.NotNil(t, alert.DaysUntilExpiry) {
		assert.Equal(t, 12, *alert.DaysUntilExpiry)
	}
	assert.Contains(t, alert.Classifications, AlertExpiringSoon)
	assert.Contains(t, alert.Classifications, AlertExpired)
}
