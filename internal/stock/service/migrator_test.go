package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
)

func TestBuildLegacyBatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stock := 150

	t.Run("uses legacy fields when present", func(t *testing.T) {
		batchNumber := "OLD-LOT-9"
		expiry := now.AddDate(0, 6, 0)
		received := now.AddDate(0, -3, 0)

		item := &repository.Item{
			ID:                 "item-1",
			LegacyStock:        &stock,
			LegacyBatchNumber:  &batchNumber,
			LegacyExpiryDate:   &expiry,
			LegacyReceivedDate: &received,
		}

		b := buildLegacyBatch(item, now, 2)

		assert.Equal(t, "item-1", b.ItemID)
		assert.Equal(t, "OLD-LOT-9", b.BatchNumber)
		assert.Equal(t, 150, b.QuantityReceived)
		assert.Equal(t, 150, b.QuantityRemaining)
		assert.Equal(t, expiry, b.ExpiryDate)
		assert.Equal(t, received, b.ReceivedDate)
	})

	t.Run("placeholders for missing legacy dates", func(t *testing.T) {
		item := &repository.Item{
			ID:          "item-2",
			LegacyStock: &stock,
		}

		b := buildLegacyBatch(item, now, 2)

		assert.Equal(t, "", b.BatchNumber)
		assert.Equal(t, now.AddDate(2, 0, 0), b.ExpiryDate)
		assert.Equal(t, now, b.ReceivedDate)
	})

	t.Run("notes record the original scalar", func(t *testing.T) {
		item := &repository.Item{
			ID:          "item-3",
			LegacyStock: &stock,
		}

		b := buildLegacyBatch(item, now, 2)

		if assert.NotNil(t, b.Notes) {
			assert.Equal(t, "migrated from legacy field, original stock = 150", *b.Notes)
		}
	})
}
