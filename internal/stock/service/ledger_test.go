package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
	"github.com/clinicstock/clinicstock-backend/pkg/errors"
)

func makeBatch(id string, remaining int, expiry time.Time) *repository.Batch {
	return &repository.Batch{
		ID:                id,
		QuantityRemaining: remaining,
		QuantityReceived:  remaining,
		ExpiryDate:        expiry,
	}
}

func TestAllocateByExpiry(t *testing.T) {
	now := time.Now().UTC()

	t.Run("draws from soonest expiry first", func(t *testing.T) {
		batches := []*repository.Batch{
			makeBatch("soon", 10, now.AddDate(0, 1, 0)),
			makeBatch("later", 50, now.AddDate(0, 6, 0)),
		}

		allocs, err := allocateByExpiry(batches, 5)
		require.NoError(t, err)
		require.Len(t, allocs, 1)
		assert.Equal(t, "soon", allocs[0].BatchID)
		assert.Equal(t, 5, allocs[0].QuantityDeducted)
	})

	t.Run("spans batches in order", func(t *testing.T) {
		batches := []*repository.Batch{
			makeBatch("a", 10, now.AddDate(0, 1, 0)),
			makeBatch("b", 10, now.AddDate(0, 2, 0)),
			makeBatch("c", 10, now.AddDate(0, 3, 0)),
		}

		allocs, err := allocateByExpiry(batches, 25)
		require.NoError(t, err)
		require.Len(t, allocs, 3)
		assert.Equal(t, "a", allocs[0].BatchID)
		assert.Equal(t, 10, allocs[0].QuantityDeducted)
		assert.Equal(t, "b", allocs[1].BatchID)
		assert.Equal(t, 10, allocs[1].QuantityDeducted)
		assert.Equal(t, "c", allocs[2].BatchID)
		assert.Equal(t, 5, allocs[2].QuantityDeducted)
	})

	t.Run("exact fit drains the batch", func(t *testing.T) {
		batches := []*repository.Batch{
			makeBatch("only", 10, now.AddDate(0, 1, 0)),
		}

		allocs, err := allocateByExpiry(batches, 10)
		require.NoError(t, err)
		require.Len(t, allocs, 1)
		assert.Equal(t, 10, allocs[0].QuantityDeducted)
	})

	t.Run("insufficient stock allocates nothing", func(t *testing.T) {
		batches := []*repository.Batch{
			makeBatch("a", 10, now.AddDate(0, 1, 0)),
			makeBatch("b", 5, now.AddDate(0, 2, 0)),
		}

		allocs, err := allocateByExpiry(batches, 16)
		require.Error(t, err)
		assert.Nil(t, allocs)
		assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "16", appErr.Details["requested"])
		assert.Equal(t, "15", appErr.Details["available"])
	})

	t.Run("no batches at all", func(t *testing.T) {
		_, err := allocateByExpiry(nil, 1)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
	})
}

func TestSynthesizeBatchNumber(t *testing.T) {
	got := synthesizeBatchNumber("a3f9c1d2-0000-4000-8000-000000000000", 7)
	assert.Equal(t, "AUTO-A3F9C1D2-0007", got)

	// short identifiers are used whole
	assert.Equal(t, "AUTO-ABC-0001", synthesizeBatchNumber("abc", 1))
}
