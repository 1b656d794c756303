package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicstock/clinicstock-backend/pkg/database"
	"github.com/clinicstock/clinicstock-backend/pkg/errors"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
	"github.com/clinicstock/clinicstock-backend/pkg/testutil"
)

func newBatchRepo(t *testing.T) (*BatchRepository, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	return NewBatchRepository(database.Wrap(mockDB.DB, log)), mockDB
}

func TestBatchGetByIDNotFound(t *testing.T) {
	repo, mockDB := newBatchRepo(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT * FROM batches WHERE id = $1").
		WithArgs("missing").
		WillReturnRows(testutil.MockRows("id"))

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	mockDB.ExpectationsWereMet(t)
}

func TestBatchCurrentStock(t *testing.T) {
	repo, mockDB := newBatchRepo(t)
	defer mockDB.Close()

	now := time.Now().UTC()

	t.Run("sums non-expired remainders", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT SUM(quantity_remaining) FROM batches").
			WithArgs("item-1", now).
			WillReturnRows(testutil.MockRows("sum").AddRow(42))

		stock, err := repo.CurrentStock(context.Background(), "item-1", now)
		require.NoError(t, err)
		assert.Equal(t, 42, stock)
	})

	t.Run("null sum means zero stock", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT SUM(quantity_remaining) FROM batches").
			WithArgs("item-1", now).
			WillReturnRows(testutil.MockRows("sum").AddRow(nil))

		stock, err := repo.CurrentStock(context.Background(), "item-1", now)
		require.NoError(t, err)
		assert.Equal(t, 0, stock)
	})

	mockDB.ExpectationsWereMet(t)
}

func TestDeductTxGuardsNegativeRemainder(t *testing.T) {
	repo, mockDB := newBatchRepo(t)
	defer mockDB.Close()

	mockDB.ExpectBegin()
	mockDB.ExpectExec("UPDATE batches").
		WithArgs("batch-1", 99).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := mockDB.DB.Beginx()
	require.NoError(t, err)

	err = repo.DeductTx(context.Background(), tx, "batch-1", 99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInternal))
}

func TestBatchStatusDerivation(t *testing.T) {
	now := time.Now().UTC()

	depleted := &Batch{QuantityRemaining: 0, ExpiryDate: now.AddDate(1, 0, 0)}
	assert.Equal(t, BatchStatusDepleted, depleted.Status(now))

	// depleted wins even when also expired
	depletedExpired := &Batch{QuantityRemaining: 0, ExpiryDate: now.AddDate(0, 0, -1)}
	assert.Equal(t, BatchStatusDepleted, depletedExpired.Status(now))

	expired := &Batch{QuantityRemaining: 5, ExpiryDate: now.Add(-time.Minute)}
	assert.Equal(t, BatchStatusExpired, expired.Status(now))
	assert.False(t, expired.Usable(now))

	// expiry exactly now is already expired
	atBoundary := &Batch{QuantityRemaining: 5, ExpiryDate: now}
	assert.Equal(t, BatchStatusExpired, atBoundary.Status(now))

	active := &Batch{QuantityRemaining: 5, ExpiryDate: now.Add(time.Hour)}
	assert.Equal(t, BatchStatusActive, active.Status(now))
	assert.True(t, active.Usable(now))
}
