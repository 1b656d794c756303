package service

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicstock/clinicstock-backend/internal/stock/events"
	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
	"github.com/clinicstock/clinicstock-backend/pkg/errors"
	"github.com/clinicstock/clinicstock-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	s, err := testutil.NewIntegrationSuite(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start integration suite: %v\n", err)
		os.Exit(1)
	}
	suite = s

	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

type testStack struct {
	itemRepo   *repository.ItemRepository
	batchRepo  *repository.BatchRepository
	usageRepo  *repository.UsageRepository
	ledger     *BatchLedger
	alerts     *AlertEngine
	recorder   *UsageRecorder
	migrator   *LegacyMigrator
	forecaster *DemandForecaster
}

func newTestStack() *testStack {
	var publisher *events.StockEventPublisher

	itemRepo := repository.NewItemRepository(suite.DB)
	batchRepo := repository.NewBatchRepository(suite.DB)
	usageRepo := repository.NewUsageRepository(suite.DB)
	forecastRepo := repository.NewForecastRepository(suite.DB)

	ledger := NewBatchLedger(suite.DB, itemRepo, batchRepo, usageRepo, publisher, 10*time.Second, suite.Logger)
	alerts := NewAlertEngine(itemRepo, batchRepo, 30, suite.Logger)
	recorder := NewUsageRecorder(ledger, itemRepo, usageRepo, alerts, publisher, suite.Logger)
	migrator := NewLegacyMigrator(suite.DB, itemRepo, batchRepo, publisher, 2, 3*time.Second, suite.Logger)
	forecaster := NewDemandForecaster(itemRepo, batchRepo, forecastRepo, suite.Logger)

	return &testStack{
		itemRepo:   itemRepo,
		batchRepo:  batchRepo,
		usageRepo:  usageRepo,
		ledger:     ledger,
		alerts:     alerts,
		recorder:   recorder,
		migrator:   migrator,
		forecaster: forecaster,
	}
}

func (s *testStack) insertItem(t *testing.T, ctx context.Context, opts ...func(*testutil.ItemFixture)) testutil.ItemFixture {
	t.Helper()
	item := suite.Fixtures.Item(opts...)
	require.NoError(t, suite.Fixtures.InsertItem(ctx, suite.RawDB, item))
	return item
}

func (s *testStack) receiveBatch(t *testing.T, ctx context.Context, itemID string, qty int, expiry time.Time) *repository.Batch {
	t.Helper()
	batch, err := s.ledger.CreateBatch(ctx, itemID, CreateBatchInput{
		QuantityReceived: qty,
		ExpiryDate:       expiry,
	})
	require.NoError(t, err)
	return batch
}

func TestConsumeFIFOOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	stack := newTestStack()
	now := time.Now().UTC()

	item := stack.insertItem(t, ctx)

	later := stack.receiveBatch(t, ctx, item.ID, 50, now.AddDate(0, 6, 0))
	soon := stack.receiveBatch(t, ctx, item.ID, 10, now.AddDate(0, 1, 0))

	event, err := stack.ledger.Consume(ctx, item.ID, 15, ConsumeOptions{})
	require.NoError(t, err)

	// soonest expiry drains first even though it was received second
	require.Len(t, event.Allocations, 2)
	assert.Equal(t, soon.ID, event.Allocations[0].BatchID)
	assert.Equal(t, 10, event.Allocations[0].QuantityDeducted)
	assert.Equal(t, later.ID, event.Allocations[1].BatchID)
	assert.Equal(t, 5, event.Allocations[1].QuantityDeducted)

	stock, err := stack.ledger.CurrentStock(ctx, item.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 45, stock)
}

func TestConsumeExpiryTieBreaksByInsertionOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	stack := newTestStack()

	expiry := time.Now().UTC().AddDate(0, 3, 0).Truncate(time.Second)
	item := stack.insertItem(t, ctx)

	first := stack.receiveBatch(t, ctx, item.ID, 10, expiry)
	second := stack.receiveBatch(t, ctx, item.ID, 10, expiry)

	event, err := stack.ledger.Consume(ctx, item.ID, 12, ConsumeOptions{})
	require.NoError(t, err)

	require.Len(t, event.Allocations, 2)
	assert.Equal(t, first.ID, event.Allocations[0].BatchID)
	assert.Equal(t, 10, event.Allocations[0].QuantityDeducted)
	assert.Equal(t, second.ID, event.Allocations[1].BatchID)
	assert.Equal(t, 2, event.Allocations[1].QuantityDeducted)
}

func TestConsumeInsufficientStockIsAtomic(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	stack := newTestStack()
	now := time.Now().UTC()

	item := stack.insertItem(t, ctx)
	stack.receiveBatch(t, ctx, item.ID, 10, now.AddDate(0, 1, 0))
	stack.receiveBatch(t, ctx, item.ID, 5, now.AddDate(0, 2, 0))

	_, err := stack.ledger.Consume(ctx, item.ID, 16, ConsumeOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	// nothing was deducted and no usage event was written
	stock, err := stack.ledger.CurrentStock(ctx, item.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 15, stock)

	history, err := stack.recorder.History(ctx, item.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestConsumeExcludesExpiredStock(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	stack := newTestStack()
	now := time.Now().UTC()

	item := stack.insertItem(t, ctx)
	stack.receiveBatch(t, ctx, item.ID, 100, now.AddDate(0, 0, -1))
	stack.receiveBatch(t, ctx, item.ID, 10, now.AddDate(0, 1, 0))

	// the expired hundred must not satisfy this request
	_, err := stack.ledger.Consume(ctx, item.ID, 11, ConsumeOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	stock, err := stack.ledger.CurrentStock(ctx, item.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 10, stock)

	wastage, err := stack.ledger.Wastage(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, wastage, 1)
	assert.Equal(t, 100, wastage[0].QuantityRemaining)
}

func TestConcurrentConsumersNeverOversell(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	stack := newTestStack()
	now := time.Now().UTC()

	item := stack.insertItem(t, ctx)
	batch := stack.receiveBatch(t, ctx, item.ID, 100, now.AddDate(1, 0, 0))

	const workers = 20
	const each = 10 // 20 x 10 = 200 requested against 100 on hand

	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := stack.ledger.Consume(ctx, item.ID, each, ConsumeOptions{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t,
			errors.Is(err, errors.ErrInsufficientStock) || errors.Is(err, errors.ErrLockTimeout),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 10, succeeded, "exactly the stock on hand should be sold")

	stock, err := stack.ledger.CurrentStock(ctx, item.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 0, stock)

	// replaying the audit trail reproduces the deductions
	deducted, err := stack.usageRepo.SumAllocationsByBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, deducted)
}

func TestLegacyMigrationIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	stack := newTestStack()

	legacyStock := 150
	item := stack.insertItem(t, ctx, func(i *testutil.ItemFixture) {
		i.LegacyStock = &legacyStock
	})

	outcome, err := stack.migrator.MigrateItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, MigrationMigrated, outcome)

	// second run must not duplicate
	outcome, err = stack.migrator.MigrateItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, MigrationSkipped, outcome)

	batches, err := stack.ledger.ListBatches(ctx, item.ID, true)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 150, batches[0].QuantityReceived)
	assert.Equal(t, 150, batches[0].QuantityRemaining)
	if assert.NotNil(t, batches[0].Notes) {
		assert.Contains(t, *batches[0].Notes, "original stock = 150")
	}
}

func TestMigrateAllCountsOutcomes(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	stack := newTestStack()

	legacyStock := 40
	withLegacy := stack.insertItem(t, ctx, func(i *testutil.ItemFixture) {
		i.LegacyStock = &legacyStock
	})
	noLegacy := stack.insertItem(t, ctx)
	alreadyBatched := stack.insertItem(t, ctx, func(i *testutil.ItemFixture) {
		i.LegacyStock = &legacyStock
	})
	stack.receiveBatch(t, ctx, alreadyBatched.ID, 10, time.Now().UTC().AddDate(1, 0, 0))

	report, err := stack.migrator.MigrateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Migrated)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, report.Failed)

	batches, err := stack.ledger.ListBatches(ctx, withLegacy.ID, true)
	require.NoError(t, err)
	assert.Len(t, batches, 1)

	batches, err = stack.ledger.ListBatches(ctx, noLegacy.ID, true)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestDeleteBatchRejectsTouchedBatches(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	stack := newTestStack()
	now := time.Now().UTC()

	item := stack.insertItem(t, ctx)
	batch := stack.receiveBatch(t, ctx, item.ID, 10, now.AddDate(0, 1, 0))

	_, err := stack.ledger.Consume(ctx, item.ID, 1, ConsumeOptions{})
	require.NoError(t, err)

	err = stack.ledger.DeleteBatch(ctx, batch.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	// an untouched batch deletes cleanly
	fresh := stack.receiveBatch(t, ctx, item.ID, 5, now.AddDate(0, 2, 0))
	require.NoError(t, stack.ledger.DeleteBatch(ctx, fresh.ID))
}

func TestRecordUsageAppendsAuditTrail(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	stack := newTestStack()
	now := time.Now().UTC()

	item := stack.insertItem(t, ctx)
	stack.receiveBatch(t, ctx, item.ID, 30, now.AddDate(0, 3, 0))

	_, err := stack.recorder.RecordUsage(ctx, item.ID, RecordUsageInput{Quantity: 5, RecordedBy: "nurse-1"})
	require.NoError(t, err)
	_, err = stack.recorder.RecordUsage(ctx, item.ID, RecordUsageInput{Quantity: 3, RecordedBy: "nurse-2"})
	require.NoError(t, err)

	history, err := stack.recorder.History(ctx, item.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	total := 0
	for _, e := range history {
		for _, a := range e.Allocations {
			total += a.QuantityDeducted
		}
	}
	assert.Equal(t, 8, total)

	stock, err := stack.ledger.CurrentStock(ctx, item.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 22, stock)
}

func TestForecastAgainstRealStock(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	stack := newTestStack()
	now := time.Now().UTC()

	item := stack.insertItem(t, ctx)
	stack.receiveBatch(t, ctx, item.ID, 100, now.AddDate(1, 0, 0))

	// no parameters yet: insufficient data, not an error
	forecast, err := stack.forecaster.Forecast(ctx, item.ID, 30)
	require.NoError(t, err)
	assert.True(t, forecast.InsufficientData)
	assert.Equal(t, TierOK, forecast.UrgencyTier)

	_, err = stack.forecaster.SetParameters(ctx, flatParams2(item.ID, "50", "0.5", "0.8", "1", "1"))
	require.NoError(t, err)

	forecast, err = stack.forecaster.Forecast(ctx, item.ID, 30)
	require.NoError(t, err)
	assert.False(t, forecast.InsufficientData)
	assert.Equal(t, 100, forecast.CurrentStock)
	// demand 20/day, 100 on hand: five days of coverage
	require.NotNil(t, forecast.DaysUntilStockout)
	assert.Equal(t, 5, *forecast.DaysUntilStockout)
	assert.Equal(t, TierUrgent, forecast.UrgencyTier)
}

func flatParams2(itemID, volume, split, rate, units, multiplier string) *repository.ForecastParameters {
	p := flatParams(volume, split, rate, units, multiplier)
	p.ItemID = itemID
	return p
}
