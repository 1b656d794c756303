package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
	"github.com/clinicstock/clinicstock-backend/internal/stock/service"
	"github.com/clinicstock/clinicstock-backend/pkg/database"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
	"github.com/clinicstock/clinicstock-backend/pkg/testutil"
)

func newBatchHandler(t *testing.T) (*BatchHandler, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "test")
	db := database.Wrap(mockDB.DB, log)

	itemRepo := repository.NewItemRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	ledger := service.NewBatchLedger(db, itemRepo, batchRepo, usageRepo, nil, time.Second, log)

	return NewBatchHandler(ledger, log), mockDB
}

func TestBatchListIncludesExpiredByDefault(t *testing.T) {
	h, mockDB := newBatchHandler(t)
	defer mockDB.Close()

	itemID := "11111111-2222-4333-8444-555555555555"
	now := time.Now().UTC()

	mockDB.ExpectQuery("SELECT * FROM items WHERE id = $1 AND is_active = true").
		WithArgs(itemID).
		WillReturnRows(testutil.MockRows(
			"id", "name", "category", "unit_of_measure", "minimum_stock", "unit_cost",
			"legacy_stock", "legacy_batch_number", "legacy_expiry_date", "legacy_received_date",
			"batch_sequence", "is_active", "created_at", "updated_at",
		).AddRow(itemID, "Amoxicillin 100mg", "medication", "tablet", 20, "0.45",
			nil, nil, nil, nil, 0, true, now, now))

	// a plain list must take the unfiltered branch: one bind argument,
	// no expiry predicate
	mockDB.ExpectQuery("SELECT * FROM batches").
		WithArgs(itemID).
		WillReturnRows(testutil.MockRows("id"))

	r := chi.NewRouter()
	r.Get("/items/{id}/batches", h.List)

	req := httptest.NewRequest(http.MethodGet, "/items/"+itemID+"/batches", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	mockDB.ExpectationsWereMet(t)
}
