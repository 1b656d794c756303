package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
	"github.com/clinicstock/clinicstock-backend/internal/stock/service"
	"github.com/clinicstock/clinicstock-backend/pkg/httputil"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
)

// BatchHandler serves batch receipt, listing, and correction deletes
type BatchHandler struct {
	ledger *service.BatchLedger
	logger *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(ledger *service.BatchLedger, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		ledger: ledger,
		logger: log,
	}
}

type createBatchRequest struct {
	QuantityReceived int              `json:"quantity_received" validate:"required,gt=0"`
	ExpiryDate       time.Time        `json:"expiry_date" validate:"required"`
	BatchNumber      string           `json:"batch_number,omitempty"`
	LotNumber        *string          `json:"lot_number,omitempty"`
	ReceivedDate     *time.Time       `json:"received_date,omitempty"`
	UnitCost         *decimal.Decimal `json:"unit_cost,omitempty"`
	Supplier         *string          `json:"supplier,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
}

// batchView decorates a batch with its derived status for responses
type batchView struct {
	*repository.Batch
	Status string `json:"status"`
}

// Create handles POST /items/{id}/batches
func (h *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	in := service.CreateBatchInput{
		QuantityReceived: req.QuantityReceived,
		ExpiryDate:       req.ExpiryDate,
		BatchNumber:      req.BatchNumber,
		LotNumber:        req.LotNumber,
		UnitCost:         req.UnitCost,
		Supplier:         req.Supplier,
		Notes:            req.Notes,
	}
	if req.ReceivedDate != nil {
		in.ReceivedDate = *req.ReceivedDate
	}

	batch, err := h.ledger.CreateBatch(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, batch)
}

// List handles GET /items/{id}/batches. Expired lots are retained and
// reported by default; callers opt out with ?include_expired=false.
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	includeExpired := httputil.QueryBool(r, "include_expired", true)

	batches, err := h.ledger.ListBatches(r.Context(), chi.URLParam(r, "id"), includeExpired)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	now := time.Now().UTC()
	views := make([]batchView, len(batches))
	for i, b := range batches {
		views[i] = batchView{Batch: b, Status: b.Status(now)}
	}

	httputil.JSON(w, http.StatusOK, views)
}

// Delete handles DELETE /batches/{id}
func (h *BatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteBatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}
