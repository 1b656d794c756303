package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinicstock/clinicstock-backend/internal/stock/service"
	"github.com/clinicstock/clinicstock-backend/pkg/httputil"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
)

// ItemHandler serves the read-only item catalog plus the derived
// per-item stock figure.
type ItemHandler struct {
	ledger *service.BatchLedger
	items  *service.CatalogReader
	logger *logger.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(ledger *service.BatchLedger, items *service.CatalogReader, log *logger.Logger) *ItemHandler {
	return &ItemHandler{
		ledger: ledger,
		items:  items,
		logger: log,
	}
}

// List handles GET /items
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	page := httputil.QueryInt(r, "page", 1)
	perPage := httputil.QueryInt(r, "per_page", 50)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	category := r.URL.Query().Get("category")

	items, total, err := h.items.List(r.Context(), page, perPage, category)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Get handles GET /items/{id}
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.items.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, item)
}

// CurrentStock handles GET /items/{id}/stock
func (h *ItemHandler) CurrentStock(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	stock, err := h.ledger.CurrentStock(r.Context(), itemID, time.Now().UTC())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"item_id":       itemID,
		"current_stock": stock,
	})
}

// Wastage handles GET /items/{id}/wastage
func (h *ItemHandler) Wastage(w http.ResponseWriter, r *http.Request) {
	batches, err := h.ledger.Wastage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	units := 0
	for _, b := range batches {
		units += b.QuantityRemaining
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"batches":      batches,
		"wasted_units": units,
	})
}
