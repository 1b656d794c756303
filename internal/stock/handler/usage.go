package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clinicstock/clinicstock-backend/internal/stock/service"
	"github.com/clinicstock/clinicstock-backend/pkg/httputil"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
)

// UsageHandler serves consumption recording and the usage audit trail
type UsageHandler struct {
	recorder *service.UsageRecorder
	logger   *logger.Logger
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(recorder *service.UsageRecorder, log *logger.Logger) *UsageHandler {
	return &UsageHandler{
		recorder: recorder,
		logger:   log,
	}
}

type recordUsageRequest struct {
	Quantity  int        `json:"quantity" validate:"required,gt=0"`
	UsageDate *time.Time `json:"usage_date,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// Record handles POST /items/{id}/usage
func (h *UsageHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordUsageRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	in := service.RecordUsageInput{
		Quantity:   req.Quantity,
		RecordedBy: recordedBy(r),
		Notes:      req.Notes,
	}
	if req.UsageDate != nil {
		in.UsageDate = *req.UsageDate
	}

	event, err := h.recorder.RecordUsage(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, event)
}

// History handles GET /items/{id}/usage
func (h *UsageHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := httputil.QueryInt(r, "limit", 100)

	events, err := h.recorder.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, events)
}

// recordedBy resolves the acting user from the gateway-forwarded headers
func recordedBy(r *http.Request) string {
	if v := r.Header.Get("X-User-ID"); v != "" {
		return v
	}
	return r.Header.Get("X-User-Email")
}
