package handler

import (
	"net/http"
	"time"

	"github.com/clinicstock/clinicstock-backend/internal/stock/service"
	"github.com/clinicstock/clinicstock-backend/pkg/httputil"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
)

// AlertHandler serves the stock alert classification report
type AlertHandler struct {
	alerts *service.AlertEngine
	logger *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alerts *service.AlertEngine, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		logger: log,
	}
}

// Report handles GET /alerts. Items without any classification are
// omitted unless ?all=true is passed.
func (h *AlertHandler) Report(w http.ResponseWriter, r *http.Request) {
	includeAll := httputil.QueryBool(r, "all", false)

	alerts, err := h.alerts.Report(r.Context(), time.Now().UTC(), !includeAll)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"alerts":               alerts,
		"expiring_window_days": h.alerts.WindowDays(),
	})
}
