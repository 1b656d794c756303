package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
	"github.com/clinicstock/clinicstock-backend/internal/stock/service"
	"github.com/clinicstock/clinicstock-backend/pkg/errors"
	"github.com/clinicstock/clinicstock-backend/pkg/httputil"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
)

// ForecastHandler serves demand projections and their parameters
type ForecastHandler struct {
	forecaster *service.DemandForecaster
	logger     *logger.Logger
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(forecaster *service.DemandForecaster, log *logger.Logger) *ForecastHandler {
	return &ForecastHandler{
		forecaster: forecaster,
		logger:     log,
	}
}

// Forecast handles GET /items/{id}/forecast?days=N
func (h *ForecastHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	days := httputil.QueryInt(r, "days", service.DefaultForecastDays)

	forecast, err := h.forecaster.Forecast(r.Context(), chi.URLParam(r, "id"), days)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, forecast)
}

type forecastParametersRequest struct {
	DailyPatientVolume decimal.Decimal  `json:"daily_patient_volume"`
	ServiceSplit       decimal.Decimal  `json:"service_split"`
	PrescriptionRate   decimal.Decimal  `json:"prescription_rate"`
	UnitsPerEvent      decimal.Decimal  `json:"units_per_event"`
	DemandMultiplier   *decimal.Decimal `json:"demand_multiplier,omitempty"`
}

// SetParameters handles PUT /items/{id}/forecast-parameters
func (h *ForecastHandler) SetParameters(w http.ResponseWriter, r *http.Request) {
	var req forecastParametersRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	// the multiplier defaults to 1 when omitted, but an explicit value
	// has to be positive
	if req.DemandMultiplier != nil && req.DemandMultiplier.Sign() <= 0 {
		httputil.Error(w, errors.Validation(map[string]string{
			"demand_multiplier": "must be greater than zero",
		}))
		return
	}

	params := &repository.ForecastParameters{
		ItemID:             chi.URLParam(r, "id"),
		DailyPatientVolume: req.DailyPatientVolume,
		ServiceSplit:       req.ServiceSplit,
		PrescriptionRate:   req.PrescriptionRate,
		UnitsPerEvent:      req.UnitsPerEvent,
	}
	if req.DemandMultiplier != nil {
		params.DemandMultiplier = *req.DemandMultiplier
	}

	stored, err := h.forecaster.SetParameters(r.Context(), params)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stored)
}

// GetParameters handles GET /items/{id}/forecast-parameters
func (h *ForecastHandler) GetParameters(w http.ResponseWriter, r *http.Request) {
	params, err := h.forecaster.GetParameters(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, params)
}
