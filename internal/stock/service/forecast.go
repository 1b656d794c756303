package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
	"github.com/clinicstock/clinicstock-backend/pkg/errors"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
)

// Urgency tiers, from days-until-stockout
const (
	TierCritical UrgencyTier = "CRITICAL"
	TierUrgent   UrgencyTier = "URGENT"
	TierWarning  UrgencyTier = "WARNING"
	TierOK       UrgencyTier = "OK"
)

// UrgencyTier buckets a stockout projection for triage
type UrgencyTier string

// StockoutNever is the days-until-stockout sentinel for zero demand
const StockoutNever = -1

// DefaultForecastDays is the horizon used when the caller supplies none
const DefaultForecastDays = 30

// Forecast is the demand projection for one item
type Forecast struct {
	ItemID               string                         `json:"item_id"`
	Days                 int                            `json:"days"`
	CurrentStock         int                            `json:"current_stock"`
	DailyDemand          decimal.Decimal                `json:"daily_demand"`
	ForecastHorizonUnits decimal.Decimal                `json:"forecast_horizon_units"`
	DaysUntilStockout    *int                           `json:"days_until_stockout"`
	UrgencyTier          UrgencyTier                    `json:"urgency_tier"`
	InsufficientData     bool                           `json:"insufficient_data"`
	ParametersUsed       *repository.ForecastParameters `json:"parameters_used,omitempty"`
}

// DemandForecaster projects demand from configured per-item parameters
// and the current usable stock. Purely derived, nothing is persisted.
type DemandForecaster struct {
	itemRepo     *repository.ItemRepository
	batchRepo    *repository.BatchRepository
	forecastRepo *repository.ForecastRepository
	logger       *logger.Logger
}

// NewDemandForecaster creates a new demand forecaster
func NewDemandForecaster(
	itemRepo *repository.ItemRepository,
	batchRepo *repository.BatchRepository,
	forecastRepo *repository.ForecastRepository,
	log *logger.Logger,
) *DemandForecaster {
	return &DemandForecaster{
		itemRepo:     itemRepo,
		batchRepo:    batchRepo,
		forecastRepo: forecastRepo,
		logger:       log,
	}
}

// Forecast projects demand for one item over the given horizon in days.
// Items without configured parameters return an insufficient-data result
// rather than an error.
func (f *DemandForecaster) Forecast(ctx context.Context, itemID string, days int) (*Forecast, error) {
	if days <= 0 {
		days = DefaultForecastDays
	}

	if _, err := f.itemRepo.GetByID(ctx, itemID); err != nil {
		return nil, err
	}

	stock, err := f.batchRepo.CurrentStock(ctx, itemID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	params, err := f.forecastRepo.GetByItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return &Forecast{
				ItemID:           itemID,
				Days:             days,
				CurrentStock:     stock,
				UrgencyTier:      TierOK,
				InsufficientData: true,
			}, nil
		}
		return nil, err
	}

	demand, err := DailyDemand(params)
	if err != nil {
		return nil, err
	}

	result := &Forecast{
		ItemID:               itemID,
		Days:                 days,
		CurrentStock:         stock,
		DailyDemand:          demand,
		ForecastHorizonUnits: demand.Mul(decimal.NewFromInt(int64(days))),
		ParametersUsed:       params,
	}

	stockoutDays := DaysUntilStockout(stock, demand)
	result.UrgencyTier = TierFor(stockoutDays)
	if stockoutDays != StockoutNever {
		result.DaysUntilStockout = &stockoutDays
	}

	return result, nil
}

// SetParameters validates and stores forecast parameters for an item
func (f *DemandForecaster) SetParameters(ctx context.Context, params *repository.ForecastParameters) (*repository.ForecastParameters, error) {
	if _, err := f.itemRepo.GetByID(ctx, params.ItemID); err != nil {
		return nil, err
	}

	if params.DemandMultiplier.IsZero() {
		params.DemandMultiplier = decimal.NewFromInt(1)
	}

	if err := validateParameters(params); err != nil {
		return nil, err
	}

	if err := f.forecastRepo.Upsert(ctx, params); err != nil {
		return nil, err
	}

	f.logger.Info().Str("item_id", params.ItemID).Msg("forecast parameters updated")
	return params, nil
}

// GetParameters returns the stored forecast parameters for an item
func (f *DemandForecaster) GetParameters(ctx context.Context, itemID string) (*repository.ForecastParameters, error) {
	if _, err := f.itemRepo.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return f.forecastRepo.GetByItem(ctx, itemID)
}

// DailyDemand computes expected daily consumption:
// volume x split x rate x units x multiplier.
func DailyDemand(params *repository.ForecastParameters) (decimal.Decimal, error) {
	if err := validateParameters(params); err != nil {
		return decimal.Zero, err
	}

	multiplier := params.DemandMultiplier
	if multiplier.IsZero() {
		multiplier = decimal.NewFromInt(1)
	}

	return params.DailyPatientVolume.
		Mul(params.ServiceSplit).
		Mul(params.PrescriptionRate).
		Mul(params.UnitsPerEvent).
		Mul(multiplier), nil
}

// DaysUntilStockout projects full whole days of coverage at the given
// daily demand. Zero demand never runs out and yields StockoutNever.
func DaysUntilStockout(currentStock int, dailyDemand decimal.Decimal) int {
	if dailyDemand.Sign() <= 0 {
		return StockoutNever
	}
	if currentStock <= 0 {
		return 0
	}
	return int(decimal.NewFromInt(int64(currentStock)).Div(dailyDemand).IntPart())
}

// TierFor buckets a stockout projection into an urgency tier
func TierFor(daysUntilStockout int) UrgencyTier {
	if daysUntilStockout == StockoutNever {
		return TierOK
	}
	switch {
	case daysUntilStockout <= 3:
		return TierCritical
	case daysUntilStockout <= 7:
		return TierUrgent
	case daysUntilStockout <= 14:
		return TierWarning
	default:
		return TierOK
	}
}

func validateParameters(params *repository.ForecastParameters) error {
	details := make(map[string]string)
	one := decimal.NewFromInt(1)

	if params.DailyPatientVolume.Sign() <= 0 {
		details["daily_patient_volume"] = "must be greater than zero"
	}
	if params.ServiceSplit.Sign() < 0 || params.ServiceSplit.GreaterThan(one) {
		details["service_split"] = "must be between 0 and 1"
	}
	if params.PrescriptionRate.Sign() < 0 || params.PrescriptionRate.GreaterThan(one) {
		details["prescription_rate"] = "must be between 0 and 1"
	}
	if params.UnitsPerEvent.Sign() <= 0 {
		details["units_per_event"] = "must be greater than zero"
	}
	if params.DemandMultiplier.Sign() < 0 {
		details["demand_multiplier"] = "must not be negative"
	}

	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}
