package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clinicstock/clinicstock-backend/pkg/database"
	"github.com/clinicstock/clinicstock-backend/pkg/errors"
)

// ForecastParameters holds the externally configured demand inputs for one
// item, keyed by item ID. The demand multiplier carries seasonal/weather
// adjustments and defaults to 1.
type ForecastParameters struct {
	ItemID             string          `db:"item_id" json:"item_id"`
	DailyPatientVolume decimal.Decimal `db:"daily_patient_volume" json:"daily_patient_volume"`
	ServiceSplit       decimal.Decimal `db:"service_split" json:"service_split"`
	PrescriptionRate   decimal.Decimal `db:"prescription_rate" json:"prescription_rate"`
	UnitsPerEvent      decimal.Decimal `db:"units_per_event" json:"units_per_event"`
	DemandMultiplier   decimal.Decimal `db:"demand_multiplier" json:"demand_multiplier"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// ForecastRepository handles forecast parameter persistence
type ForecastRepository struct {
	db *database.DB
}

// NewForecastRepository creates a new forecast repository
func NewForecastRepository(db *database.DB) *ForecastRepository {
	return &ForecastRepository{db: db}
}

// GetByItem gets forecast parameters for an item
func (r *ForecastRepository) GetByItem(ctx context.Context, itemID string) (*ForecastParameters, error) {
	var params ForecastParameters
	query := `SELECT * FROM forecast_parameters WHERE item_id = $1`
	if err := r.db.GetContext(ctx, &params, query, itemID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("forecast parameters")
		}
		return nil, err
	}
	return &params, nil
}

// Upsert creates or replaces forecast parameters for an item
func (r *ForecastRepository) Upsert(ctx context.Context, params *ForecastParameters) error {
	query := `
		INSERT INTO forecast_parameters (
			item_id, daily_patient_volume, service_split, prescription_rate,
			units_per_event, demand_multiplier, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (item_id) DO UPDATE SET
			daily_patient_volume = EXCLUDED.daily_patient_volume,
			service_split = EXCLUDED.service_split,
			prescription_rate = EXCLUDED.prescription_rate,
			units_per_event = EXCLUDED.units_per_event,
			demand_multiplier = EXCLUDED.demand_multiplier,
			updated_at = NOW()
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		params.ItemID, params.DailyPatientVolume, params.ServiceSplit,
		params.PrescriptionRate, params.UnitsPerEvent, params.DemandMultiplier,
	).Scan(&params.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}
