package handler

import (
	"net/http"

	"github.com/clinicstock/clinicstock-backend/internal/stock/service"
	"github.com/clinicstock/clinicstock-backend/pkg/httputil"
	"github.com/clinicstock/clinicstock-backend/pkg/logger"
)

// MigrationHandler triggers legacy stock migration runs
type MigrationHandler struct {
	migrator *service.LegacyMigrator
	logger   *logger.Logger
}

// NewMigrationHandler creates a new migration handler
func NewMigrationHandler(migrator *service.LegacyMigrator, log *logger.Logger) *MigrationHandler {
	return &MigrationHandler{
		migrator: migrator,
		logger:   log,
	}
}

// MigrateAll handles POST /admin/migrate. Safe to re-run: already
// migrated items are counted as skipped.
func (h *MigrationHandler) MigrateAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.migrator.MigrateAll(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}
