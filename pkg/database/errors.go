package database

import (
	"strings"

	"github.com/lib/pq"

	"github.com/clinicstock/clinicstock-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Lock not available (55P03): SET LOCAL lock_timeout expired while
	// waiting for another writer on the same item. Retryable.
	case "55P03":
		return errors.LockTimeout("item batches")

	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_received_positive"):
		return errors.Validation(map[string]string{
			"quantity_received": "must be greater than zero",
		})

	case strings.Contains(constraint, "quantity_remaining_bounds"):
		return errors.Validation(map[string]string{
			"quantity_remaining": "must be between zero and the received quantity",
		})

	case strings.Contains(constraint, "category_valid"):
		return errors.Validation(map[string]string{
			"category": "must be one of: medication, vaccine",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "batch_number"):
		return "a batch with this batch number already exists for this item"
	case strings.Contains(constraint, "forecast_parameters"):
		return "forecast parameters already exist for this item"
	default:
		return "a record with these values already exists"
	}
}
