package service

import (
	"context"

	"github.com/clinicstock/clinicstock-backend/internal/stock/repository"
)

// CatalogReader exposes the item catalog read side. Item identity and
// thresholds are owned by an external process; nothing here mutates them.
type CatalogReader struct {
	itemRepo *repository.ItemRepository
}

// NewCatalogReader creates a new catalog reader
func NewCatalogReader(itemRepo *repository.ItemRepository) *CatalogReader {
	return &CatalogReader{itemRepo: itemRepo}
}

// Get gets an active item by ID
func (c *CatalogReader) Get(ctx context.Context, id string) (*repository.Item, error) {
	return c.itemRepo.GetByID(ctx, id)
}

// List lists active items with pagination and an optional category filter
func (c *CatalogReader) List(ctx context.Context, page, perPage int, category string) ([]*repository.Item, int64, error) {
	return c.itemRepo.List(ctx, page, perPage, category)
}
