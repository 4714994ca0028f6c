package inventory

import (
	"context"
	"fmt"

	"github.com/shopcore/fulfillment/internal/catalog"
)

// CatalogSource lists the rows whose on-hand stock the ledger mirrors.
type CatalogSource interface {
	Items(ctx context.Context) ([]catalog.Item, error)
}

// SeedFromCatalog mirrors catalog stock into the ledger. The catalog is the
// source of truth for on-hand quantities; the ledger layers reservations on
// top, so without this a fresh ledger rejects every hold with ErrSKUNotFound.
func SeedFromCatalog(ctx context.Context, l Ledger, src CatalogSource) (int, error) {
	items, err := src.Items(ctx)
	if err != nil {
		return 0, fmt.Errorf("list catalog items: %w", err)
	}

	for _, item := range items {
		sku := SKU{ProductID: item.ProductID, VariantID: item.VariantID}
		if err := l.SetStock(ctx, sku, item.Stock); err != nil {
			return 0, fmt.Errorf("seed %s: %w", sku.String(), err)
		}
	}
	return len(items), nil
}
