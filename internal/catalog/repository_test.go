package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.RunMigrations("migrations"))
	return repo
}

func TestRepositoryUpsertAndRead(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertItem(ctx, 42, 1, decimal.RequireFromString("19.99"), 7))

	price, err := repo.CurrentPrice(ctx, 42, 1)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("19.99")), "price %s", price)

	stock, err := repo.CurrentStock(ctx, 42, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(7), stock)

	// Upsert overwrites in place.
	require.NoError(t, repo.UpsertItem(ctx, 42, 1, decimal.RequireFromString("17.50"), 3))
	price, err = repo.CurrentPrice(ctx, 42, 1)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("17.50")), "price %s", price)
}

func TestRepositoryUnknownItem(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	_, err := repo.CurrentPrice(ctx, 99, 0)
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = repo.CurrentStock(ctx, 99, 0)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestRepositoryItems(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	items, err := repo.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, repo.UpsertItem(ctx, 1, 0, decimal.RequireFromString("5.00"), 10))
	require.NoError(t, repo.UpsertItem(ctx, 2, 3, decimal.RequireFromString("8.25"), 0))

	items, err = repo.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byKey := make(map[[2]int64]Item, len(items))
	for _, item := range items {
		byKey[[2]int64{item.ProductID, item.VariantID}] = item
	}
	assert.Equal(t, int32(10), byKey[[2]int64{1, 0}].Stock)
	assert.True(t, byKey[[2]int64{2, 3}].Price.Equal(decimal.RequireFromString("8.25")))
}
