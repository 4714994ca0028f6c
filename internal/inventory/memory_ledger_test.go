package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopcore/fulfillment/internal/events"
)

func setupLedger(t *testing.T, opts ...Option) *MemoryLedger {
	t.Helper()
	ledger := NewMemoryLedger(nil, opts...)
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func stockOf(t *testing.T, ledger *MemoryLedger, sku SKU) StockInfo {
	t.Helper()
	stocks, err := ledger.GetStock(context.Background(), []SKU{sku})
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	return stocks[0]
}

func TestMemoryLedger_SetAndGetStock(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.SetStock(ctx, SKU{ProductID: 1}, 100))
	require.NoError(t, ledger.SetStock(ctx, SKU{ProductID: 2, VariantID: 7}, 50))

	stocks, err := ledger.GetStock(ctx, []SKU{{ProductID: 1}, {ProductID: 2, VariantID: 7}, {ProductID: 3}})
	require.NoError(t, err)
	assert.Len(t, stocks, 2)
	assert.Equal(t, int32(100), stocks[0].Available())
}

func TestMemoryLedger_ReserveAndRelease(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()
	sku := SKU{ProductID: 1}
	require.NoError(t, ledger.SetStock(ctx, sku, 10))

	res, err := ledger.Reserve(ctx, "order-1", sku, 4)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, StatusReserved, res.Status)
	assert.True(t, res.ExpiresAt.After(time.Now()))

	info := stockOf(t, ledger, sku)
	assert.Equal(t, int32(10), info.Total)
	assert.Equal(t, int32(4), info.Reserved)
	assert.Equal(t, int32(6), info.Available())

	require.NoError(t, ledger.Release(ctx, res.Token))
	info = stockOf(t, ledger, sku)
	assert.Equal(t, int32(10), info.Total)
	assert.Equal(t, int32(0), info.Reserved)

	// Releasing again is a no-op.
	require.NoError(t, ledger.Release(ctx, res.Token))
}

func TestMemoryLedger_SetStockKeepsActiveReservations(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()
	sku := SKU{ProductID: 1}
	require.NoError(t, ledger.SetStock(ctx, sku, 5))

	res, err := ledger.Reserve(ctx, "order-1", sku, 2)
	require.NoError(t, err)

	// A restock below the held quantity is rejected.
	assert.ErrorIs(t, ledger.SetStock(ctx, sku, 1), ErrStockBelowReserved)

	// A restock above it keeps the hold alive.
	require.NoError(t, ledger.SetStock(ctx, sku, 3))
	info := stockOf(t, ledger, sku)
	assert.Equal(t, int32(3), info.Total)
	assert.Equal(t, int32(2), info.Reserved)
	assert.Equal(t, int32(1), info.Available())

	// Releasing the pre-restock hold returns its units cleanly.
	require.NoError(t, ledger.Release(ctx, res.Token))
	info = stockOf(t, ledger, sku)
	assert.Equal(t, int32(3), info.Total)
	assert.Equal(t, int32(0), info.Reserved)
}

func TestMemoryLedger_ReserveFailures(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()
	sku := SKU{ProductID: 1}
	require.NoError(t, ledger.SetStock(ctx, sku, 3))

	_, err := ledger.Reserve(ctx, "order-1", sku, 5)
	assert.ErrorIs(t, err, ErrOutOfStock)

	_, err = ledger.Reserve(ctx, "order-1", SKU{ProductID: 99}, 1)
	assert.ErrorIs(t, err, ErrSKUNotFound)

	_, err = ledger.Reserve(ctx, "order-1", sku, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestMemoryLedger_CommitDeductsStock(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()
	sku := SKU{ProductID: 42}
	require.NoError(t, ledger.SetStock(ctx, sku, 10))

	res, err := ledger.Reserve(ctx, "order-1", sku, 2)
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(ctx, res.Token))

	info := stockOf(t, ledger, sku)
	assert.Equal(t, int32(8), info.Total)
	assert.Equal(t, int32(0), info.Reserved)

	// Second commit is a no-op, not a double deduction.
	require.NoError(t, ledger.Commit(ctx, res.Token))
	info = stockOf(t, ledger, sku)
	assert.Equal(t, int32(8), info.Total)
}

func TestMemoryLedger_CommitAfterReleaseFails(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()
	sku := SKU{ProductID: 1}
	require.NoError(t, ledger.SetStock(ctx, sku, 10))

	res, err := ledger.Reserve(ctx, "order-1", sku, 2)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(ctx, res.Token))

	assert.ErrorIs(t, ledger.Commit(ctx, res.Token), ErrReservationNotActive)
	assert.ErrorIs(t, ledger.Release(ctx, "no-such-token"), ErrReservationNotFound)
}

func TestMemoryLedger_ReleaseAfterCommitFails(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()
	sku := SKU{ProductID: 1}
	require.NoError(t, ledger.SetStock(ctx, sku, 10))

	res, err := ledger.Reserve(ctx, "order-1", sku, 2)
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(ctx, res.Token))

	assert.ErrorIs(t, ledger.Release(ctx, res.Token), ErrReservationNotActive)
}

// Two reservations racing for the last units: exactly one wins.
func TestMemoryLedger_NoOverselling(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()
	sku := SKU{ProductID: 1}
	require.NoError(t, ledger.SetStock(ctx, sku, 3))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Reserve(ctx, "order", sku, 2)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrOutOfStock)
		}
	}
	assert.Equal(t, 1, successes)

	info := stockOf(t, ledger, sku)
	assert.Equal(t, int32(2), info.Reserved)
}

// Hammer one SKU with concurrent reserve/release/commit and verify the stock
// invariants hold at the end.
func TestMemoryLedger_StockInvariantUnderConcurrency(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()
	sku := SKU{ProductID: 1}
	require.NoError(t, ledger.SetStock(ctx, sku, 1000))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := ledger.Reserve(ctx, "order", sku, 3)
			if err != nil {
				return
			}
			if i%2 == 0 {
				_ = ledger.Commit(ctx, res.Token)
			} else {
				_ = ledger.Release(ctx, res.Token)
			}
		}(i)
	}
	wg.Wait()

	info := stockOf(t, ledger, sku)
	assert.GreaterOrEqual(t, info.Total, int32(0))
	assert.Equal(t, int32(0), info.Reserved)
	// 25 commits of 3 units each.
	assert.Equal(t, int32(1000-25*3), info.Total)
}

func TestMemoryLedger_SweepExpiresReservations(t *testing.T) {
	ledger := setupLedger(t, WithTTL(20*time.Millisecond), WithSweepInterval(10*time.Millisecond))
	ctx := context.Background()
	sku := SKU{ProductID: 1}
	require.NoError(t, ledger.SetStock(ctx, sku, 10))

	res, err := ledger.Reserve(ctx, "order-1", sku, 4)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		info := stockOf(t, ledger, sku)
		return info.Reserved == 0
	}, time.Second, 5*time.Millisecond)

	got, err := ledger.Reservation(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
	assert.ErrorIs(t, ledger.Commit(ctx, res.Token), ErrReservationNotActive)
}

func TestMemoryLedger_CommitRecordsInventoryEvent(t *testing.T) {
	outbox := events.NewMemoryOutbox()
	ledger := NewMemoryLedger(outbox)
	t.Cleanup(func() { ledger.Close() })
	ctx := context.Background()
	sku := SKU{ProductID: 42, VariantID: 1}
	require.NoError(t, ledger.SetStock(ctx, sku, 10))

	res, err := ledger.Reserve(ctx, "order-1", sku, 2)
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(ctx, res.Token))

	recorded := outbox.All()
	require.Len(t, recorded, 1)
	assert.Equal(t, events.TypeInventoryUpdated, recorded[0].Type)
	assert.Equal(t, sku.String(), recorded[0].AggregateID)
}
