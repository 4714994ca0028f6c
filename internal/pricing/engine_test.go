package pricing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopcore/fulfillment/internal/cart"
	"github.com/shopcore/fulfillment/internal/catalog"
)

type mockOrderCounter struct {
	counts map[int64]int
}

func (m *mockOrderCounter) CountUserOrders(_ context.Context, userID int64) (int, error) {
	return m.counts[userID], nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testCoupon() *Coupon {
	return &Coupon{
		Code:          "SAVE10",
		Name:          "10% off",
		DiscountType:  DiscountPercentage,
		DiscountValue: dec("10"),
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidUntil:    time.Now().Add(time.Hour),
		Active:        true,
	}
}

func setupEngine(t *testing.T) (*Engine, *catalog.StaticProvider, *MemoryStore, *mockOrderCounter) {
	t.Helper()
	provider := catalog.NewStaticProvider()
	store := NewMemoryStore()
	orders := &mockOrderCounter{counts: make(map[int64]int)}
	return NewEngine(provider, store, orders), provider, store, orders
}

func TestPrice_UsesCatalogPrices(t *testing.T) {
	engine, provider, _, _ := setupEngine(t)
	ctx := context.Background()

	provider.SetPrice(42, 0, dec("10.00"))
	provider.SetPrice(43, 1, dec("2.50"))

	priced, err := engine.Price(ctx, []cart.Line{
		{ProductID: 42, Quantity: 2},
		{ProductID: 43, VariantID: 1, Quantity: 3},
	})
	require.NoError(t, err)

	require.Len(t, priced.Lines, 2)
	assert.True(t, priced.Lines[0].LineTotal.Equal(dec("20.00")))
	assert.True(t, priced.Lines[1].LineTotal.Equal(dec("7.50")))
	assert.True(t, priced.Subtotal.Equal(dec("27.50")))
}

func TestPrice_UnknownProductFails(t *testing.T) {
	engine, _, _, _ := setupEngine(t)

	_, err := engine.Price(context.Background(), []cart.Line{{ProductID: 99, Quantity: 1}})
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestValidateCoupon_PercentageDiscount(t *testing.T) {
	engine, _, store, _ := setupEngine(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testCoupon()))

	discount, err := engine.ValidateCoupon(ctx, "SAVE10", dec("20.00"), 1)
	require.NoError(t, err)
	assert.True(t, discount.Equal(dec("2.00")), "got %s", discount)
}

func TestValidateCoupon_FixedAmountCappedAtSubtotal(t *testing.T) {
	engine, _, store, _ := setupEngine(t)
	ctx := context.Background()

	c := testCoupon()
	c.Code = "FLAT50"
	c.DiscountType = DiscountFixedAmount
	c.DiscountValue = dec("50.00")
	require.NoError(t, store.Save(ctx, c))

	discount, err := engine.ValidateCoupon(ctx, "FLAT50", dec("30.00"), 1)
	require.NoError(t, err)
	assert.True(t, discount.Equal(dec("30.00")))
}

func TestValidateCoupon_MaximumDiscountCap(t *testing.T) {
	engine, _, store, _ := setupEngine(t)
	ctx := context.Background()

	c := testCoupon()
	c.MaximumDiscountAmount = dec("5.00")
	require.NoError(t, store.Save(ctx, c))

	discount, err := engine.ValidateCoupon(ctx, "SAVE10", dec("200.00"), 1)
	require.NoError(t, err)
	assert.True(t, discount.Equal(dec("5.00")))
}

func TestValidateCoupon_FailureReasons(t *testing.T) {
	engine, _, store, orders := setupEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Coupon)
		userID int64
		reason string
	}{
		{"inactive", func(c *Coupon) { c.Active = false }, 1, ReasonInactive},
		{"not started", func(c *Coupon) { c.ValidFrom = time.Now().Add(time.Hour) }, 1, ReasonNotStarted},
		{"expired", func(c *Coupon) { c.ValidUntil = time.Now().Add(-time.Hour) }, 1, ReasonExpired},
		{"below minimum", func(c *Coupon) { c.MinimumOrderAmount = dec("100.00") }, 1, ReasonBelowMinimum},
		{"usage limit", func(c *Coupon) { c.UsageLimit = 5; c.UsedCount = 5 }, 1, ReasonUsageLimitReached},
		{"first time only", func(c *Coupon) { c.FirstTimeUserOnly = true }, 2, ReasonFirstTimeOnly},
	}

	orders.counts[2] = 3

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCoupon()
			tt.mutate(c)
			require.NoError(t, store.Save(ctx, c))

			_, err := engine.ValidateCoupon(ctx, c.Code, dec("20.00"), tt.userID)
			var invalid *CouponInvalidError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.reason, invalid.Reason)
		})
	}
}

func TestValidateCoupon_NotFound(t *testing.T) {
	engine, _, _, _ := setupEngine(t)

	_, err := engine.ValidateCoupon(context.Background(), "NOPE", dec("20.00"), 1)
	var invalid *CouponInvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, ReasonNotFound, invalid.Reason)
}

func TestValidateCoupon_PerUserLimit(t *testing.T) {
	engine, _, store, _ := setupEngine(t)
	ctx := context.Background()

	c := testCoupon()
	c.UserUsageLimit = 1
	require.NoError(t, store.Save(ctx, c))
	require.NoError(t, store.Redeem(ctx, "SAVE10", 1))

	_, err := engine.ValidateCoupon(ctx, "SAVE10", dec("20.00"), 1)
	var invalid *CouponInvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, ReasonUserLimitReached, invalid.Reason)

	// A different user is unaffected.
	_, err = engine.ValidateCoupon(ctx, "SAVE10", dec("20.00"), 2)
	assert.NoError(t, err)
}

// Redemption enforces the global cap atomically: with usageLimit=1, two
// concurrent redemptions by different users yield exactly one success.
func TestRedeem_ConcurrentUsageCap(t *testing.T) {
	engine, _, store, _ := setupEngine(t)
	ctx := context.Background()

	c := testCoupon()
	c.UsageLimit = 1
	require.NoError(t, store.Save(ctx, c))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = engine.Redeem(ctx, "SAVE10", int64(i+1))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			var invalid *CouponInvalidError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, ReasonUsageLimitReached, invalid.Reason)
		}
	}
	assert.Equal(t, 1, successes)

	stored, err := store.Get(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)
}
