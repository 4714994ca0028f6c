package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopcore/fulfillment/internal/cart"
	"github.com/shopcore/fulfillment/internal/catalog"
)

var oneHundred = decimal.NewFromInt(100)

// OrderCounter reports how many orders a user has placed, for the
// first-time-user coupon constraint.
type OrderCounter interface {
	CountUserOrders(ctx context.Context, userID int64) (int, error)
}

type PricedLine struct {
	ProductID int64
	VariantID int64
	Quantity  int32
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

type PricedCart struct {
	Lines    []PricedLine
	Subtotal decimal.Decimal
}

// Engine computes line totals and validates coupon eligibility. Unit prices
// always come from the catalog, never from the cart, so stale carts cannot
// freeze prices.
type Engine struct {
	catalog catalog.Provider
	coupons Store
	orders  OrderCounter
}

func NewEngine(catalogProvider catalog.Provider, coupons Store, orders OrderCounter) *Engine {
	return &Engine{catalog: catalogProvider, coupons: coupons, orders: orders}
}

func (e *Engine) Price(ctx context.Context, lines []cart.Line) (*PricedCart, error) {
	priced := &PricedCart{
		Lines:    make([]PricedLine, 0, len(lines)),
		Subtotal: decimal.Zero,
	}

	for _, line := range lines {
		unitPrice, err := e.catalog.CurrentPrice(ctx, line.ProductID, line.VariantID)
		if err != nil {
			return nil, fmt.Errorf("price product %d/%d: %w", line.ProductID, line.VariantID, err)
		}

		lineTotal := unitPrice.Mul(decimal.NewFromInt32(line.Quantity))
		priced.Lines = append(priced.Lines, PricedLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: unitPrice,
			LineTotal: lineTotal,
		})
		priced.Subtotal = priced.Subtotal.Add(lineTotal)
	}

	return priced, nil
}

// ValidateCoupon runs the eligibility checks in order and short-circuits on
// the first failure. On success it returns the discount amount, capped at the
// coupon's maximum and at the subtotal.
func (e *Engine) ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal, userID int64) (decimal.Decimal, error) {
	c, err := e.coupons.Get(ctx, code)
	if err != nil {
		if err == ErrCouponNotFound {
			return decimal.Zero, couponInvalid(code, ReasonNotFound, "coupon does not exist")
		}
		return decimal.Zero, fmt.Errorf("load coupon %q: %w", code, err)
	}

	now := time.Now()
	switch {
	case !c.Active:
		return decimal.Zero, couponInvalid(code, ReasonInactive, "coupon is not active")
	case now.Before(c.ValidFrom):
		return decimal.Zero, couponInvalid(code, ReasonNotStarted, "coupon is not yet valid")
	case now.After(c.ValidUntil):
		return decimal.Zero, couponInvalid(code, ReasonExpired, "coupon has expired")
	case subtotal.LessThan(c.MinimumOrderAmount):
		return decimal.Zero, couponInvalid(code, ReasonBelowMinimum,
			fmt.Sprintf("order subtotal below minimum of %s", c.MinimumOrderAmount))
	case c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit:
		return decimal.Zero, couponInvalid(code, ReasonUsageLimitReached, "coupon usage limit reached")
	}

	if c.UserUsageLimit > 0 {
		used, err := e.coupons.UserRedemptions(ctx, code, userID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("load coupon usage for user %d: %w", userID, err)
		}
		if used >= c.UserUsageLimit {
			return decimal.Zero, couponInvalid(code, ReasonUserLimitReached, "per-user usage limit reached")
		}
	}

	if c.FirstTimeUserOnly {
		count, err := e.orders.CountUserOrders(ctx, userID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("count orders for user %d: %w", userID, err)
		}
		if count > 0 {
			return decimal.Zero, couponInvalid(code, ReasonFirstTimeOnly, "coupon is for first-time users only")
		}
	}

	return discountFor(c, subtotal), nil
}

// Redeem increments the coupon counters. Called exactly once per order, after
// the order is durably created, so retried pricing calls never over-count.
func (e *Engine) Redeem(ctx context.Context, code string, userID int64) error {
	return e.coupons.Redeem(ctx, code, userID)
}

func discountFor(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = subtotal.Mul(c.DiscountValue).Div(oneHundred).Round(2)
	default:
		discount = c.DiscountValue
	}

	if c.MaximumDiscountAmount.IsPositive() && discount.GreaterThan(c.MaximumDiscountAmount) {
		discount = c.MaximumDiscountAmount
	}
	// A discount never exceeds the amount being discounted.
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return discount
}
