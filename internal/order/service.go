package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopcore/fulfillment/internal/cart"
	"github.com/shopcore/fulfillment/internal/events"
	"github.com/shopcore/fulfillment/internal/inventory"
	"github.com/shopcore/fulfillment/internal/pricing"
)

var ErrEmptyCart = errors.New("cart has no active lines")

const estimatedDeliveryDays = 3

// CartPort is the slice of the cart service checkout depends on.
type CartPort interface {
	GetCart(ctx context.Context, userID int64) (*cart.Cart, error)
	ClearActiveLines(ctx context.Context, userID int64) error
}

// CostPolicy computes the tax and shipping amounts added on top of the
// discounted subtotal. Both default to zero.
type CostPolicy struct {
	TaxRate      decimal.Decimal // fraction, e.g. 0.08 for 8%
	ShippingFlat decimal.Decimal
}

func (p CostPolicy) Tax(taxable decimal.Decimal) decimal.Decimal {
	if p.TaxRate.IsZero() {
		return decimal.Zero
	}
	return taxable.Mul(p.TaxRate).Round(2)
}

// Service drives the order lifecycle: checkout with compensating rollback,
// the status state machine, and the reservation handoff to payment.
type Service struct {
	repo     Repository
	carts    CartPort
	pricer   *pricing.Engine
	ledger   inventory.Ledger
	recorder events.Recorder
	policy   CostPolicy
}

func NewService(repo Repository, carts CartPort, pricer *pricing.Engine, ledger inventory.Ledger, recorder events.Recorder, policy CostPolicy) *Service {
	return &Service{
		repo:     repo,
		carts:    carts,
		pricer:   pricer,
		ledger:   ledger,
		recorder: recorder,
		policy:   policy,
	}
}

type CreateOrderRequest struct {
	UserID          int64
	PaymentMethod   string
	ShippingAddress Address
	BillingAddress  Address
}

// CreateOrder turns the user's active cart lines into a PENDING order.
// Inventory is reserved line by line; the first failure releases every prior
// reservation in reverse order and the checkout fails whole. Payment is not
// charged here.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	c, err := s.carts.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load cart for user %d: %w", req.UserID, err)
	}
	lines := c.ActiveLines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	priced, err := s.pricer.Price(ctx, lines)
	if err != nil {
		return nil, err
	}

	discount := decimal.Zero
	if c.CouponCode != "" {
		discount, err = s.pricer.ValidateCoupon(ctx, c.CouponCode, priced.Subtotal, req.UserID)
		if err != nil {
			return nil, err
		}
	}

	taxable := priced.Subtotal.Sub(discount)
	tax := s.policy.Tax(taxable)
	shipping := s.policy.ShippingFlat

	now := time.Now()
	o := &Order{
		ID:                uuid.New(),
		Number:            NewNumber(),
		UserID:            req.UserID,
		Status:            StatusPending,
		Subtotal:          priced.Subtotal,
		Discount:          discount,
		Tax:               tax,
		Shipping:          shipping,
		Total:             taxable.Add(tax).Add(shipping),
		CouponCode:        c.CouponCode,
		PaymentMethod:     req.PaymentMethod,
		ShippingAddress:   req.ShippingAddress,
		BillingAddress:    req.BillingAddress,
		EstimatedDelivery: now.AddDate(0, 0, estimatedDeliveryDays),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, pl := range priced.Lines {
		o.Lines = append(o.Lines, Line{
			ProductID:    pl.ProductID,
			VariantID:    pl.VariantID,
			Quantity:     pl.Quantity,
			UnitPrice:    pl.UnitPrice,
			LineDiscount: decimal.Zero,
			LineTotal:    pl.LineTotal,
		})
	}

	tokens, err := s.reserveLines(ctx, o)
	if err != nil {
		return nil, err
	}
	o.ReservationTokens = tokens

	if err := s.repo.Create(ctx, o); err != nil {
		s.releaseTokens(ctx, tokens)
		return nil, err
	}

	if o.CouponCode != "" {
		// Redeemed only after the durable create so retried checkouts never
		// over-count. If the redemption caps were exhausted in the meantime,
		// the order cannot stand.
		if err := s.pricer.Redeem(ctx, o.CouponCode, o.UserID); err != nil {
			s.releaseTokens(ctx, tokens)
			if stErr := s.repo.UpdateStatus(ctx, o.ID, StatusCancelled, nil); stErr != nil {
				slog.ErrorContext(ctx, "failed to cancel order after redemption failure",
					"order_id", o.ID, "error", stErr)
			}
			return nil, err
		}
	}

	if err := s.carts.ClearActiveLines(ctx, o.UserID); err != nil {
		slog.WarnContext(ctx, "failed to clear cart after checkout",
			"user_id", o.UserID, "error", err)
	}

	s.record(ctx, events.TypeOrderCreated, o.ID.String(), events.OrderCreated{
		OrderID:     o.ID.String(),
		OrderNumber: o.Number,
		UserID:      o.UserID,
		Subtotal:    o.Subtotal,
		Discount:    o.Discount,
		Tax:         o.Tax,
		Shipping:    o.Shipping,
		Total:       o.Total,
	})

	return o, nil
}

// reserveLines places one hold per order line. On the first failure it
// releases the holds already taken, newest first, before returning the error.
func (s *Service) reserveLines(ctx context.Context, o *Order) ([]string, error) {
	tokens := make([]string, 0, len(o.Lines))
	for _, line := range o.Lines {
		sku := inventory.SKU{ProductID: line.ProductID, VariantID: line.VariantID}
		res, err := s.ledger.Reserve(ctx, o.Number, sku, line.Quantity)
		if err != nil {
			s.releaseTokens(ctx, tokens)
			return nil, fmt.Errorf("reserve %s x%d: %w", sku, line.Quantity, err)
		}
		tokens = append(tokens, res.Token)
	}
	return tokens, nil
}

func (s *Service) releaseTokens(ctx context.Context, tokens []string) {
	for i := len(tokens) - 1; i >= 0; i-- {
		if err := s.ledger.Release(ctx, tokens[i]); err != nil {
			slog.ErrorContext(ctx, "failed to release reservation",
				"token", tokens[i], "error", err)
		}
	}
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetOrderByNumber(ctx context.Context, number string) (*Order, error) {
	return s.repo.GetByNumber(ctx, number)
}

func (s *Service) ListUserOrders(ctx context.Context, userID int64) ([]*Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

// UpdateStatus applies one state-machine transition. DELIVERED stamps the
// delivery timestamp; CANCELLED releases any still-active reservations.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, next Status) (*Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransitionTo(o.Status, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}

	var delivered *time.Time
	if next == StatusDelivered {
		ts := time.Now()
		delivered = &ts
	}
	if err := s.repo.UpdateStatus(ctx, id, next, delivered); err != nil {
		return nil, err
	}

	// Holds are freed only once the transition is durable. If the write above
	// fails the order keeps both its status and its reservations.
	if next == StatusCancelled && len(o.ReservationTokens) > 0 {
		s.releaseTokens(ctx, o.ReservationTokens)
		if err := s.repo.SetReservationTokens(ctx, id, nil); err != nil {
			slog.ErrorContext(ctx, "failed to clear reservation tokens",
				"order_id", id, "error", err)
		}
	}

	s.record(ctx, events.TypeOrderStatusChanged, id.String(), events.OrderStatusChanged{
		OrderID:   id.String(),
		OldStatus: string(o.Status),
		NewStatus: string(next),
	})

	return s.repo.Get(ctx, id)
}

// CancelOrder cancels a PENDING or CONFIRMED order and releases its holds.
func (s *Service) CancelOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending && o.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: order is %s", ErrOrderNotCancellable, o.Status)
	}
	return s.UpdateStatus(ctx, id, StatusCancelled)
}

// EnsureReservations guarantees the order holds one active reservation per
// line before a charge, re-reserving any that were released by an earlier
// failed attempt. All-or-nothing: newly taken holds are rolled back if a
// later line cannot be covered.
func (s *Service) EnsureReservations(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	tokens := make([]string, len(o.Lines))
	var fresh []string
	for i, line := range o.Lines {
		if i < len(o.ReservationTokens) {
			res, err := s.ledger.Reservation(ctx, o.ReservationTokens[i])
			if err == nil && res.Status == inventory.StatusReserved && !res.IsExpired() {
				tokens[i] = res.Token
				continue
			}
		}
		sku := inventory.SKU{ProductID: line.ProductID, VariantID: line.VariantID}
		res, err := s.ledger.Reserve(ctx, o.Number, sku, line.Quantity)
		if err != nil {
			s.releaseTokens(ctx, fresh)
			return nil, fmt.Errorf("re-reserve %s x%d: %w", sku, line.Quantity, err)
		}
		tokens[i] = res.Token
		fresh = append(fresh, res.Token)
	}

	if err := s.repo.SetReservationTokens(ctx, id, tokens); err != nil {
		s.releaseTokens(ctx, fresh)
		return nil, err
	}
	o.ReservationTokens = tokens
	return o, nil
}

// CommitReservations permanently deducts the order's holds after a
// successful charge. Safe to call again after a partial failure.
func (s *Service) CommitReservations(ctx context.Context, o *Order) error {
	for _, token := range o.ReservationTokens {
		if err := s.ledger.Commit(ctx, token); err != nil {
			return fmt.Errorf("commit reservation %s: %w", token, err)
		}
	}
	if err := s.repo.SetReservationTokens(ctx, o.ID, nil); err != nil {
		slog.ErrorContext(ctx, "failed to clear reservation tokens",
			"order_id", o.ID, "error", err)
	}
	return nil
}

// ReleaseReservations frees the order's holds after a failed charge. The
// order stays PENDING and keeps no tokens; a retried payment re-reserves.
func (s *Service) ReleaseReservations(ctx context.Context, o *Order) error {
	s.releaseTokens(ctx, o.ReservationTokens)
	if err := s.repo.SetReservationTokens(ctx, o.ID, nil); err != nil {
		slog.ErrorContext(ctx, "failed to clear reservation tokens",
			"order_id", o.ID, "error", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, t events.Type, aggregateID string, payload any) {
	if s.recorder == nil {
		return
	}
	event, err := events.New(t, aggregateID, payload)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build event", "type", t, "error", err)
		return
	}
	if err := s.recorder.Record(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to record event", "type", t, "error", err)
	}
}
