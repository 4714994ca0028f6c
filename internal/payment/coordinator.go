package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopcore/fulfillment/internal/events"
	"github.com/shopcore/fulfillment/internal/order"
)

const (
	DefaultFraudThreshold = 0.7
	DefaultMaxAttempts    = 3
)

// OrderPort is the slice of the order service payment depends on.
type OrderPort interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
	EnsureReservations(ctx context.Context, id uuid.UUID) (*order.Order, error)
	CommitReservations(ctx context.Context, o *order.Order) error
	ReleaseReservations(ctx context.Context, o *order.Order) error
	UpdateStatus(ctx context.Context, id uuid.UUID, next order.Status) (*order.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

// Coordinator drives a charge attempt end to end: idempotency replay, fraud
// gate, reservation handoff, gateway call, and the resulting order
// transition.
type Coordinator struct {
	repo     Repository
	orders   OrderPort
	gateway  Gateway
	scorer   RiskScorer
	idem     IdempotencyStore
	recorder events.Recorder

	fraudThreshold float64
	maxAttempts    int
}

func NewCoordinator(repo Repository, orders OrderPort, gateway Gateway, scorer RiskScorer, idem IdempotencyStore, recorder events.Recorder) *Coordinator {
	return &Coordinator{
		repo:           repo,
		orders:         orders,
		gateway:        gateway,
		scorer:         scorer,
		idem:           idem,
		recorder:       recorder,
		fraudThreshold: DefaultFraudThreshold,
		maxAttempts:    DefaultMaxAttempts,
	}
}

type ChargeRequest struct {
	OrderID        uuid.UUID
	Method         string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// ProcessPayment attempts to charge an order. A replay with a known
// idempotency key returns the recorded outcome without touching the gateway
// or the inventory again.
func (c *Coordinator) ProcessPayment(ctx context.Context, req ChargeRequest) (*Payment, error) {
	if req.IdempotencyKey != "" {
		outcome, err := c.idem.Get(ctx, req.IdempotencyKey)
		if err == nil {
			return c.replay(ctx, outcome)
		}
		if !errors.Is(err, ErrKeyNotFound) {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	o, err := c.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPending {
		return nil, fmt.Errorf("%w: order is %s", ErrOrderNotPayable, o.Status)
	}
	// At most one SUCCESS charge per order, regardless of order status.
	if settled, err := c.repo.SuccessfulCharge(ctx, o.ID); err == nil {
		return settled, fmt.Errorf("%w: already charged", ErrOrderNotPayable)
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return nil, fmt.Errorf("lookup settled charge: %w", err)
	}
	if !req.Amount.Equal(o.Total) {
		return nil, fmt.Errorf("%w: got %s, order total is %s",
			ErrAmountMismatch, req.Amount, o.Total)
	}

	score, err := c.scorer.ScorePayment(ctx, o.ID.String(), o.UserID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("score payment: %w", err)
	}

	p := &Payment{
		ID:             uuid.New(),
		OrderID:        o.ID,
		Kind:           KindCharge,
		Method:         req.Method,
		Amount:         req.Amount,
		Status:         StatusPending,
		RiskScore:      score,
		IdempotencyKey: req.IdempotencyKey,
	}

	// Fraud gate sits before any gateway spend.
	if score >= c.fraudThreshold {
		p.Status = StatusFailed
		p.GatewayMessage = "blocked by fraud screening"
		if err := c.repo.Create(ctx, p); err != nil {
			return nil, err
		}
		if err := c.orders.ReleaseReservations(ctx, o); err != nil {
			slog.ErrorContext(ctx, "failed to release reservations",
				"order_id", o.ID, "error", err)
		}
		c.finishAttempt(ctx, p, req.IdempotencyKey, "fraud_blocked")
		return p, ErrFraudBlocked
	}

	// Reservations may have been released by an earlier failed attempt.
	o, err = c.orders.EnsureReservations(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	if err := c.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	// The in-flight marker goes in before the gateway is touched. If the
	// call below times out, a replay with the same key finds the marker and
	// returns the pending record instead of charging a second time.
	if req.IdempotencyKey != "" {
		inflight := Outcome{PaymentID: p.ID, Status: StatusPending}
		if err := c.idem.Put(ctx, req.IdempotencyKey, inflight); err != nil {
			return nil, fmt.Errorf("record in-flight outcome: %w", err)
		}
	}

	result, err := c.gateway.Charge(ctx, o.Number, req.Method, req.Amount)
	if err != nil {
		if errors.Is(err, ErrGatewayTimeout) {
			// Outcome unknown: the payment stays PENDING, the holds stay in
			// place, and the in-flight marker stands. Resolution is a replay
			// of the same key; a fresh settlement attempt needs a new key.
			return p, ErrGatewayTimeout
		}
		return nil, fmt.Errorf("gateway charge: %w", err)
	}

	p.TransactionID = result.TransactionID
	p.GatewayMessage = result.Message

	if result.Success {
		p.Status = StatusSuccess
		if err := c.repo.Update(ctx, p); err != nil {
			return nil, err
		}
		if err := c.orders.CommitReservations(ctx, o); err != nil {
			return nil, fmt.Errorf("commit reservations: %w", err)
		}
		if _, err := c.orders.UpdateStatus(ctx, o.ID, order.StatusConfirmed); err != nil {
			return nil, fmt.Errorf("confirm order: %w", err)
		}
		c.finishAttempt(ctx, p, req.IdempotencyKey, "")
		return p, nil
	}

	p.Status = StatusFailed
	if err := c.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	if err := c.orders.ReleaseReservations(ctx, o); err != nil {
		slog.ErrorContext(ctx, "failed to release reservations",
			"order_id", o.ID, "error", err)
	}
	c.finishAttempt(ctx, p, req.IdempotencyKey, "payment_declined")
	return p, fmt.Errorf("%w: %s", ErrPaymentDeclined, result.Message)
}

// finishAttempt records the idempotency outcome, emits the event, and
// cancels the order once the attempt ceiling is reached.
func (c *Coordinator) finishAttempt(ctx context.Context, p *Payment, key, errorCode string) {
	if key != "" {
		outcome := Outcome{PaymentID: p.ID, Status: p.Status, ErrorCode: errorCode}
		if err := c.idem.Put(ctx, key, outcome); err != nil {
			slog.ErrorContext(ctx, "failed to record idempotency outcome",
				"payment_id", p.ID, "error", err)
		}
	}

	c.record(ctx, p)

	if p.Status != StatusFailed {
		return
	}
	failed, err := c.repo.CountFailedCharges(ctx, p.OrderID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count charge attempts",
			"order_id", p.OrderID, "error", err)
		return
	}
	if failed >= c.maxAttempts {
		if _, err := c.orders.CancelOrder(ctx, p.OrderID); err != nil {
			slog.ErrorContext(ctx, "failed to cancel order after attempt ceiling",
				"order_id", p.OrderID, "error", err)
		}
	}
}

func (c *Coordinator) replay(ctx context.Context, outcome Outcome) (*Payment, error) {
	p, err := c.repo.Get(ctx, outcome.PaymentID)
	if err != nil {
		return nil, err
	}
	if outcome.Status == StatusPending {
		// The recorded attempt never settled. Hand back the pending record;
		// re-attempting settlement under the same key is exactly the double
		// charge the key exists to prevent.
		return p, nil
	}
	switch outcome.ErrorCode {
	case "fraud_blocked":
		return p, ErrFraudBlocked
	case "payment_declined":
		return p, ErrPaymentDeclined
	default:
		return p, nil
	}
}

// RefundPayment refunds a successful charge. The original record is never
// mutated; the refund is a new record referencing it.
func (c *Coordinator) RefundPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*Payment, error) {
	charge, err := c.repo.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if charge.Kind != KindCharge || charge.Status != StatusSuccess {
		return nil, fmt.Errorf("%w: %s %s", ErrNotRefundable, charge.Kind, charge.Status)
	}

	existing, err := c.repo.ListByOrder(ctx, charge.OrderID)
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		if p.Kind == KindRefund && p.RefundOf == charge.ID {
			return nil, fmt.Errorf("%w: already refunded", ErrNotRefundable)
		}
	}

	result, err := c.gateway.Refund(ctx, charge.TransactionID, charge.Amount)
	if err != nil {
		return nil, fmt.Errorf("gateway refund: %w", err)
	}

	refund := &Payment{
		ID:            uuid.New(),
		OrderID:       charge.OrderID,
		Kind:          KindRefund,
		Method:        charge.Method,
		Amount:        charge.Amount,
		Status:        StatusRefunded,
		TransactionID: result.TransactionID,
		RefundOf:      charge.ID,
		Reason:        reason,
	}
	if err := c.repo.Create(ctx, refund); err != nil {
		return nil, err
	}

	if err := c.stepOrderToRefunded(ctx, charge.OrderID); err != nil {
		slog.ErrorContext(ctx, "failed to move order to refunded",
			"order_id", charge.OrderID, "error", err)
	}

	c.record(ctx, refund)
	return refund, nil
}

// stepOrderToRefunded walks a delivered order through RETURNED to REFUNDED.
// Orders not yet delivered keep their status; the refund record stands on
// its own.
func (c *Coordinator) stepOrderToRefunded(ctx context.Context, orderID uuid.UUID) error {
	o, err := c.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == order.StatusDelivered {
		if o, err = c.orders.UpdateStatus(ctx, orderID, order.StatusReturned); err != nil {
			return err
		}
	}
	if o.Status == order.StatusReturned {
		if _, err := c.orders.UpdateStatus(ctx, orderID, order.StatusRefunded); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) record(ctx context.Context, p *Payment) {
	if c.recorder == nil {
		return
	}
	event, err := events.New(events.TypePaymentProcessed, p.OrderID.String(), events.PaymentProcessed{
		OrderID: p.OrderID.String(),
		Status:  string(p.Status),
		Amount:  p.Amount,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to build payment event", "error", err)
		return
	}
	if err := c.recorder.Record(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to record payment event", "error", err)
	}
}
