package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeOrderCreated       Type = "ORDER_CREATED"
	TypeOrderStatusChanged Type = "ORDER_STATUS_CHANGED"
	TypeInventoryUpdated   Type = "INVENTORY_UPDATED"
	TypePaymentProcessed   Type = "PAYMENT_PROCESSED"
)

// Event is the envelope delivered to the notification collaborator.
// Delivery is at-least-once; consumers deduplicate by ID.
type Event struct {
	ID          uuid.UUID       `json:"event_id"`
	Type        Type            `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

// New builds an event envelope around the given payload.
// AggregateID keys partition ordering for the downstream broker.
func New(t Type, aggregateID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		ID:          uuid.New(),
		Type:        t,
		AggregateID: aggregateID,
		OccurredAt:  time.Now(),
		Payload:     raw,
	}, nil
}

type OrderCreated struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	Shipping    decimal.Decimal `json:"shipping"`
	Total       decimal.Decimal `json:"total"`
}

type OrderStatusChanged struct {
	OrderID   string `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

type InventoryUpdated struct {
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id"`
	OldStock  int32 `json:"old_stock"`
	NewStock  int32 `json:"new_stock"`
}

type PaymentProcessed struct {
	OrderID string          `json:"order_id"`
	Status  string          `json:"status"`
	Amount  decimal.Decimal `json:"amount"`
}

// Recorder is the port services use to append domain events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Outbox is a Recorder whose events can be drained by the Poller.
type Outbox interface {
	Recorder
	Unpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
}

// Publisher ships a single event to the external broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
