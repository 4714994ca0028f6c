package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one priced order position. It references the product by id only;
// the order never holds a live product handle.
type Line struct {
	ProductID    int64           `json:"product_id"`
	VariantID    int64           `json:"variant_id"`
	Quantity     int32           `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineDiscount decimal.Decimal `json:"line_discount"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

type Address struct {
	FullName   string `json:"full_name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order identity (ID, Number, UserID) and amounts are immutable after
// creation; only status and delivery timestamps change. Orders are never
// deleted: cancellation is a status.
type Order struct {
	ID     uuid.UUID `json:"id"`
	Number string    `json:"number"`
	UserID int64     `json:"user_id"`
	Status Status    `json:"status"`

	Lines []Line `json:"lines"`

	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`

	CouponCode    string `json:"coupon_code,omitempty"`
	PaymentMethod string `json:"payment_method"`

	ShippingAddress Address `json:"shipping_address"`
	BillingAddress  Address `json:"billing_address"`

	// ReservationTokens are the inventory holds backing this order while it
	// is PENDING. Empty once committed or released.
	ReservationTokens []string `json:"reservation_tokens,omitempty"`

	EstimatedDelivery time.Time  `json:"estimated_delivery"`
	ActualDelivery    *time.Time `json:"actual_delivery,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewNumber generates a human-facing order number.
func NewNumber() string {
	return fmt.Sprintf("ORD-%d", time.Now().UnixMilli())
}
