package inventory

import (
	"fmt"
	"time"
)

// SKU identifies one sellable (product, variant) pair. VariantID 0 means the
// base product without variants.
type SKU struct {
	ProductID int64
	VariantID int64
}

func (s SKU) String() string {
	return fmt.Sprintf("%d/%d", s.ProductID, s.VariantID)
}

// StockInfo is the ledger view of one SKU.
type StockInfo struct {
	SKU      SKU
	Total    int32 // sellable units on hand
	Reserved int32 // units held by pending orders
}

// Available returns the stock open for new reservations.
func (s StockInfo) Available() int32 {
	return s.Total - s.Reserved
}

type ReservationStatus string

const (
	StatusReserved  ReservationStatus = "reserved"
	StatusCommitted ReservationStatus = "committed"
	StatusReleased  ReservationStatus = "released"
	StatusExpired   ReservationStatus = "expired"
)

// Reservation is a temporary hold on stock, convertible to a permanent
// deduction (commit) or returned to the pool (release).
type Reservation struct {
	Token     string
	OrderRef  string
	SKU       SKU
	Quantity  int32
	Status    ReservationStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (r *Reservation) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}
