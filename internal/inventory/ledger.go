package inventory

import (
	"context"
	"errors"
)

var (
	ErrSKUNotFound          = errors.New("sku not found")
	ErrOutOfStock           = errors.New("insufficient stock")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationNotActive = errors.New("reservation is no longer active")
	ErrStockBelowReserved   = errors.New("stock cannot drop below the reserved quantity")
)

// Ledger tracks committed vs. reserved stock per SKU and exposes the atomic
// reserve/commit/release cycle. Mutation of one SKU is serialized; distinct
// SKUs do not contend.
type Ledger interface {
	GetStock(ctx context.Context, skus []SKU) ([]StockInfo, error)

	// SetStock initializes or overwrites the on-hand quantity for a SKU.
	// Active reservations survive the write; a quantity below the reserved
	// count fails ErrStockBelowReserved. Used at boot to mirror the catalog.
	SetStock(ctx context.Context, sku SKU, quantity int32) error

	// Reserve atomically checks available stock and places a hold. Two
	// concurrent reservations can never both succeed when only one fits.
	Reserve(ctx context.Context, orderRef string, sku SKU, quantity int32) (*Reservation, error)

	// Commit converts a reservation into a permanent deduction. Idempotent:
	// committing an already committed token is a no-op.
	Commit(ctx context.Context, token string) error

	// Release returns a reservation's units to the pool. Idempotent for
	// released and expired tokens; fails on committed ones.
	Release(ctx context.Context, token string) error

	// Reservation returns the current state of a hold.
	Reservation(ctx context.Context, token string) (*Reservation, error)

	Close() error
}
