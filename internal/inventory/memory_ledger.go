package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopcore/fulfillment/internal/events"
)

const (
	// DefaultReservationTTL is how long a hold survives without a commit or
	// release before the sweep returns it to the pool.
	DefaultReservationTTL = 5 * time.Minute

	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = 30 * time.Second
)

type stockEntry struct {
	mu       sync.Mutex
	total    int32
	reserved int32
}

// MemoryLedger implements Ledger with in-memory storage. Each SKU carries its
// own lock, so contention stays confined to hot SKUs.
type MemoryLedger struct {
	mu     sync.RWMutex
	stocks map[SKU]*stockEntry

	resMu        sync.Mutex
	reservations map[string]*Reservation

	rec           events.Recorder
	ttl           time.Duration
	sweepInterval time.Duration

	stopSweep chan struct{}
	wg        sync.WaitGroup
}

type Option func(*MemoryLedger)

func WithTTL(ttl time.Duration) Option {
	return func(l *MemoryLedger) { l.ttl = ttl }
}

func WithSweepInterval(interval time.Duration) Option {
	return func(l *MemoryLedger) { l.sweepInterval = interval }
}

// NewMemoryLedger creates a ledger and starts the reservation sweep. The
// recorder may be nil when no event consumer is wired.
func NewMemoryLedger(rec events.Recorder, opts ...Option) *MemoryLedger {
	l := &MemoryLedger{
		stocks:        make(map[SKU]*stockEntry),
		reservations:  make(map[string]*Reservation),
		rec:           rec,
		ttl:           DefaultReservationTTL,
		sweepInterval: DefaultSweepInterval,
		stopSweep:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.wg.Add(1)
	go l.sweepLoop()

	return l
}

func (l *MemoryLedger) sweepLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.expireReservations()
		case <-l.stopSweep:
			return
		}
	}
}

// expireReservations releases every hold past its TTL so abandoned checkouts
// cannot pin stock indefinitely.
func (l *MemoryLedger) expireReservations() {
	l.resMu.Lock()
	defer l.resMu.Unlock()

	for _, res := range l.reservations {
		if res.Status != StatusReserved || !res.IsExpired() {
			continue
		}
		res.Status = StatusExpired
		if entry := l.getEntry(res.SKU); entry != nil {
			entry.mu.Lock()
			entry.reserved -= res.Quantity
			entry.mu.Unlock()
		}
		slog.Info("reservation expired", "token", res.Token, "sku", res.SKU.String(), "order_ref", res.OrderRef)
	}
}

func (l *MemoryLedger) getEntry(sku SKU) *stockEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stocks[sku]
}

func (l *MemoryLedger) GetStock(_ context.Context, skus []SKU) ([]StockInfo, error) {
	result := make([]StockInfo, 0, len(skus))
	for _, sku := range skus {
		entry := l.getEntry(sku)
		if entry == nil {
			continue
		}
		entry.mu.Lock()
		result = append(result, StockInfo{SKU: sku, Total: entry.total, Reserved: entry.reserved})
		entry.mu.Unlock()
	}
	return result, nil
}

func (l *MemoryLedger) SetStock(_ context.Context, sku SKU, quantity int32) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}

	l.mu.Lock()
	entry, ok := l.stocks[sku]
	if !ok {
		l.stocks[sku] = &stockEntry{total: quantity}
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	// The entry is updated in place so outstanding reservations keep pointing
	// at live reserved units instead of a discarded counter.
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if quantity < entry.reserved {
		return fmt.Errorf("%w: %d reserved", ErrStockBelowReserved, entry.reserved)
	}
	entry.total = quantity
	return nil
}

func (l *MemoryLedger) Reserve(_ context.Context, orderRef string, sku SKU, quantity int32) (*Reservation, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	entry := l.getEntry(sku)
	if entry == nil {
		return nil, ErrSKUNotFound
	}

	// Check-and-increment under the SKU lock: concurrent reservations for the
	// same SKU serialize here.
	entry.mu.Lock()
	if entry.total-entry.reserved < quantity {
		entry.mu.Unlock()
		return nil, ErrOutOfStock
	}
	entry.reserved += quantity
	entry.mu.Unlock()

	now := time.Now()
	res := &Reservation{
		Token:     uuid.NewString(),
		OrderRef:  orderRef,
		SKU:       sku,
		Quantity:  quantity,
		Status:    StatusReserved,
		CreatedAt: now,
		ExpiresAt: now.Add(l.ttl),
	}

	l.resMu.Lock()
	l.reservations[res.Token] = res
	l.resMu.Unlock()

	return res, nil
}

func (l *MemoryLedger) Commit(ctx context.Context, token string) error {
	l.resMu.Lock()
	defer l.resMu.Unlock()

	res, ok := l.reservations[token]
	if !ok {
		return ErrReservationNotFound
	}

	switch res.Status {
	case StatusCommitted:
		return nil // retry after crash lands here
	case StatusReleased, StatusExpired:
		return ErrReservationNotActive
	}

	if res.IsExpired() {
		res.Status = StatusExpired
		if entry := l.getEntry(res.SKU); entry != nil {
			entry.mu.Lock()
			entry.reserved -= res.Quantity
			entry.mu.Unlock()
		}
		return ErrReservationNotActive
	}

	entry := l.getEntry(res.SKU)
	if entry == nil {
		return ErrSKUNotFound
	}

	entry.mu.Lock()
	oldStock := entry.total
	entry.total -= res.Quantity
	entry.reserved -= res.Quantity
	newStock := entry.total
	entry.mu.Unlock()

	res.Status = StatusCommitted
	l.recordStockChange(ctx, res.SKU, oldStock, newStock)
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, token string) error {
	l.resMu.Lock()
	defer l.resMu.Unlock()

	res, ok := l.reservations[token]
	if !ok {
		return ErrReservationNotFound
	}

	switch res.Status {
	case StatusReleased, StatusExpired:
		return nil // payment failure and the sweep may race; both outcomes are final
	case StatusCommitted:
		return ErrReservationNotActive
	}

	entry := l.getEntry(res.SKU)
	if entry == nil {
		return ErrSKUNotFound
	}

	entry.mu.Lock()
	entry.reserved -= res.Quantity
	entry.mu.Unlock()

	res.Status = StatusReleased
	return nil
}

func (l *MemoryLedger) Reservation(_ context.Context, token string) (*Reservation, error) {
	l.resMu.Lock()
	defer l.resMu.Unlock()

	res, ok := l.reservations[token]
	if !ok {
		return nil, ErrReservationNotFound
	}
	snapshot := *res
	return &snapshot, nil
}

func (l *MemoryLedger) recordStockChange(ctx context.Context, sku SKU, oldStock, newStock int32) {
	if l.rec == nil {
		return
	}
	event, err := events.New(events.TypeInventoryUpdated, sku.String(), events.InventoryUpdated{
		ProductID: sku.ProductID,
		VariantID: sku.VariantID,
		OldStock:  oldStock,
		NewStock:  newStock,
	})
	if err != nil {
		slog.ErrorContext(ctx, "build inventory event failed", "sku", sku.String(), "error", err)
		return
	}
	if err := l.rec.Record(ctx, event); err != nil {
		slog.ErrorContext(ctx, "record inventory event failed", "sku", sku.String(), "error", err)
	}
}

// Close stops the sweep and waits for it to finish.
func (l *MemoryLedger) Close() error {
	close(l.stopSweep)
	l.wg.Wait()
	return nil
}
