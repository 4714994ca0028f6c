package payment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error)

	// CountFailedCharges reports how many charge attempts for the order have
	// terminally failed, for the retry ceiling.
	CountFailedCharges(ctx context.Context, orderID uuid.UUID) (int, error)

	// SuccessfulCharge returns the order's SUCCESS charge, if any. At most
	// one exists.
	SuccessfulCharge(ctx context.Context, orderID uuid.UUID) (*Payment, error)
}

type MemoryRepository struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*Payment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{payments: make(map[uuid.UUID]*Payment)}
}

func (r *MemoryRepository) Create(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	stored := *p
	r.payments[p.ID] = &stored
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; !ok {
		return ErrPaymentNotFound
	}
	p.UpdatedAt = time.Now()
	stored := *p
	r.payments[p.ID] = &stored
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	snapshot := *p
	return &snapshot, nil
}

func (r *MemoryRepository) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Payment
	for _, p := range r.payments {
		if p.OrderID == orderID {
			snapshot := *p
			result = append(result, &snapshot)
		}
	}
	return result, nil
}

func (r *MemoryRepository) CountFailedCharges(_ context.Context, orderID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, p := range r.payments {
		if p.OrderID == orderID && p.Kind == KindCharge && p.Status == StatusFailed {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) SuccessfulCharge(_ context.Context, orderID uuid.UUID) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.OrderID == orderID && p.Kind == KindCharge && p.Status == StatusSuccess {
			snapshot := *p
			return &snapshot, nil
		}
	}
	return nil, ErrPaymentNotFound
}
