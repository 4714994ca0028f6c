package order

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order already exists")
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]*Order, error)
	CountUserOrders(ctx context.Context, userID int64) (int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, actualDelivery *time.Time) error
	SetReservationTokens(ctx context.Context, id uuid.UUID, tokens []string) error
}

type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*Order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[uuid.UUID]*Order)}
}

func (r *MemoryRepository) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[o.ID]; exists {
		return ErrDuplicateOrder
	}
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryRepository) GetByNumber(_ context.Context, number string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.Number == number {
			return cloneOrder(o), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID int64) ([]*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Order
	for _, o := range r.orders {
		if o.UserID == userID {
			result = append(result, cloneOrder(o))
		}
	}
	return result, nil
}

func (r *MemoryRepository) CountUserOrders(_ context.Context, userID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, o := range r.orders {
		if o.UserID == userID && o.Status != StatusCancelled {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, status Status, actualDelivery *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	if actualDelivery != nil {
		o.ActualDelivery = actualDelivery
	}
	o.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) SetReservationTokens(_ context.Context, id uuid.UUID, tokens []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.ReservationTokens = append([]string(nil), tokens...)
	o.UpdatedAt = time.Now()
	return nil
}

func cloneOrder(o *Order) *Order {
	clone := *o
	clone.Lines = append([]Line(nil), o.Lines...)
	clone.ReservationTokens = append([]string(nil), o.ReservationTokens...)
	if o.ActualDelivery != nil {
		ts := *o.ActualDelivery
		clone.ActualDelivery = &ts
	}
	return &clone
}
