package cart

import (
	"context"
	"errors"
	"sync"
)

var ErrCartNotFound = errors.New("cart not found")

// Repository persists carts whole. Line merge semantics live in the Service,
// so the storage contract stays a plain get/upsert/delete.
type Repository interface {
	GetCart(ctx context.Context, userID int64) (*Cart, error)
	UpsertCart(ctx context.Context, cart *Cart) error
	DeleteCart(ctx context.Context, userID int64) error
}

// MemoryRepository backs tests and single-process deployments.
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[int64]*Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[int64]*Cart)}
}

func (r *MemoryRepository) GetCart(_ context.Context, userID int64) (*Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cloneCart(stored), nil
}

func (r *MemoryRepository) UpsertCart(_ context.Context, cart *Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts[cart.UserID] = cloneCart(cart)
	return nil
}

func (r *MemoryRepository) DeleteCart(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, userID)
	return nil
}

func cloneCart(c *Cart) *Cart {
	clone := *c
	clone.Lines = make([]Line, len(c.Lines))
	copy(clone.Lines, c.Lines)
	return &clone
}
