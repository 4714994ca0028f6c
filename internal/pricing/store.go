package pricing

import (
	"context"
	"errors"
	"sync"
)

var ErrCouponNotFound = errors.New("coupon not found")

// Store persists coupons and their usage counters. Redeem must enforce the
// caps atomically: validation alone cannot close the check-then-act race.
type Store interface {
	Get(ctx context.Context, code string) (*Coupon, error)
	Save(ctx context.Context, coupon *Coupon) error
	UserRedemptions(ctx context.Context, code string, userID int64) (int, error)

	// Redeem increments the usage counters after re-checking the caps, all
	// under the store's lock. Returns CouponInvalidError when a cap is hit.
	Redeem(ctx context.Context, code string, userID int64) error
}

type userKey struct {
	code   string
	userID int64
}

type MemoryStore struct {
	mu      sync.Mutex
	coupons map[string]*Coupon
	usage   map[userKey]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		coupons: make(map[string]*Coupon),
		usage:   make(map[userKey]int),
	}
}

func (s *MemoryStore) Get(_ context.Context, code string) (*Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[code]
	if !ok {
		return nil, ErrCouponNotFound
	}
	snapshot := *c
	return &snapshot, nil
}

func (s *MemoryStore) Save(_ context.Context, coupon *Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *coupon
	s.coupons[coupon.Code] = &snapshot
	return nil
}

func (s *MemoryStore) UserRedemptions(_ context.Context, code string, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[userKey{code, userID}], nil
}

func (s *MemoryStore) Redeem(_ context.Context, code string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[code]
	if !ok {
		return couponInvalid(code, ReasonNotFound, "coupon does not exist")
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return couponInvalid(code, ReasonUsageLimitReached, "coupon usage limit reached")
	}
	key := userKey{code, userID}
	if c.UserUsageLimit > 0 && s.usage[key] >= c.UserUsageLimit {
		return couponInvalid(code, ReasonUserLimitReached, "per-user usage limit reached")
	}

	c.UsedCount++
	s.usage[key]++
	return nil
}
