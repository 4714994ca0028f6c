package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrLineNotFound    = errors.New("cart line not found")
)

// Service owns the cart merge semantics. Reads go through the cache with
// singleflight stampede control; every mutation is serialized per user and
// invalidates the cache.
type Service struct {
	repo  Repository
	cache Cache
	sfg   singleflight.Group

	userLocks sync.Map // userID -> *sync.Mutex
}

func NewService(repo Repository, cache Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// GetCart returns the user's cart, creating an empty one on first access.
// It never persists the empty cart; the first mutation does.
func (s *Service) GetCart(ctx context.Context, userID int64) (*Cart, error) {
	v, err, _ := s.sfg.Do(fmt.Sprint(userID), func() (interface{}, error) {
		cached, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			slog.WarnContext(ctx, "cart cache get failed", "user_id", userID, "error", err)
		}

		stored, err := s.repo.GetCart(ctx, userID)
		if errors.Is(err, ErrCartNotFound) {
			now := time.Now()
			return &Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
		}
		if err != nil {
			return nil, err
		}

		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.Set(cacheCtx, userID, stored); err != nil {
				slog.Warn("cart cache set failed", "user_id", userID, "error", err)
			}
		}()

		return stored, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Cart), nil
}

func (s *Service) AddItem(ctx context.Context, userID, productID, variantID int64, quantity int32) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	// Stock is not validated here; checkout owns that.
	return s.mutate(ctx, userID, func(c *Cart) error {
		if i := c.findLine(productID, variantID); i >= 0 {
			c.Lines[i].Quantity += quantity
			return nil
		}
		c.Lines = append(c.Lines, Line{
			ProductID: productID,
			VariantID: variantID,
			Quantity:  quantity,
			AddedAt:   time.Now(),
		})
		return nil
	})
}

func (s *Service) UpdateQuantity(ctx context.Context, userID, productID, variantID int64, quantity int32) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	return s.mutate(ctx, userID, func(c *Cart) error {
		i := c.findLine(productID, variantID)
		if i < 0 {
			return ErrLineNotFound
		}
		c.Lines[i].Quantity = quantity
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID, variantID int64) (*Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error {
		if i := c.findLine(productID, variantID); i >= 0 {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		}
		return nil // absence is a no-op
	})
}

func (s *Service) Clear(ctx context.Context, userID int64) error {
	_, err := s.mutate(ctx, userID, func(c *Cart) error {
		c.Lines = nil
		c.CouponCode = ""
		return nil
	})
	return err
}

// ClearActiveLines drops the lines consumed by checkout and the applied
// coupon, keeping saved-for-later lines in place.
func (s *Service) ClearActiveLines(ctx context.Context, userID int64) error {
	_, err := s.mutate(ctx, userID, func(c *Cart) error {
		kept := c.Lines[:0]
		for _, line := range c.Lines {
			if line.SavedForLater {
				kept = append(kept, line)
			}
		}
		c.Lines = kept
		c.CouponCode = ""
		return nil
	})
	return err
}

func (s *Service) MoveToSaved(ctx context.Context, userID, productID, variantID int64) (*Cart, error) {
	return s.setSaved(ctx, userID, productID, variantID, true)
}

func (s *Service) MoveFromSaved(ctx context.Context, userID, productID, variantID int64) (*Cart, error) {
	return s.setSaved(ctx, userID, productID, variantID, false)
}

func (s *Service) setSaved(ctx context.Context, userID, productID, variantID int64, saved bool) (*Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error {
		if i := c.findLine(productID, variantID); i >= 0 {
			c.Lines[i].SavedForLater = saved
		}
		return nil // absence is a no-op
	})
}

// ApplyCoupon attaches the code without validating it. Validation happens at
// checkout so the cart keeps reflecting user intent even if the coupon
// expires in the meantime.
func (s *Service) ApplyCoupon(ctx context.Context, userID int64, code string) (*Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error {
		c.CouponCode = code
		return nil
	})
}

func (s *Service) RemoveCoupon(ctx context.Context, userID int64) (*Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error {
		c.CouponCode = ""
		return nil
	})
}

// mutate runs a read-modify-write cycle under the per-user lock and
// invalidates the cache afterwards.
func (s *Service) mutate(ctx context.Context, userID int64, fn func(*Cart) error) (*Cart, error) {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	c, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		now := time.Now()
		c = &Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}
	} else if err != nil {
		return nil, err
	}

	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now()

	if err := s.repo.UpsertCart(ctx, c); err != nil {
		return nil, err
	}

	s.invalidateCache(userID)
	return c, nil
}

func (s *Service) lockFor(userID int64) *sync.Mutex {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *Service) invalidateCache(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		slog.Warn("cart cache invalidate failed", "user_id", userID, "error", err)
	}
}
