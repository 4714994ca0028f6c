package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrKeyNotFound = errors.New("idempotency key not found")

// Outcome is the recorded result of a completed charge attempt. Replays with
// the same key return it verbatim instead of touching the gateway again.
type Outcome struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Status    Status    `json:"status"`
	ErrorCode string    `json:"error_code,omitempty"`
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (Outcome, error)
	Put(ctx context.Context, key string, outcome Outcome) error
}

type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		client: client,
		ttl:    24 * time.Hour,
	}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (Outcome, error) {
	data, err := s.client.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Outcome{}, ErrKeyNotFound
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("redis get failed: %w", err)
	}

	var outcome Outcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return Outcome{}, fmt.Errorf("unmarshal outcome failed: %w", err)
	}
	return outcome, nil
}

func (s *RedisIdempotencyStore) Put(ctx context.Context, key string, outcome Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome failed: %w", err)
	}
	if err := s.client.Set(ctx, idempotencyKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("payment:idem:%s", key)
}

type MemoryIdempotencyStore struct {
	mu       sync.RWMutex
	outcomes map[string]Outcome
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{outcomes: make(map[string]Outcome)}
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, key string) (Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	outcome, ok := s.outcomes[key]
	if !ok {
		return Outcome{}, ErrKeyNotFound
	}
	return outcome, nil
}

func (s *MemoryIdempotencyStore) Put(_ context.Context, key string, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[key] = outcome
	return nil
}
