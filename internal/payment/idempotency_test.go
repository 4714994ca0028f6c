package payment

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisIdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisIdempotencyStore(client), mr
}

func TestRedisIdempotencyStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	outcome := Outcome{
		PaymentID: uuid.New(),
		Status:    StatusSuccess,
	}
	require.NoError(t, store.Put(ctx, "key-1", outcome))

	got, err := store.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, outcome, got)
}

func TestRedisIdempotencyStoreMiss(t *testing.T) {
	store, _ := newRedisStore(t)

	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisIdempotencyStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "key-1", Outcome{PaymentID: uuid.New(), Status: StatusFailed}))

	ttl := mr.TTL("payment:idem:key-1")
	assert.Greater(t, ttl, 23*time.Hour)
	assert.LessOrEqual(t, ttl, 24*time.Hour)

	mr.FastForward(25 * time.Hour)
	_, err := store.Get(ctx, "key-1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
