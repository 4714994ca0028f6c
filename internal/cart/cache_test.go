package cart

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client), mr
}

func TestRedisCache_GetHit(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	stored := &Cart{
		UserID: 7,
		Lines: []Line{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, VariantID: 3, Quantity: 1, SavedForLater: true},
		},
		CouponCode: "SAVE10",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	raw, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey(7), string(raw)))

	got, err := cache.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
	assert.Len(t, got.Lines, 2)
	assert.Equal(t, "SAVE10", got.CouponCode)
}

func TestRedisCache_GetMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	_, err := cache.Get(context.Background(), 404)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_SetAndDelete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	c := &Cart{UserID: 7, Lines: []Line{{ProductID: 1, Quantity: 2}}}
	require.NoError(t, cache.Set(ctx, 7, c))
	assert.True(t, mr.Exists(cacheKey(7)))

	got, err := cache.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, c.Lines, got.Lines)

	require.NoError(t, cache.Delete(ctx, 7))
	assert.False(t, mr.Exists(cacheKey(7)))
}

func TestRedisCache_SetAppliesTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set(context.Background(), 7, &Cart{UserID: 7}))

	ttl := mr.TTL(cacheKey(7))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.LessOrEqual(t, ttl, 20*time.Minute)
}
