package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/skyreserve/config"
	"github.com/Domenick1991/skyreserve/internal/domain"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "cache:flight:12", flightKey(12))
	assert.Equal(t, "idempotency:response:7:POST:/api/v1/reservations:abc", idempotencyKey("7:POST:/api/v1/reservations:abc"))
	assert.Equal(t, "idempotency:lock:k", idempotencyLockKey("k"))
}

func TestNewRedisCache(t *testing.T) {
	c := NewRedisCache(config.RedisConfig{Addr: "localhost:6379", DB: 2}, time.Minute)
	require.NotNil(t, c)
	assert.Equal(t, time.Minute, c.flightTTL)
	assert.NoError(t, c.Close())
}

// unreachable returns a cache whose server never answers, to exercise error paths.
func unreachable(t *testing.T) *RedisCache {
	t.Helper()
	c := &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		}),
		flightTTL: time.Minute,
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisCache_ErrorsAreReturned(t *testing.T) {
	c := unreachable(t)
	ctx := context.Background()

	flight, err := c.GetFlight(ctx, 1)
	assert.Error(t, err)
	assert.Nil(t, flight)

	assert.Error(t, c.SetFlight(ctx, &domain.Flight{ID: 1}))
	assert.Error(t, c.DeleteFlight(ctx, 1))

	token, ok, err := c.AcquireIdempotencyKey(ctx, "k", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)

	rec, err := c.GetIdempotentResponse(ctx, "k")
	assert.Error(t, err)
	assert.Nil(t, rec)
}
