package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedisAddrEnvKey = "DOCPIPE_TEST_REDIS_ADDR"

func TestNopAlwaysGrants(t *testing.T) {
	release, err := Nop{}.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv(testRedisAddrEnvKey)
	if addr == "" {
		t.Skipf("%s not set", testRedisAddrEnvKey)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	return client
}

func TestRedisLockExcludesSecondHolder(t *testing.T) {
	client := testRedis(t)
	prefix := "docpipe:test:" + uuid.NewString() + ":"
	first := NewRedis(client, RedisOptions{Prefix: prefix, TTL: 5 * time.Second, Wait: -1}, nil)
	ctx := context.Background()

	release, err := first.Acquire(ctx, "hash")
	require.NoError(t, err)

	_, err = first.Acquire(ctx, "hash")
	assert.True(t, errors.Is(err, ErrNotAcquired), "got %v", err)

	release()
	again, err := first.Acquire(ctx, "hash")
	require.NoError(t, err)
	again()
}

func TestRedisReleaseKeepsForeignToken(t *testing.T) {
	client := testRedis(t)
	prefix := "docpipe:test:" + uuid.NewString() + ":"
	l := NewRedis(client, RedisOptions{Prefix: prefix, TTL: 5 * time.Second, Wait: -1}, nil)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "hash")
	require.NoError(t, err)

	// Simulate expiry followed by another holder taking the key.
	require.NoError(t, client.Set(ctx, prefix+"hash", "someone-else", 5*time.Second).Err())
	release()

	val, err := client.Get(ctx, prefix+"hash").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
	require.NoError(t, client.Del(ctx, prefix+"hash").Err())
}
