package counter

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

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("MEDIAREF_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIncrementAndFlush(t *testing.T) {
	client := testClient(t)
	counter := NewRedis(client, nil)
	ctx := context.Background()

	id := uuid.New()
	for i := 0; i < 5; i++ {
		require.NoError(t, counter.Increment(ctx, id))
	}

	applied := map[uuid.UUID]int64{}
	err := counter.Flush(ctx, func(ctx context.Context, id uuid.UUID, delta int64) error {
		applied[id] += delta
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), applied[id])

	// A second flush has nothing to do.
	applied = map[uuid.UUID]int64{}
	require.NoError(t, counter.Flush(ctx, func(ctx context.Context, id uuid.UUID, delta int64) error {
		applied[id] += delta
		return nil
	}))
	assert.Empty(t, applied)
}

func TestFlushCreditsBackOnApplyFailure(t *testing.T) {
	client := testClient(t)
	counter := NewRedis(client, nil)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, counter.Increment(ctx, id))
	require.NoError(t, counter.Increment(ctx, id))

	applyErr := errors.New("db down")
	err := counter.Flush(ctx, func(ctx context.Context, id uuid.UUID, delta int64) error {
		return applyErr
	})
	assert.ErrorIs(t, err, applyErr)

	// The delta survives for the next flush.
	applied := map[uuid.UUID]int64{}
	require.NoError(t, counter.Flush(ctx, func(ctx context.Context, id uuid.UUID, delta int64) error {
		applied[id] += delta
		return nil
	}))
	assert.Equal(t, int64(2), applied[id])
}
