package dedupe

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) goredis.UniversalClient {
	t.Helper()
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run against a redis container")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisMarkAndSeen(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	store := NewRedis("test:jobs", time.Minute, func() goredis.UniversalClient { return client })

	seen, err := store.Seen(ctx, "U1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Mark(ctx, "U1"))
	seen, err = store.Seen(ctx, "U1")
	require.NoError(t, err)
	assert.True(t, seen)

	ttl, err := client.TTL(ctx, "test:jobs:U1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	seen, err = store.Seen(ctx, "U2")
	require.NoError(t, err)
	assert.False(t, seen)
}
