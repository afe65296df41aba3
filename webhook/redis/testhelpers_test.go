//go:build integration

package redis_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/marcelsud/flowrelay/webhook/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

/* Integration helpers: one Redis 7 container per test, a repository on it,
 * and a raw client to inspect the keys the repository writes
 */

// SetupRedisContainer starts a Redis testcontainer and returns its address
func SetupRedisContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	redisContainer, err := testcontainersredis.Run(ctx,
		"redis:7-alpine",
		testcontainersredis.WithSnapshotting(10, 1),
		testcontainersredis.WithLogLevel(testcontainersredis.LogLevelVerbose),
	)
	require.NoError(t, err, "failed to start Redis container")

	addr, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get Redis connection string")
	addr = strings.TrimPrefix(addr, "redis://")

	// Wait for Redis to be ready
	time.Sleep(1 * time.Second)

	cleanup := func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	}

	return addr, cleanup
}

// CreateTestRepository creates a webhook repository on the test container
func CreateTestRepository(t *testing.T, addr string) *redis.Repository {
	t.Helper()

	repo, err := redis.NewRepository(addr, "", 0)
	require.NoError(t, err, "failed to create Redis repository")

	return repo
}

// pendingDue returns the due time the pending index holds for a delivery,
// and false when the delivery is not indexed
func pendingDue(t *testing.T, addr, deliveryID string) (time.Time, bool) {
	t.Helper()

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()

	score, err := client.ZScore(context.Background(), "webhook_pending_deliveries", deliveryID).Result()
	if err == goredis.Nil {
		return time.Time{}, false
	}
	require.NoError(t, err)

	return time.UnixMilli(int64(score)).UTC(), true
}

// deliveryTTL returns the remaining retention of a delivery record
func deliveryTTL(t *testing.T, addr, deliveryID string) time.Duration {
	t.Helper()

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()

	ttl, err := client.TTL(context.Background(), "webhook_delivery:"+deliveryID).Result()
	require.NoError(t, err)

	return ttl
}
