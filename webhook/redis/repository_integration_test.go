//go:build integration

package redis_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/marcelsud/flowrelay/webhook"
	"github.com/marcelsud/flowrelay/webhook/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Roundtrip_Integration(t *testing.T) {
	ctx := context.Background()

	addr, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	repo := CreateTestRepository(t, addr)
	defer repo.Close(ctx)

	t.Run("store and retrieve webhook", func(t *testing.T) {
		wh := newTestWebhook(t, "wh_int_1", "user-int", time.Now().UTC().Truncate(time.Millisecond))

		require.NoError(t, repo.Create(ctx, wh))

		got, err := repo.Get(ctx, wh.ID)
		require.NoError(t, err)
		assert.Equal(t, wh.Config, got.Config)
		assert.Equal(t, wh.Secret, got.Secret)
		assert.Equal(t, webhook.Active, got.Status)
	})

	t.Run("store and retrieve delivery", func(t *testing.T) {
		d := newTestDelivery(t, "whd_int_1", "wh_int_1", time.Now().UTC())
		require.NoError(t, repo.CreateDelivery(ctx, d))

		got, err := repo.GetDelivery(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, webhook.DeliveryPending, got.Status)
		assert.Equal(t, "ord_1", got.Payload["order_id"])

		ttl := deliveryTTL(t, addr, d.ID)
		assert.InDelta(t, redis.DefaultDeliveryRetention.Seconds(), ttl.Seconds(), 5)
	})
}

func TestRepository_ClaimStalled_Integration(t *testing.T) {
	ctx := context.Background()

	addr, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	repo := CreateTestRepository(t, addr)
	defer repo.Close(ctx)

	base := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("claim pushes overdue entries forward but never back", func(t *testing.T) {
		overdue := newTestDelivery(t, "whd_overdue", "wh_s", base.Add(-time.Hour))
		require.NoError(t, repo.CreateDelivery(ctx, overdue))

		scheduled := newTestDelivery(t, "whd_scheduled", "wh_s", base.Add(-time.Hour))
		next := base.Add(time.Hour)
		scheduled.NextRetry = &next
		require.NoError(t, repo.CreateDelivery(ctx, scheduled))

		ids, err := repo.ClaimStalled(ctx, base.Add(2*time.Hour), base, 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"whd_overdue", "whd_scheduled"}, ids)

		due, ok := pendingDue(t, addr, "whd_overdue")
		require.True(t, ok)
		assert.Equal(t, base, due)

		due, ok = pendingDue(t, addr, "whd_scheduled")
		require.True(t, ok)
		assert.Equal(t, next, due)
	})

	t.Run("finished deliveries leave the index", func(t *testing.T) {
		d := newTestDelivery(t, "whd_done", "wh_s", base)
		require.NoError(t, repo.CreateDelivery(ctx, d))

		d.Status = webhook.DeliveryFailed
		require.NoError(t, repo.SaveDelivery(ctx, d))

		_, ok := pendingDue(t, addr, "whd_done")
		assert.False(t, ok)
	})
}

func TestRepository_IncrementAttempts_Integration(t *testing.T) {
	ctx := context.Background()

	addr, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	repo := CreateTestRepository(t, addr)
	defer repo.Close(ctx)

	t.Run("concurrent increments are never lost", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newTestWebhook(t, "wh_c", "user-c", time.Now())))
		require.NoError(t, repo.CreateDelivery(ctx, newTestDelivery(t, "whd_c", "wh_c", time.Now())))

		const workers = 20
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			seen []int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, err := repo.IncrementAttempts(ctx, "whd_c", "wh_c")
				require.NoError(t, err)
				mu.Lock()
				seen = append(seen, n)
				mu.Unlock()
			}()
		}
		wg.Wait()

		sort.Ints(seen)
		for i, n := range seen {
			assert.Equal(t, i+1, n, fmt.Sprintf("attempt %d", i))
		}

		wh, err := repo.Get(ctx, "wh_c")
		require.NoError(t, err)
		assert.Equal(t, int64(workers), wh.TotalAttempts)
	})
}
