package redis_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/marcelsud/flowrelay/webhook"
	"github.com/marcelsud/flowrelay/webhook/redis"
	goredis "github.com/redis/go-redis/v9"
)

// newTestWebhook builds an active webhook owned by userID
func newTestWebhook(t *testing.T, id, userID string, createdAt time.Time) webhook.Webhook {
	t.Helper()

	cfg := webhook.DefaultConfig("https://hooks.example.com/orders")
	cfg.Headers = map[string]string{"X-Team": "billing"}

	return webhook.Webhook{
		ID:     id,
		Name:   "orders " + id,
		Config: cfg,
		Secret: webhook.Secret{
			Key:           "0123456789abcdef",
			HeaderName:    webhook.DefaultHeaderName,
			HashAlgorithm: webhook.DefaultHashAlgorithm,
		},
		WorkflowID: "wf-1",
		UserID:     userID,
		Status:     webhook.Active,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

// newTestDelivery builds a pending delivery for webhookID
func newTestDelivery(t *testing.T, id, webhookID string, createdAt time.Time) webhook.Delivery {
	t.Helper()

	return webhook.Delivery{
		ID:        id,
		WebhookID: webhookID,
		Payload:   map[string]any{"order_id": "ord_1"},
		Status:    webhook.DeliveryPending,
		Headers:   map[string]string{"X-Request-ID": id},
		CreatedAt: createdAt,
	}
}

// newMiniRepository returns a repository backed by an in-memory Redis
func newMiniRepository(t *testing.T) (*redis.Repository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	repo := redis.NewRepositoryFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { repo.GetClient().Close() })
	return repo, mr
}
