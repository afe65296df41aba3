package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/flowrelay/webhook"
	"github.com/marcelsud/flowrelay/webhook/payload"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of webhook.Repository
 * Uses Redis Hashes for webhooks and deliveries so counters can be bumped with HINCRBY
 * Uses Sorted Sets scored by creation time as newest first indexes
 */

const (
	webhookPrefix       = "webhook"            // Hash naming: webhook:{webhook_id}
	deliveryPrefix      = "webhook_delivery"   // Hash naming: webhook_delivery:{delivery_id}
	deliveryIndexPrefix = "webhook_deliveries" // Sorted set naming: webhook_deliveries:{webhook_id}
	userIndexPrefix     = "user_webhooks"      // Sorted set naming: user_webhooks:{user_id}

	// Sorted set of pending deliveries scored by due time (next_retry, else created_at)
	pendingKey = "webhook_pending_deliveries"

	// DefaultDeliveryRetention is how long a delivery record lives after its last update
	DefaultDeliveryRetention = 7 * 24 * time.Hour

	scanPage = 100
)

type Repository struct {
	client *redis.Client

	// DeliveryRetention is refreshed on every delivery write
	DeliveryRetention time.Duration
}

// NewRepository creates a new Redis repository
func NewRepository(addr, password string, db int) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return NewRepositoryFromClient(client), nil
}

// NewRepositoryFromClient wraps an existing client, sharing its connection pool
func NewRepositoryFromClient(client *redis.Client) *Repository {
	return &Repository{
		client:            client,
		DeliveryRetention: DefaultDeliveryRetention,
	}
}

// configRecord is the stored form of webhook.Config; durations are seconds
type configRecord struct {
	URL           string            `json:"url"`
	Method        string            `json:"method"`
	Headers       map[string]string `json:"headers"`
	Timeout       float64           `json:"timeout"`
	VerifyTLS     bool              `json:"verify_tls"`
	RetryStrategy retryRecord       `json:"retry_strategy"`
}

type retryRecord struct {
	MaxRetries      int     `json:"max_retries"`
	InitialInterval float64 `json:"initial_interval"`
	Multiplier      float64 `json:"multiplier"`
	MaxInterval     float64 `json:"max_interval"`
}

type responseRecord struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// Create stores a new webhook and indexes it under its owner
func (r *Repository) Create(ctx context.Context, wh webhook.Webhook) error {
	configJSON, err := encodeConfig(wh.Config)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, webhookKey(wh.ID), map[string]interface{}{
			"id":                    wh.ID,
			"name":                  wh.Name,
			"config":                configJSON,
			"secret_key":            wh.Secret.Key,
			"secret_header":         wh.Secret.HeaderName,
			"secret_algorithm":      wh.Secret.HashAlgorithm,
			"workflow_id":           wh.WorkflowID,
			"user_id":               wh.UserID,
			"status":                wh.Status.String(),
			"total_deliveries":      wh.TotalDeliveries,
			"successful_deliveries": wh.SuccessfulDeliveries,
			"failed_deliveries":     wh.FailedDeliveries,
			"total_attempts":        wh.TotalAttempts,
			"last_triggered":        formatTimePtr(wh.LastTriggered),
			"created_at":            formatTime(wh.CreatedAt),
			"updated_at":            formatTime(wh.UpdatedAt),
		})
		pipe.ZAdd(ctx, userIndexKey(wh.UserID), redis.Z{
			Score:  float64(wh.CreatedAt.UnixMilli()),
			Member: wh.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing webhook: %w", err)
	}
	return nil
}

// Get retrieves a webhook by ID from Redis hash
func (r *Repository) Get(ctx context.Context, id string) (webhook.Webhook, error) {
	data, err := r.client.HGetAll(ctx, webhookKey(id)).Result()
	if err != nil {
		return webhook.Webhook{}, fmt.Errorf("getting webhook: %w", err)
	}
	if len(data) == 0 {
		return webhook.Webhook{}, fmt.Errorf("%w: %s", webhook.ErrWebhookNotFound, id)
	}
	return decodeWebhook(data)
}

// List returns the webhooks of a user, newest first
func (r *Repository) List(ctx context.Context, userID string, filter webhook.ListFilter) ([]webhook.Webhook, error) {
	ids, err := r.client.ZRevRange(ctx, userIndexKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing webhook ids: %w", err)
	}

	webhooks := make([]webhook.Webhook, 0, len(ids))
	for _, id := range ids {
		wh, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		if filter.WorkflowID != "" && wh.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != 0 && wh.Status != filter.Status {
			continue
		}
		webhooks = append(webhooks, wh)
	}
	return webhooks, nil
}

// UpdateConfig replaces the stored config and leaves the secret alone
func (r *Repository) UpdateConfig(ctx context.Context, id string, cfg webhook.Config) error {
	if err := r.mustExist(ctx, id); err != nil {
		return err
	}

	configJSON, err := encodeConfig(cfg)
	if err != nil {
		return err
	}

	err = r.client.HSet(ctx, webhookKey(id), map[string]interface{}{
		"config":     configJSON,
		"updated_at": formatTime(time.Now()),
	}).Err()
	if err != nil {
		return fmt.Errorf("updating config: %w", err)
	}
	return nil
}

// UpdateStatus updates the status of a webhook
func (r *Repository) UpdateStatus(ctx context.Context, id string, status webhook.Status) error {
	if err := r.mustExist(ctx, id); err != nil {
		return err
	}

	err := r.client.HSet(ctx, webhookKey(id), map[string]interface{}{
		"status":     status.String(),
		"updated_at": formatTime(time.Now()),
	}).Err()
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return nil
}

// RecordOutcome counts a finished delivery against its webhook
func (r *Repository) RecordOutcome(ctx context.Context, id string, success bool, at time.Time) error {
	counter := "failed_deliveries"
	if success {
		counter = "successful_deliveries"
	}

	key := webhookKey(id)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "total_deliveries", 1)
		pipe.HIncrBy(ctx, key, counter, 1)
		pipe.HSet(ctx, key, "last_triggered", formatTime(at))
		return nil
	})
	if err != nil {
		return fmt.Errorf("recording delivery outcome: %w", err)
	}
	return nil
}

// CreateDelivery stores a new delivery and indexes it under its webhook
func (r *Repository) CreateDelivery(ctx context.Context, d webhook.Delivery) error {
	fields, err := deliveryFields(d)
	if err != nil {
		return err
	}
	fields["attempts"] = d.Attempts

	key := deliveryKey(d.ID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, r.DeliveryRetention)
		pipe.ZAdd(ctx, deliveryIndexKey(d.WebhookID), redis.Z{
			Score:  float64(d.CreatedAt.UnixMilli()),
			Member: d.ID,
		})
		trackPending(ctx, pipe, d)
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing delivery: %w", err)
	}
	return nil
}

// SaveDelivery persists a delivery; attempts is only ever changed by IncrementAttempts
func (r *Repository) SaveDelivery(ctx context.Context, d webhook.Delivery) error {
	fields, err := deliveryFields(d)
	if err != nil {
		return err
	}

	key := deliveryKey(d.ID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, r.DeliveryRetention)
		trackPending(ctx, pipe, d)
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving delivery: %w", err)
	}
	return nil
}

// ClaimStalled returns up to limit pending deliveries due before dueBefore and
// pushes their due time to claimUntil, so a delivery is handed out once per
// claim window. Entries whose record has expired are dropped.
func (r *Repository) ClaimStalled(ctx context.Context, dueBefore, claimUntil time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	ids, err := r.client.ZRangeByScore(ctx, pendingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(dueBefore.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing pending deliveries: %w", err)
	}

	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := r.client.Exists(ctx, deliveryKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("checking delivery %s: %w", id, err)
		}
		if n == 0 {
			r.client.ZRem(ctx, pendingKey, id)
			continue
		}

		// GT keeps a due time a concurrent save has just pushed further out
		err = r.client.ZAddArgs(ctx, pendingKey, redis.ZAddArgs{
			XX:      true,
			GT:      true,
			Members: []redis.Z{{Score: float64(claimUntil.UnixMilli()), Member: id}},
		}).Err()
		if err != nil {
			return nil, fmt.Errorf("claiming delivery %s: %w", id, err)
		}
		claimed = append(claimed, id)
	}
	return claimed, nil
}

// IncrementAttempts bumps the delivery attempts and the webhook total_attempts in one transaction
func (r *Repository) IncrementAttempts(ctx context.Context, deliveryID, webhookID string) (int, error) {
	var attempts *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		attempts = pipe.HIncrBy(ctx, deliveryKey(deliveryID), "attempts", 1)
		pipe.HIncrBy(ctx, webhookKey(webhookID), "total_attempts", 1)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("incrementing attempts: %w", err)
	}
	return int(attempts.Val()), nil
}

// GetDelivery retrieves a delivery by ID
func (r *Repository) GetDelivery(ctx context.Context, id string) (webhook.Delivery, error) {
	data, err := r.client.HGetAll(ctx, deliveryKey(id)).Result()
	if err != nil {
		return webhook.Delivery{}, fmt.Errorf("getting delivery: %w", err)
	}
	if len(data) == 0 {
		return webhook.Delivery{}, fmt.Errorf("%w: %s", webhook.ErrDeliveryNotFound, id)
	}
	return decodeDelivery(data)
}

// ListDeliveries pages the deliveries of a webhook, newest first.
// Expired records are dropped from the index as they are found.
func (r *Repository) ListDeliveries(ctx context.Context, webhookID string, filter webhook.DeliveryFilter) ([]webhook.Delivery, error) {
	if filter.Limit <= 0 {
		return []webhook.Delivery{}, nil
	}

	indexKey := deliveryIndexKey(webhookID)
	deliveries := make([]webhook.Delivery, 0, filter.Limit)
	skipped := 0

	start := int64(0)
	for {
		ids, err := r.client.ZRevRange(ctx, indexKey, start, start+scanPage-1).Result()
		if err != nil {
			return nil, fmt.Errorf("listing delivery ids: %w", err)
		}

		// Removed ids shift the ranks of the next page
		removed := int64(0)
		for _, id := range ids {
			d, err := r.GetDelivery(ctx, id)
			if errors.Is(err, webhook.ErrDeliveryNotFound) {
				r.client.ZRem(ctx, indexKey, id)
				removed++
				continue
			}
			if err != nil {
				return nil, err
			}
			if filter.Status != 0 && d.Status != filter.Status {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}
			deliveries = append(deliveries, d)
			if len(deliveries) == filter.Limit {
				return deliveries, nil
			}
		}

		if len(ids) < scanPage {
			return deliveries, nil
		}
		start += scanPage - removed
	}
}

// Close closes the Redis connection
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations
func (r *Repository) GetClient() *redis.Client {
	return r.client
}

func (r *Repository) mustExist(ctx context.Context, id string) error {
	n, err := r.client.Exists(ctx, webhookKey(id)).Result()
	if err != nil {
		return fmt.Errorf("checking webhook: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", webhook.ErrWebhookNotFound, id)
	}
	return nil
}

// Helper functions

func webhookKey(id string) string {
	return fmt.Sprintf("%s:%s", webhookPrefix, id)
}

func deliveryKey(id string) string {
	return fmt.Sprintf("%s:%s", deliveryPrefix, id)
}

func deliveryIndexKey(webhookID string) string {
	return fmt.Sprintf("%s:%s", deliveryIndexPrefix, webhookID)
}

// trackPending keeps the pending index in step with the delivery status
func trackPending(ctx context.Context, pipe redis.Pipeliner, d webhook.Delivery) {
	if d.Status != webhook.DeliveryPending {
		pipe.ZRem(ctx, pendingKey, d.ID)
		return
	}
	due := d.CreatedAt
	if d.NextRetry != nil {
		due = *d.NextRetry
	}
	pipe.ZAdd(ctx, pendingKey, redis.Z{Score: float64(due.UnixMilli()), Member: d.ID})
}

func userIndexKey(userID string) string {
	return fmt.Sprintf("%s:%s", userIndexPrefix, userID)
}

func encodeConfig(cfg webhook.Config) (string, error) {
	data, err := json.Marshal(configRecord{
		URL:       cfg.URL,
		Method:    cfg.Method,
		Headers:   cfg.Headers,
		Timeout:   cfg.Timeout.Seconds(),
		VerifyTLS: cfg.VerifyTLS,
		RetryStrategy: retryRecord{
			MaxRetries:      cfg.RetryStrategy.MaxRetries,
			InitialInterval: cfg.RetryStrategy.InitialInterval.Seconds(),
			Multiplier:      cfg.RetryStrategy.Multiplier,
			MaxInterval:     cfg.RetryStrategy.MaxInterval.Seconds(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}
	return string(data), nil
}

func decodeConfig(s string) (webhook.Config, error) {
	var rec configRecord
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return webhook.Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	return webhook.Config{
		URL:       rec.URL,
		Method:    rec.Method,
		Headers:   rec.Headers,
		Timeout:   seconds(rec.Timeout),
		VerifyTLS: rec.VerifyTLS,
		RetryStrategy: webhook.RetryStrategy{
			MaxRetries:      rec.RetryStrategy.MaxRetries,
			InitialInterval: seconds(rec.RetryStrategy.InitialInterval),
			Multiplier:      rec.RetryStrategy.Multiplier,
			MaxInterval:     seconds(rec.RetryStrategy.MaxInterval),
		},
	}, nil
}

func decodeWebhook(data map[string]string) (webhook.Webhook, error) {
	cfg, err := decodeConfig(data["config"])
	if err != nil {
		return webhook.Webhook{}, err
	}
	status, err := webhook.NewStatus(data["status"])
	if err != nil {
		return webhook.Webhook{}, err
	}

	return webhook.Webhook{
		ID:     data["id"],
		Name:   data["name"],
		Config: cfg,
		Secret: webhook.Secret{
			Key:           data["secret_key"],
			HeaderName:    data["secret_header"],
			HashAlgorithm: data["secret_algorithm"],
		},
		WorkflowID:           data["workflow_id"],
		UserID:               data["user_id"],
		Status:               status,
		TotalDeliveries:      parseInt64(data["total_deliveries"]),
		SuccessfulDeliveries: parseInt64(data["successful_deliveries"]),
		FailedDeliveries:     parseInt64(data["failed_deliveries"]),
		TotalAttempts:        parseInt64(data["total_attempts"]),
		LastTriggered:        parseTimePtr(data["last_triggered"]),
		CreatedAt:            parseTime(data["created_at"]),
		UpdatedAt:            parseTime(data["updated_at"]),
	}, nil
}

func deliveryFields(d webhook.Delivery) (map[string]interface{}, error) {
	body := d.Payload
	if body == nil {
		body = map[string]any{}
	}
	payloadJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	headersJSON, err := json.Marshal(d.Headers)
	if err != nil {
		return nil, fmt.Errorf("marshaling headers: %w", err)
	}

	response := ""
	if d.Response != nil {
		data, err := json.Marshal(responseRecord{
			StatusCode: d.Response.StatusCode,
			Headers:    d.Response.Headers,
			Body:       d.Response.Body,
		})
		if err != nil {
			return nil, fmt.Errorf("marshaling response: %w", err)
		}
		response = string(data)
	}

	return map[string]interface{}{
		"id":           d.ID,
		"webhook_id":   d.WebhookID,
		"payload":      string(payloadJSON),
		"status":       d.Status.String(),
		"headers":      string(headersJSON),
		"next_retry":   formatTimePtr(d.NextRetry),
		"response":     response,
		"error":        d.Error,
		"error_type":   d.ErrorType,
		"duration_ms":  d.DurationMS,
		"retry_of":     d.RetryOf,
		"created_at":   formatTime(d.CreatedAt),
		"completed_at": formatTimePtr(d.CompletedAt),
	}, nil
}

func decodeDelivery(data map[string]string) (webhook.Delivery, error) {
	status, err := webhook.NewDeliveryStatus(data["status"])
	if err != nil {
		return webhook.Delivery{}, err
	}

	body, err := payload.Parse([]byte(data["payload"]))
	if err != nil {
		return webhook.Delivery{}, fmt.Errorf("parsing stored payload: %w", err)
	}

	headers := make(map[string]string)
	if s := data["headers"]; s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &headers); err != nil {
			return webhook.Delivery{}, fmt.Errorf("unmarshaling headers: %w", err)
		}
	}

	var response *webhook.Response
	if s := data["response"]; s != "" {
		var rec responseRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return webhook.Delivery{}, fmt.Errorf("unmarshaling response: %w", err)
		}
		response = &webhook.Response{
			StatusCode: rec.StatusCode,
			Headers:    rec.Headers,
			Body:       rec.Body,
		}
	}

	return webhook.Delivery{
		ID:          data["id"],
		WebhookID:   data["webhook_id"],
		Payload:     body,
		Status:      status,
		Headers:     headers,
		Attempts:    int(parseInt64(data["attempts"])),
		NextRetry:   parseTimePtr(data["next_retry"]),
		Response:    response,
		Error:       data["error"],
		ErrorType:   data["error_type"],
		DurationMS:  parseInt64(data["duration_ms"]),
		RetryOf:     data["retry_of"],
		CreatedAt:   parseTime(data["created_at"]),
		CompletedAt: parseTimePtr(data["completed_at"]),
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
