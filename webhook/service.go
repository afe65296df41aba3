package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/marcelsud/flowrelay/metrics"
	"github.com/marcelsud/flowrelay/monitoring"
	"github.com/marcelsud/flowrelay/recovery"
	"github.com/marcelsud/flowrelay/store"
	"github.com/marcelsud/flowrelay/task"
	"github.com/marcelsud/flowrelay/webhook/payload"
	"github.com/marcelsud/flowrelay/webhook/signature"
	"github.com/rs/zerolog"
)

/* Service represents the business logic layer
 * Uses pointer semantics as it's an API, not data
 */

// DeliverTaskKind is the task kind that runs one delivery attempt
const DeliverTaskKind = "webhook.deliver"

const (
	webhookIDPrefix  = "wh_"
	deliveryIDPrefix = "whd_"
	leasePrefix      = "lease:delivery:"

	// leaseTTL outlives the longest allowed attempt
	leaseTTL = MaxTimeout + 30*time.Second

	// a pending delivery this far past due has lost its task
	stallAfter   = leaseTTL
	recoverBatch = 100

	// anyAttempts runs the attempt whatever the delivery attempts count
	anyAttempts = -1

	DefaultListLimit = 20
	MaxListLimit     = 100

	attemptsMetric = "webhook.delivery.attempts"
	durationMetric = "webhook.delivery.duration"
)

// UseCase defines the business operations for webhook management and delivery
type UseCase interface {
	Register(ctx context.Context, name string, cfg Config, workflowID, userID string) (Webhook, error)
	Get(ctx context.Context, id string) (Webhook, error)
	List(ctx context.Context, userID string, filter ListFilter) ([]Webhook, error)
	UpdateConfig(ctx context.Context, id string, cfg Config) (Webhook, error)
	Activate(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error

	/* Trigger stores a pending delivery and queues its first attempt.
	 * It returns as soon as the delivery is queued; delivery failures never surface here
	 */
	Trigger(ctx context.Context, webhookID string, body map[string]any, headers map[string]string) (string, error)
	ProcessDelivery(ctx context.Context, deliveryID string) error
	GetDelivery(ctx context.Context, id string) (Delivery, error)
	ListDeliveries(ctx context.Context, webhookID string, filter DeliveryFilter) ([]Delivery, error)
	RetryDelivery(ctx context.Context, deliveryID string) (string, error)

	VerifySignature(secret string, body map[string]any, sig string) bool
	VerifyWebhook(ctx context.Context, webhookID string, body map[string]any, sig string) (bool, error)
	GetWebhookHealth(ctx context.Context, webhookID string) (monitoring.Health, error)
}

/* FailureReporter receives the terminal failures of deliveries whose webhook
 * belongs to a workflow
 */
type FailureReporter interface {
	HandleError(ctx context.Context, workflowID string, failure error, ec recovery.Context) (recovery.Outcome, error)
}

type Service struct {
	Repo     Repository
	Sender   Sender
	Queue    task.Enqueuer
	Locker   store.Locker
	Monitor  monitoring.UseCase
	Recorder metrics.Recorder
	// Failures is optional
	Failures FailureReporter
	Logger   zerolog.Logger
	Now      func() time.Time
}

// NewService creates a new webhook service with dependency injection.
// recorder may be nil when attempt metrics are not collected.
func NewService(repo Repository, sender Sender, queue task.Enqueuer, locker store.Locker, monitor monitoring.UseCase, recorder metrics.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		Repo:     repo,
		Sender:   sender,
		Queue:    queue,
		Locker:   locker,
		Monitor:  monitor,
		Recorder: recorder,
		Logger:   logger,
		Now:      time.Now,
	}
}

// Register validates cfg and stores a new active webhook with a fresh secret
func (s *Service) Register(ctx context.Context, name string, cfg Config, workflowID, userID string) (Webhook, error) {
	cfg.Method = strings.ToUpper(cfg.Method)
	if err := cfg.Validate(); err != nil {
		return Webhook{}, fmt.Errorf("validating config: %w", err)
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	key, err := signature.GenerateSecret()
	if err != nil {
		return Webhook{}, fmt.Errorf("generating secret: %w", err)
	}

	now := s.Now().UTC()
	wh := Webhook{
		ID:     webhookIDPrefix + uuid.New().String(),
		Name:   name,
		Config: cfg,
		Secret: Secret{
			Key:           key,
			HeaderName:    DefaultHeaderName,
			HashAlgorithm: DefaultHashAlgorithm,
		},
		WorkflowID: workflowID,
		UserID:     userID,
		Status:     Active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.Repo.Create(ctx, wh); err != nil {
		return Webhook{}, fmt.Errorf("storing webhook: %w", err)
	}

	s.Logger.Info().Str("webhook_id", wh.ID).Str("user_id", userID).Msg("Webhook registered")
	return wh, nil
}

// Get returns a webhook
func (s *Service) Get(ctx context.Context, id string) (Webhook, error) {
	wh, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Webhook{}, fmt.Errorf("getting webhook: %w", err)
	}
	return wh, nil
}

// List returns the webhooks of a user. Deleted webhooks are only listed when asked for.
func (s *Service) List(ctx context.Context, userID string, filter ListFilter) ([]Webhook, error) {
	all, err := s.Repo.List(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	if filter.Status != 0 {
		return all, nil
	}

	visible := make([]Webhook, 0, len(all))
	for _, wh := range all {
		if wh.Status != Deleted {
			visible = append(visible, wh)
		}
	}
	return visible, nil
}

// UpdateConfig validates and replaces the delivery config, keeping the secret
func (s *Service) UpdateConfig(ctx context.Context, id string, cfg Config) (Webhook, error) {
	cfg.Method = strings.ToUpper(cfg.Method)
	if err := cfg.Validate(); err != nil {
		return Webhook{}, fmt.Errorf("validating config: %w", err)
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	if err := s.Repo.UpdateConfig(ctx, id, cfg); err != nil {
		return Webhook{}, fmt.Errorf("updating config: %w", err)
	}
	return s.Get(ctx, id)
}

// Activate resumes deliveries of an inactive or failed webhook
func (s *Service) Activate(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, Active)
}

// Deactivate stops new triggers and pending attempts of a webhook
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, Inactive)
}

// Delete soft deletes a webhook; its deliveries stay readable
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, Deleted)
}

func (s *Service) setStatus(ctx context.Context, id string, status Status) error {
	wh, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if wh.Status == Deleted && status != Deleted {
		return fmt.Errorf("%w: %s is deleted", ErrWebhookNotFound, id)
	}

	if err := s.Repo.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("updating webhook status: %w", err)
	}

	s.Logger.Info().Str("webhook_id", id).Str("status", status.String()).Msg("Webhook status changed")
	return nil
}

// Trigger stores a pending delivery of body and queues its first attempt
func (s *Service) Trigger(ctx context.Context, webhookID string, body map[string]any, headers map[string]string) (string, error) {
	if body == nil {
		return "", ErrInvalidPayload
	}

	wh, err := s.Get(ctx, webhookID)
	if err != nil {
		return "", err
	}
	if wh.Status != Active {
		return "", fmt.Errorf("%w: %s is %s", ErrWebhookNotActive, webhookID, wh.Status)
	}

	return s.createDelivery(ctx, wh, body, headers, "")
}

// RetryDelivery sends the payload of a failed delivery again as a new delivery
func (s *Service) RetryDelivery(ctx context.Context, deliveryID string) (string, error) {
	d, err := s.GetDelivery(ctx, deliveryID)
	if err != nil {
		return "", err
	}
	if d.Status != DeliveryFailed {
		return "", fmt.Errorf("%w: %s is %s", ErrDeliveryNotFailed, deliveryID, d.Status)
	}

	wh, err := s.Get(ctx, d.WebhookID)
	if err != nil {
		return "", err
	}
	if wh.Status != Active {
		return "", fmt.Errorf("%w: %s is %s", ErrWebhookNotActive, wh.ID, wh.Status)
	}

	return s.createDelivery(ctx, wh, d.Payload, d.Headers, d.ID)
}

func (s *Service) createDelivery(ctx context.Context, wh Webhook, body map[string]any, headers map[string]string, retryOf string) (string, error) {
	if headers == nil {
		headers = map[string]string{}
	}

	d := Delivery{
		ID:        deliveryIDPrefix + uuid.New().String(),
		WebhookID: wh.ID,
		Payload:   body,
		Status:    DeliveryPending,
		Headers:   headers,
		RetryOf:   retryOf,
		CreatedAt: s.Now().UTC(),
	}

	if err := s.Repo.CreateDelivery(ctx, d); err != nil {
		return "", fmt.Errorf("storing delivery: %w", err)
	}

	if _, err := s.Queue.Enqueue(ctx, task.Normal, DeliverTaskKind, deliverTaskData(d), 0); err != nil {
		return "", fmt.Errorf("queueing delivery: %w", err)
	}

	s.Logger.Debug().Str("webhook_id", wh.ID).Str("delivery_id", d.ID).Msg("Delivery queued")
	return d.ID, nil
}

// HandleDeliverTask is the task handler of DeliverTaskKind. A task records
// the attempts count it was queued for; once the delivery has moved past it
// the task is stale and does nothing.
func (s *Service) HandleDeliverTask(ctx context.Context, t task.Task) (map[string]any, error) {
	deliveryID, _ := t.Data["delivery_id"].(string)
	if deliveryID == "" {
		return nil, fmt.Errorf("task %s has no delivery_id", t.ID)
	}
	expected, ok := intField(t.Data["attempts"])
	if !ok {
		expected = anyAttempts
	}
	if err := s.processDelivery(ctx, deliveryID, expected); err != nil {
		return nil, err
	}
	return map[string]any{"delivery_id": deliveryID}, nil
}

// ProcessDelivery runs one attempt of a delivery. At most one processor works
// on a delivery at a time; while another one holds it the attempt is queued
// again for when that lease runs out.
func (s *Service) ProcessDelivery(ctx context.Context, deliveryID string) error {
	return s.processDelivery(ctx, deliveryID, anyAttempts)
}

func (s *Service) processDelivery(ctx context.Context, deliveryID string, expected int) error {
	token := uuid.New().String()
	leaseKey := leasePrefix + deliveryID

	acquired, err := s.Locker.Acquire(ctx, leaseKey, token, leaseTTL)
	if err != nil {
		return fmt.Errorf("acquiring delivery lease: %w", err)
	}
	if !acquired {
		return s.requeueHeld(ctx, deliveryID, expected)
	}
	defer func() {
		if _, err := s.Locker.Release(context.WithoutCancel(ctx), leaseKey, token); err != nil {
			s.Logger.Warn().Err(err).Str("delivery_id", deliveryID).Msg("Failed to release delivery lease")
		}
	}()

	d, err := s.Repo.GetDelivery(ctx, deliveryID)
	if err != nil {
		return fmt.Errorf("getting delivery: %w", err)
	}
	if d.Status.IsFinal() {
		return nil
	}
	if expected != anyAttempts && d.Attempts != expected {
		s.Logger.Debug().
			Str("delivery_id", d.ID).
			Int("attempts", d.Attempts).
			Int("expected_attempts", expected).
			Msg("Skipping stale delivery task")
		return nil
	}

	wh, err := s.Repo.Get(ctx, d.WebhookID)
	if errors.Is(err, ErrWebhookNotFound) {
		return s.abandon(ctx, d, nil)
	}
	if err != nil {
		return fmt.Errorf("getting webhook: %w", err)
	}
	if wh.Status != Active {
		return s.abandon(ctx, d, &wh)
	}

	attempts, err := s.Repo.IncrementAttempts(ctx, d.ID, wh.ID)
	if err != nil {
		return err
	}
	d.Attempts = attempts

	req, err := s.buildRequest(wh, d)
	if err != nil {
		return s.finish(ctx, wh, d, Result{}, recovery.Wrap(recovery.KindValidation, "encoding payload", err))
	}

	res, sendErr := s.Sender.Send(ctx, req)
	s.recordAttempt(ctx, wh.ID, res, sendErr)

	return s.finish(ctx, wh, d, res, sendErr)
}

// requeueHeld parks the attempt until the current lease has surely expired.
// If the holder finishes first the parked task turns out stale and is skipped.
func (s *Service) requeueHeld(ctx context.Context, deliveryID string, expected int) error {
	if expected == anyAttempts {
		d, err := s.Repo.GetDelivery(ctx, deliveryID)
		if err != nil {
			return fmt.Errorf("getting delivery: %w", err)
		}
		if d.Status.IsFinal() {
			return nil
		}
		expected = d.Attempts
	}

	runAt := s.Now().UTC().Add(leaseTTL)
	data := map[string]any{"delivery_id": deliveryID, "attempts": expected}
	if _, err := s.Queue.EnqueueAt(ctx, task.Normal, DeliverTaskKind, data, runAt); err != nil {
		return fmt.Errorf("requeueing held delivery: %w", err)
	}

	s.Logger.Debug().Str("delivery_id", deliveryID).Time("run_at", runAt).Msg("Delivery already being processed, attempt requeued")
	return nil
}

// RecoverStalled queues a fresh attempt for every pending delivery whose task
// is overdue by more than a lease. That covers tasks lost to a crashed worker
// or to a failed retry schedule. It returns how many deliveries were queued.
func (s *Service) RecoverStalled(ctx context.Context) (int, error) {
	now := s.Now().UTC()
	ids, err := s.Repo.ClaimStalled(ctx, now.Add(-stallAfter), now, recoverBatch)
	if err != nil {
		return 0, fmt.Errorf("claiming stalled deliveries: %w", err)
	}

	recovered := 0
	for _, id := range ids {
		ok, err := s.recoverOne(ctx, id)
		if err != nil {
			return recovered, err
		}
		if ok {
			recovered++
		}
	}

	if recovered > 0 {
		s.Logger.Info().Int("count", recovered).Msg("Requeued stalled deliveries")
	}
	return recovered, nil
}

func (s *Service) recoverOne(ctx context.Context, deliveryID string) (bool, error) {
	token := uuid.New().String()
	leaseKey := leasePrefix + deliveryID

	// a held lease means an attempt is in flight; the next sweep rechecks it
	acquired, err := s.Locker.Acquire(ctx, leaseKey, token, leaseTTL)
	if err != nil {
		return false, fmt.Errorf("acquiring delivery lease: %w", err)
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		if _, err := s.Locker.Release(context.WithoutCancel(ctx), leaseKey, token); err != nil {
			s.Logger.Warn().Err(err).Str("delivery_id", deliveryID).Msg("Failed to release delivery lease")
		}
	}()

	d, err := s.Repo.GetDelivery(ctx, deliveryID)
	if errors.Is(err, ErrDeliveryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting delivery: %w", err)
	}
	if d.Status != DeliveryPending {
		return false, nil
	}

	if _, err := s.Queue.Enqueue(ctx, task.Normal, DeliverTaskKind, deliverTaskData(d), 0); err != nil {
		return false, fmt.Errorf("queueing stalled delivery: %w", err)
	}
	s.Logger.Debug().Str("delivery_id", d.ID).Int("attempts", d.Attempts).Msg("Stalled delivery requeued")
	return true, nil
}

func (s *Service) buildRequest(wh Webhook, d Delivery) (Request, error) {
	body, err := payload.Canonical(d.Payload)
	if err != nil {
		return Request{}, err
	}

	headers := make(map[string]string, len(wh.Config.Headers)+len(d.Headers)+2)
	for k, v := range wh.Config.Headers {
		headers[k] = v
	}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers["Content-Type"] = "application/json"
	headers[wh.Secret.HeaderName] = signature.Sign(wh.Secret.Key, body)

	return Request{
		Method:    wh.Config.Method,
		URL:       wh.Config.URL,
		Headers:   headers,
		Body:      body,
		Timeout:   wh.Config.Timeout,
		VerifyTLS: wh.Config.VerifyTLS,
	}, nil
}

// finish persists the outcome of an attempt and queues the next one when the
// retry budget allows it
func (s *Service) finish(ctx context.Context, wh Webhook, d Delivery, res Result, sendErr error) error {
	now := s.Now().UTC()
	d.DurationMS = res.Duration.Milliseconds()
	if res.StatusCode != 0 {
		d.Response = &Response{
			StatusCode: res.StatusCode,
			Headers:    res.Headers,
			Body:       res.Body,
		}
	}

	logger := s.Logger.With().
		Str("webhook_id", wh.ID).
		Str("delivery_id", d.ID).
		Int("attempts", d.Attempts).
		Logger()

	if sendErr == nil && res.Success() {
		d.Status = DeliverySuccess
		d.CompletedAt = &now
		d.NextRetry = nil
		d.Error = ""
		d.ErrorType = ""
		if err := s.Repo.SaveDelivery(ctx, d); err != nil {
			return err
		}
		if err := s.Repo.RecordOutcome(ctx, wh.ID, true, now); err != nil {
			return err
		}
		s.track(ctx, d, true, res.StatusCode, res.Duration, now)

		logger.Info().Int("status_code", res.StatusCode).Msg("Delivery succeeded")
		return nil
	}

	failure := sendErr
	if failure == nil {
		failure = httpFailure(res)
	}
	errType, _ := recovery.Classify(failure)
	d.Error = failure.Error()
	d.ErrorType = errType.String()

	if d.Attempts > wh.Config.RetryStrategy.MaxRetries {
		d.Status = DeliveryFailed
		d.CompletedAt = &now
		d.NextRetry = nil
		if err := s.Repo.SaveDelivery(ctx, d); err != nil {
			return err
		}
		if err := s.Repo.RecordOutcome(ctx, wh.ID, false, now); err != nil {
			return err
		}
		s.track(ctx, d, false, res.StatusCode, res.Duration, now)
		s.reportFailure(ctx, wh, d, failure)

		logger.Warn().Str("error", d.Error).Msg("Delivery failed permanently")
		return nil
	}

	next := now.Add(wh.Config.RetryStrategy.Backoff(d.Attempts))
	d.Status = DeliveryPending
	d.NextRetry = &next
	// queue before saving: a stored next_retry must always have a task behind it
	if _, err := s.Queue.EnqueueAt(ctx, task.Normal, DeliverTaskKind, deliverTaskData(d), next); err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}
	if err := s.Repo.SaveDelivery(ctx, d); err != nil {
		return err
	}

	logger.Info().Str("error", d.Error).Time("next_retry", next).Msg("Delivery attempt failed, retry scheduled")
	return nil
}

// abandon fails a delivery whose webhook can no longer receive it; no attempt is made
func (s *Service) abandon(ctx context.Context, d Delivery, wh *Webhook) error {
	now := s.Now().UTC()
	d.Status = DeliveryFailed
	d.CompletedAt = &now
	d.NextRetry = nil
	d.ErrorType = recovery.Validation.String()
	d.Error = fmt.Sprintf("webhook %s not found", d.WebhookID)
	if wh != nil {
		d.Error = fmt.Sprintf("webhook %s is %s", wh.ID, wh.Status)
	}

	if err := s.Repo.SaveDelivery(ctx, d); err != nil {
		return err
	}
	if wh != nil {
		if err := s.Repo.RecordOutcome(ctx, wh.ID, false, now); err != nil {
			return err
		}
	}
	s.track(ctx, d, false, 0, 0, now)

	s.Logger.Warn().Str("delivery_id", d.ID).Str("error", d.Error).Msg("Delivery abandoned")
	return nil
}

// track reports a terminal outcome to monitoring; a failure there never fails the delivery
func (s *Service) track(ctx context.Context, d Delivery, success bool, statusCode int, responseTime time.Duration, at time.Time) {
	retries := d.Attempts - 1
	if retries < 0 {
		retries = 0
	}

	err := s.Monitor.TrackDelivery(ctx, monitoring.Outcome{
		WebhookID:    d.WebhookID,
		DeliveryID:   d.ID,
		Success:      success,
		StatusCode:   statusCode,
		ResponseTime: responseTime,
		ErrorType:    d.ErrorType,
		Retries:      retries,
		Timestamp:    at,
	})
	if err != nil {
		s.Logger.Warn().Err(err).Str("delivery_id", d.ID).Msg("Failed to track delivery")
	}
}

// reportFailure hands a permanently failed delivery to the workflow error handler
func (s *Service) reportFailure(ctx context.Context, wh Webhook, d Delivery, failure error) {
	if s.Failures == nil || wh.WorkflowID == "" {
		return
	}

	outcome, err := s.Failures.HandleError(ctx, wh.WorkflowID, failure, recovery.Context{
		UserID: wh.UserID,
		Step:   "webhook:" + wh.ID,
		Values: map[string]any{
			"webhook_id":  wh.ID,
			"delivery_id": d.ID,
			"attempts":    d.Attempts,
		},
	})
	if err != nil {
		s.Logger.Error().Err(err).Str("workflow_id", wh.WorkflowID).Str("delivery_id", d.ID).Msg("Failed to report delivery failure")
		return
	}

	s.Logger.Info().
		Str("workflow_id", wh.WorkflowID).
		Str("delivery_id", d.ID).
		Str("action", string(outcome.Strategy.Action)).
		Msg("Delivery failure reported to workflow")
}

func (s *Service) recordAttempt(ctx context.Context, webhookID string, res Result, sendErr error) {
	if s.Recorder == nil {
		return
	}

	outcome := "success"
	if sendErr != nil || !res.Success() {
		outcome = "failure"
	}
	tags := map[string]string{"webhook_id": webhookID, "outcome": outcome}

	samples := []metrics.Sample{
		{Name: attemptsMetric, Kind: metrics.Counter, Value: 1, Tags: tags},
		{Name: durationMetric, Kind: metrics.Histogram, Value: res.Duration.Seconds(), Tags: tags},
	}
	for _, sample := range samples {
		if err := s.Recorder.CollectMetric(ctx, sample); err != nil {
			s.Logger.Warn().Err(err).Str("metric", sample.Name).Msg("Failed to record delivery metric")
		}
	}
}

// GetDelivery returns a delivery
func (s *Service) GetDelivery(ctx context.Context, id string) (Delivery, error) {
	d, err := s.Repo.GetDelivery(ctx, id)
	if err != nil {
		return Delivery{}, fmt.Errorf("getting delivery: %w", err)
	}
	return d, nil
}

// ListDeliveries pages the deliveries of a webhook, newest first
func (s *Service) ListDeliveries(ctx context.Context, webhookID string, filter DeliveryFilter) ([]Delivery, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	deliveries, err := s.Repo.ListDeliveries(ctx, webhookID, filter)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	return deliveries, nil
}

// VerifySignature checks sig against the canonical form of body
func (s *Service) VerifySignature(secret string, body map[string]any, sig string) bool {
	canonical, err := payload.Canonical(body)
	if err != nil {
		return false
	}
	return signature.Verify(secret, canonical, sig)
}

// VerifyWebhook checks sig with the secret of a webhook
func (s *Service) VerifyWebhook(ctx context.Context, webhookID string, body map[string]any, sig string) (bool, error) {
	wh, err := s.Get(ctx, webhookID)
	if err != nil {
		return false, err
	}
	return s.VerifySignature(wh.Secret.Key, body, sig), nil
}

// GetWebhookHealth scores a webhook over the last 24 hours
func (s *Service) GetWebhookHealth(ctx context.Context, webhookID string) (monitoring.Health, error) {
	if _, err := s.Get(ctx, webhookID); err != nil {
		return monitoring.Health{}, err
	}

	health, err := s.Monitor.Health(ctx, webhookID)
	if err != nil {
		return monitoring.Health{}, fmt.Errorf("computing health: %w", err)
	}
	return health, nil
}

// Helper functions

// httpFailure tags a non-2xx answer: throttling and server errors are the
// remote side's fault, other client errors are ours
func httpFailure(res Result) error {
	kind := recovery.KindValidation
	if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests || res.StatusCode == http.StatusRequestTimeout {
		kind = recovery.KindConnectivity
	}

	return recovery.Errorf(kind, "HTTP %d: %s", res.StatusCode, truncate(res.Body, 256))
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func deliverTaskData(d Delivery) map[string]any {
	return map[string]any{"delivery_id": d.ID, "attempts": d.Attempts}
}

// intField reads a whole number out of task data, which may have been
// through JSON
func intField(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
