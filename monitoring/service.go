package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/marcelsud/flowrelay/store"
	"github.com/rs/zerolog"
)

/* Delivery monitoring storage
 * webhook_metrics:global / webhook_metrics:{webhook_id}  running aggregates (hash)
 * webhook_outcome:timeline[:{webhook_id}]                outcome ids scored by time
 * webhook_outcome:{delivery_id}                          outcome record, 30 days
 */

const (
	metricsPrefix = "webhook_metrics:"
	outcomePrefix = "webhook_outcome:"
	globalScope   = "global"
	retention     = 30 * 24 * time.Hour
	healthWindow  = 24 * time.Hour
)

// Hash fields of the running aggregates
const (
	fieldTotal       = "total"
	fieldSuccessful  = "successful"
	fieldFailed      = "failed"
	fieldRetries     = "retry_count"
	fieldRespSum     = "response_time_sum_ms"
	fieldRespSamples = "response_time_samples"
	statusPrefix     = "status:"
	errorPrefix      = "error:"
)

type Store interface {
	store.KV
	store.Hash
	store.SortedSet
}

/* UseCase is the monitoring contract consumed by the delivery engine and the HTTP layer */
type UseCase interface {
	TrackDelivery(ctx context.Context, o Outcome) error
	Current(ctx context.Context, webhookID string) (Metrics, error)
	ByPeriod(ctx context.Context, period Period, webhookID string, start, end time.Time) (Metrics, error)
	Health(ctx context.Context, webhookID string) (Health, error)
}

type Service struct {
	Store  Store
	Logger zerolog.Logger
	Now    func() time.Time
}

func NewService(s Store, logger zerolog.Logger) *Service {
	return &Service{
		Store:  s,
		Logger: logger,
		Now:    time.Now,
	}
}

// TrackDelivery folds o into the global and per webhook aggregates and appends it to the timeline
func (s *Service) TrackDelivery(ctx context.Context, o Outcome) error {
	if o.DeliveryID == "" || o.WebhookID == "" {
		return fmt.Errorf("outcome requires webhook and delivery ids")
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = s.Now()
	}

	for _, scope := range []string{globalScope, o.WebhookID} {
		if err := s.incrementAggregates(ctx, metricsPrefix+scope, o); err != nil {
			return fmt.Errorf("updating %s aggregates: %w", scope, err)
		}
	}

	if err := s.appendTimeline(ctx, o); err != nil {
		return fmt.Errorf("appending to timeline: %w", err)
	}

	s.Logger.Debug().
		Str("webhook_id", o.WebhookID).
		Str("delivery_id", o.DeliveryID).
		Bool("success", o.Success).
		Int("status_code", o.StatusCode).
		Msg("Delivery tracked")

	return nil
}

func (s *Service) incrementAggregates(ctx context.Context, key string, o Outcome) error {
	incr := map[string]int64{fieldTotal: 1}
	if o.Success {
		incr[fieldSuccessful] = 1
	} else {
		incr[fieldFailed] = 1
		if o.ErrorType != "" {
			incr[errorPrefix+o.ErrorType] = 1
		}
	}
	if o.StatusCode > 0 {
		incr[statusPrefix+statusClass(o.StatusCode)] = 1
	}
	if o.Retries > 0 {
		incr[fieldRetries] = int64(o.Retries)
	}
	if o.ResponseTime > 0 {
		incr[fieldRespSamples] = 1
	}

	for field, n := range incr {
		if _, err := s.Store.HIncrBy(ctx, key, field, n); err != nil {
			return err
		}
	}
	if o.ResponseTime > 0 {
		if _, err := s.Store.HIncrByFloat(ctx, key, fieldRespSum, milliseconds(o.ResponseTime)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) appendTimeline(ctx context.Context, o Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshaling outcome: %w", err)
	}
	if err := s.Store.Set(ctx, outcomePrefix+o.DeliveryID, data, retention); err != nil {
		return err
	}

	score := float64(o.Timestamp.Unix())
	cutoff := float64(s.Now().Add(-retention).Unix())
	for _, key := range []string{timelineKey(""), timelineKey(o.WebhookID)} {
		if err := s.Store.ZAdd(ctx, key, score, o.DeliveryID); err != nil {
			return err
		}
		if err := s.Store.ZRemRangeByScore(ctx, key, math.Inf(-1), cutoff); err != nil {
			return err
		}
	}
	return nil
}

// Current returns the running aggregates of webhookID, or of every webhook when empty
func (s *Service) Current(ctx context.Context, webhookID string) (Metrics, error) {
	scope := webhookID
	if scope == "" {
		scope = globalScope
	}

	fields, err := s.Store.HGetAll(ctx, metricsPrefix+scope)
	if errors.Is(err, store.ErrNotFound) {
		return newMetrics(), nil
	}
	if err != nil {
		return Metrics{}, fmt.Errorf("reading aggregates: %w", err)
	}

	m := newMetrics()
	var respSum, respSamples float64
	for field, raw := range fields {
		switch {
		case field == fieldRespSum:
			respSum, _ = strconv.ParseFloat(raw, 64)
			continue
		case field == fieldRespSamples:
			respSamples, _ = strconv.ParseFloat(raw, 64)
			continue
		}

		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch {
		case field == fieldTotal:
			m.TotalDeliveries = n
		case field == fieldSuccessful:
			m.SuccessfulDeliveries = n
		case field == fieldFailed:
			m.FailedDeliveries = n
		case field == fieldRetries:
			m.RetryCount = n
		case strings.HasPrefix(field, statusPrefix):
			m.StatusCodes[strings.TrimPrefix(field, statusPrefix)] = n
		case strings.HasPrefix(field, errorPrefix):
			m.ErrorTypes[strings.TrimPrefix(field, errorPrefix)] = n
		}
	}
	if respSamples > 0 {
		m.AverageResponseTime = respSum / respSamples
	}

	return m, nil
}

// ByPeriod recomputes aggregates from the timeline. Zero start and end
// select the last period.
func (s *Service) ByPeriod(ctx context.Context, period Period, webhookID string, start, end time.Time) (Metrics, error) {
	if end.IsZero() {
		end = s.Now()
	}
	if start.IsZero() {
		if period.Duration() == 0 {
			return Metrics{}, fmt.Errorf("invalid period: %d", period)
		}
		start = end.Add(-period.Duration())
	}

	outcomes, err := s.outcomesBetween(ctx, webhookID, start, end)
	if err != nil {
		return Metrics{}, err
	}
	return calculate(outcomes), nil
}

// Health scores webhookID over the last 24 hours
func (s *Service) Health(ctx context.Context, webhookID string) (Health, error) {
	end := s.Now()
	outcomes, err := s.outcomesBetween(ctx, webhookID, end.Add(-healthWindow), end)
	if err != nil {
		return Health{}, err
	}

	m := calculate(outcomes)
	score := math.Round(Score(m)*100) / 100

	return Health{
		WebhookID: webhookID,
		Score:     score,
		Status:    StatusFor(score),
		Metrics:   m,
	}, nil
}

// DeliveryCounts returns global outcome counts for the metrics exporter
func (s *Service) DeliveryCounts(ctx context.Context) (map[string]int64, error) {
	m, err := s.Current(ctx, "")
	if err != nil {
		return nil, err
	}
	return map[string]int64{
		"successful": m.SuccessfulDeliveries,
		"failed":     m.FailedDeliveries,
	}, nil
}

func (s *Service) outcomesBetween(ctx context.Context, webhookID string, start, end time.Time) ([]Outcome, error) {
	ids, err := s.Store.ZRangeByScore(ctx, timelineKey(webhookID), float64(start.Unix()), float64(end.Unix()), 0, 0)
	if err != nil {
		return nil, fmt.Errorf("reading timeline: %w", err)
	}

	outcomes := make([]Outcome, 0, len(ids))
	for _, id := range ids {
		data, err := s.Store.Get(ctx, outcomePrefix+id)
		if errors.Is(err, store.ErrNotFound) {
			// record expired between range and get
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading outcome %s: %w", id, err)
		}

		var o Outcome
		if err := json.Unmarshal(data, &o); err != nil {
			s.Logger.Warn().Err(err).Str("delivery_id", id).Msg("Skipping undecodable outcome")
			continue
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func calculate(outcomes []Outcome) Metrics {
	m := newMetrics()
	m.TotalDeliveries = int64(len(outcomes))

	var respSum float64
	var respSamples int
	for _, o := range outcomes {
		if o.Success {
			m.SuccessfulDeliveries++
		} else {
			m.FailedDeliveries++
			if o.ErrorType != "" {
				m.ErrorTypes[o.ErrorType]++
			}
		}
		if o.StatusCode > 0 {
			m.StatusCodes[statusClass(o.StatusCode)]++
		}
		if o.ResponseTime > 0 {
			respSum += milliseconds(o.ResponseTime)
			respSamples++
		}
		m.RetryCount += int64(o.Retries)
	}
	if respSamples > 0 {
		m.AverageResponseTime = respSum / float64(respSamples)
	}
	return m
}

// Helper functions

func timelineKey(webhookID string) string {
	if webhookID == "" {
		return outcomePrefix + "timeline"
	}
	return outcomePrefix + "timeline:" + webhookID
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
