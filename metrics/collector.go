package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/flowrelay/store"
)

/* Collector stores metric samples in the state store
 * Raw samples:  metrics:raw:{key}              sorted set scored by unix time, kept 24h
 * Aggregates:   metrics:agg:{interval}:{key}   hash of bucket start -> value
 *               ...:count                      hash of bucket start -> observations
 *               ...:bucket:{le}                hash of bucket start -> histogram hits
 */

const (
	keyPrefix    = "metrics"
	rawRetention = 24 * time.Hour
)

// Intervals are the aggregation resolutions in seconds
var Intervals = []int64{300, 3600, 86400}

var aggRetention = map[int64]time.Duration{
	300:   48 * time.Hour,
	3600:  30 * 24 * time.Hour,
	86400: 365 * 24 * time.Hour,
}

// HistogramBuckets are upper bounds in seconds
var HistogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10}

// Store is the subset of the state store the collector needs
type Store interface {
	store.KV
	store.Hash
	store.SortedSet
}

type Collector struct {
	Store Store
	Now   func() time.Time
}

// NewCollector creates a Collector over s
func NewCollector(s Store) *Collector {
	return &Collector{
		Store: s,
		Now:   time.Now,
	}
}

type rawSample struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// CollectMetric stores s raw and folds it into every aggregation interval
func (c *Collector) CollectMetric(ctx context.Context, s Sample) error {
	if s.Name == "" {
		return fmt.Errorf("metric name cannot be empty")
	}
	if err := s.Kind.Validate(); err != nil {
		return err
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = c.Now()
	}

	key := seriesKey(s.Name, s.Tags)
	if err := c.storeRaw(ctx, key, s); err != nil {
		return err
	}

	for _, interval := range Intervals {
		if err := c.aggregate(ctx, key, interval, s); err != nil {
			return fmt.Errorf("aggregating %s at %ds: %w", s.Name, interval, err)
		}
	}

	return nil
}

func (c *Collector) storeRaw(ctx context.Context, key string, s Sample) error {
	member, err := json.Marshal(rawSample{
		ID:        uuid.NewString(),
		Kind:      s.Kind.String(),
		Value:     s.Value,
		Tags:      s.Tags,
		Timestamp: s.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshaling sample: %w", err)
	}

	rawKey := fmt.Sprintf("%s:raw:%s", keyPrefix, key)
	score := float64(s.Timestamp.UnixMilli()) / 1000
	if err := c.Store.ZAdd(ctx, rawKey, score, string(member)); err != nil {
		return fmt.Errorf("storing raw sample: %w", err)
	}

	cutoff := float64(c.Now().Add(-rawRetention).Unix())
	if err := c.Store.ZRemRangeByScore(ctx, rawKey, 0, cutoff); err != nil {
		return fmt.Errorf("trimming raw samples: %w", err)
	}
	if err := c.Store.Expire(ctx, rawKey, rawRetention); err != nil {
		return fmt.Errorf("setting raw sample TTL: %w", err)
	}

	return nil
}

func (c *Collector) aggregate(ctx context.Context, key string, interval int64, s Sample) error {
	aggKey := aggregateKey(interval, key)
	field := strconv.FormatInt(bucketStart(s.Timestamp, interval), 10)
	touched := []string{aggKey}

	switch s.Kind {
	case Counter:
		if _, err := c.Store.HIncrByFloat(ctx, aggKey, field, s.Value); err != nil {
			return err
		}
	case Gauge:
		if err := c.Store.HSet(ctx, aggKey, map[string]any{field: s.Value}); err != nil {
			return err
		}
	case Histogram, Summary:
		if _, err := c.Store.HIncrByFloat(ctx, aggKey, field, s.Value); err != nil {
			return err
		}
		if _, err := c.Store.HIncrBy(ctx, aggKey+":count", field, 1); err != nil {
			return err
		}
		touched = append(touched, aggKey+":count")

		if s.Kind == Histogram {
			bucketKey := fmt.Sprintf("%s:bucket:%s", aggKey, bucketLabel(s.Value))
			if _, err := c.Store.HIncrBy(ctx, bucketKey, field, 1); err != nil {
				return err
			}
			touched = append(touched, bucketKey)
		}
	default:
		return fmt.Errorf("invalid metric kind: %d", s.Kind)
	}

	for _, k := range touched {
		if err := c.Store.Expire(ctx, k, aggRetention[interval]); err != nil {
			return err
		}
	}
	return nil
}

// GetMetrics reads q at the resolution chosen for its range, oldest bucket first
func (c *Collector) GetMetrics(ctx context.Context, q Query) ([]Point, error) {
	start, end := c.queryRange(q)
	interval := IntervalFor(end.Sub(start))
	aggKey := aggregateKey(interval, seriesKey(q.Name, q.Tags))

	values, err := c.readBuckets(ctx, aggKey, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", q.Name, err)
	}
	counts, err := c.readBuckets(ctx, aggKey+":count", interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading %s counts: %w", q.Name, err)
	}

	points := make([]Point, 0, len(values))
	for ts, v := range values {
		points = append(points, Point{
			Timestamp: time.Unix(ts, 0).UTC(),
			Value:     v,
			Count:     int64(counts[ts]),
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	return points, nil
}

// GetHistogram sums histogram bucket hits over the range of q
func (c *Collector) GetHistogram(ctx context.Context, q Query) (map[string]int64, error) {
	start, end := c.queryRange(q)
	interval := IntervalFor(end.Sub(start))
	aggKey := aggregateKey(interval, seriesKey(q.Name, q.Tags))

	result := make(map[string]int64)
	labels := make([]string, 0, len(HistogramBuckets)+1)
	for _, le := range HistogramBuckets {
		labels = append(labels, bucketLabel(le))
	}
	labels = append(labels, "+Inf")

	for _, label := range labels {
		hits, err := c.readBuckets(ctx, fmt.Sprintf("%s:bucket:%s", aggKey, label), interval, start, end)
		if err != nil {
			return nil, fmt.Errorf("reading histogram bucket %s: %w", label, err)
		}
		var total int64
		for _, n := range hits {
			total += int64(n)
		}
		if total > 0 {
			result[label] = total
		}
	}

	return result, nil
}

// IntervalFor picks the aggregation resolution for a query range:
// up to an hour reads 5 minute buckets, up to a day hourly, otherwise daily
func IntervalFor(r time.Duration) int64 {
	switch {
	case r <= time.Hour:
		return 300
	case r <= 24*time.Hour:
		return 3600
	default:
		return 86400
	}
}

func (c *Collector) queryRange(q Query) (time.Time, time.Time) {
	end := q.End
	if end.IsZero() {
		end = c.Now()
	}
	start := q.Start
	if start.IsZero() {
		start = end.Add(-time.Hour)
	}
	return start, end
}

// readBuckets returns the buckets of key overlapping [start, end]
func (c *Collector) readBuckets(ctx context.Context, key string, interval int64, start, end time.Time) (map[int64]float64, error) {
	fields, err := c.Store.HGetAll(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return map[int64]float64{}, nil
	}
	if err != nil {
		return nil, err
	}

	from := bucketStart(start, interval)
	to := end.Unix()

	buckets := make(map[int64]float64, len(fields))
	for field, raw := range fields {
		ts, err := strconv.ParseInt(field, 10, 64)
		if err != nil || ts < from || ts > to {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		buckets[ts] = v
	}
	return buckets, nil
}

// Helper functions

// seriesKey joins name and sorted tags: name:k1=v1,k2=v2
func seriesKey(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + tags[k]
	}
	return name + ":" + strings.Join(pairs, ",")
}

func aggregateKey(interval int64, key string) string {
	return fmt.Sprintf("%s:agg:%d:%s", keyPrefix, interval, key)
}

func bucketStart(t time.Time, interval int64) int64 {
	ts := t.Unix()
	return ts - ts%interval
}

// bucketLabel returns the smallest bucket bound holding v
func bucketLabel(v float64) string {
	for _, le := range HistogramBuckets {
		if v <= le {
			return strconv.FormatFloat(le, 'f', -1, 64)
		}
	}
	return "+Inf"
}
