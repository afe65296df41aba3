package metrics

import (
	"context"
	"fmt"
	"time"
)

// Kind is the type of a metric sample.
type Kind int

const (
	Counter Kind = iota + 1
	Gauge
	Histogram
	Summary
)

func (k Kind) String() string {
	switch k {
	case Counter:
		return "counter"
	case Gauge:
		return "gauge"
	case Histogram:
		return "histogram"
	case Summary:
		return "summary"
	}
	return "unknown"
}

func (k Kind) Validate() error {
	switch k {
	case Counter, Gauge, Histogram, Summary:
		return nil
	}
	return fmt.Errorf("invalid metric kind: %d", k)
}

// Sample is a single recorded measurement.
type Sample struct {
	Name  string            `json:"name"`
	Kind  Kind              `json:"kind"`
	Value float64           `json:"value"`
	Tags  map[string]string `json:"tags,omitempty"`

	// Timestamp defaults to the collector clock when zero
	Timestamp time.Time `json:"timestamp"`
}

// Point is one aggregated bucket of a series.
type Point struct {
	// Timestamp is the start of the bucket
	Timestamp time.Time `json:"timestamp"`

	// Value is the bucket total for counters, histograms and summaries
	// and the last observed value for gauges
	Value float64 `json:"value"`

	// Count is the number of observations for histograms and summaries
	Count int64 `json:"count,omitempty"`
}

// Query selects a series over a time range.
type Query struct {
	Name  string
	Tags  map[string]string
	Start time.Time
	End   time.Time
}

// Recorder is implemented by anything that accepts metric samples.
type Recorder interface {
	// CollectMetric stores a raw sample and updates every aggregation
	CollectMetric(ctx context.Context, s Sample) error
}

// Reader reads aggregated series back.
type Reader interface {
	// GetMetrics returns the series at the resolution chosen for the range
	GetMetrics(ctx context.Context, q Query) ([]Point, error)

	// GetHistogram returns per bucket observation counts for the range
	GetHistogram(ctx context.Context, q Query) (map[string]int64, error)
}

// QueueStats exposes the task queue state.
type QueueStats interface {
	// QueueLengths returns the number of waiting tasks per queue
	QueueLengths(ctx context.Context) (map[string]int64, error)

	// ActiveWorkers returns the number of workers with a live heartbeat
	ActiveWorkers(ctx context.Context) (int64, error)
}

// DeliveryStats exposes global webhook delivery counts.
type DeliveryStats interface {
	// DeliveryCounts returns delivery counts keyed by outcome
	DeliveryCounts(ctx context.Context) (map[string]int64, error)
}
