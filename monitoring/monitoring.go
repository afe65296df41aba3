package monitoring

import (
	"fmt"
	"time"
)

// Period is a lookback window for period metrics
type Period int

const (
	Hour Period = iota + 1
	Day
	Week
	Month
)

func (p Period) String() string {
	switch p {
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	}
	return "unknown"
}

// NewPeriod parses a period name
func NewPeriod(s string) (Period, error) {
	switch s {
	case "hour":
		return Hour, nil
	case "day":
		return Day, nil
	case "week":
		return Week, nil
	case "month":
		return Month, nil
	}
	return 0, fmt.Errorf("invalid period: %s", s)
}

// Duration returns the window length
func (p Period) Duration() time.Duration {
	switch p {
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	case Week:
		return 7 * 24 * time.Hour
	case Month:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Outcome is one finished delivery
type Outcome struct {
	WebhookID    string        `json:"webhook_id"`
	DeliveryID   string        `json:"delivery_id"`
	Success      bool          `json:"success"`
	StatusCode   int           `json:"status_code,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	ErrorType    string        `json:"error_type,omitempty"`
	Retries      int           `json:"retries"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Metrics are delivery aggregates for a webhook or for all of them
type Metrics struct {
	TotalDeliveries      int64            `json:"total_deliveries"`
	SuccessfulDeliveries int64            `json:"successful_deliveries"`
	FailedDeliveries     int64            `json:"failed_deliveries"`
	AverageResponseTime  float64          `json:"average_response_time_ms"`
	StatusCodes          map[string]int64 `json:"status_codes"`
	ErrorTypes           map[string]int64 `json:"error_types"`
	RetryCount           int64            `json:"retry_count"`
}

func newMetrics() Metrics {
	return Metrics{
		StatusCodes: make(map[string]int64),
		ErrorTypes:  make(map[string]int64),
	}
}

// HealthStatus classifies a health score
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// Health is the scored state of one webhook over the last 24h
type Health struct {
	WebhookID string       `json:"webhook_id"`
	Score     float64      `json:"health_score"`
	Status    HealthStatus `json:"status"`
	Metrics   Metrics      `json:"metrics"`
}

// Score computes the 0-100 health score of m.
// Success rate weighs 60%, latency and retry rate 20% each.
func Score(m Metrics) float64 {
	if m.TotalDeliveries == 0 {
		return 100
	}

	total := float64(m.TotalDeliveries)
	successRate := float64(m.SuccessfulDeliveries) / total * 100
	retryRate := float64(m.RetryCount) / total * 100

	score := successRate*0.6 +
		(100-min(m.AverageResponseTime/10, 100))*0.2 +
		(100-min(retryRate, 100))*0.2

	return clamp(score, 0, 100)
}

// StatusFor maps a score to its status
func StatusFor(score float64) HealthStatus {
	switch {
	case score >= 90:
		return Healthy
	case score >= 70:
		return Degraded
	default:
		return Unhealthy
	}
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
