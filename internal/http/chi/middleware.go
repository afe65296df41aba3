package chi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/marcelsud/flowrelay/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// requireUser rejects requests without a caller identity
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(userHeader) == "" {
			http.Error(w, userHeader+" header is required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit counts the call against the caller's plan quota for action.
// Limiter failures let the request through.
func rateLimit(limiter ratelimit.Checker, action string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			userID := r.Header.Get(userHeader)
			err := limiter.Check(r.Context(), userID, action, r.Header.Get(planHeader))

			var exceeded *ratelimit.ExceededError
			switch {
			case err == nil:
			case errors.As(err, &exceeded):
				retryAfter := int(math.Ceil(exceeded.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSON(w, http.StatusTooManyRequests, errorResponse{
					Error:      exceeded.Error(),
					RetryAfter: retryAfter,
				})
				return
			default:
				logger.Warn().Err(err).Str("user_id", userID).Str("action", action).Msg("Rate limit check failed, allowing request")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HTTPMetrics holds the Prometheus request metrics.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics creates the request metrics and registers them on reg
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"code", "method", "path"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of latencies for HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"code", "method", "path"},
		),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDuration)
	return m
}

// Middleware records Prometheus metrics for HTTP requests, labelled by route pattern.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)

		m.RequestsTotal.WithLabelValues(code, r.Method, path).Inc()
		m.RequestDuration.WithLabelValues(code, r.Method, path).Observe(time.Since(start).Seconds())
	})
}
