package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/flowrelay/metrics"
	"github.com/marcelsud/flowrelay/monitoring"
	"github.com/marcelsud/flowrelay/ratelimit"
	"github.com/marcelsud/flowrelay/task"
	"github.com/marcelsud/flowrelay/webhook"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	userHeader = "X-User-ID"
	planHeader = "X-User-Plan"

	triggerAction    = "webhook_trigger"
	taskStatusAction = "task_status"

	requestTimeout = 30 * time.Second
)

/* TaskReader is the part of the task manager the API exposes */
type TaskReader interface {
	Get(ctx context.Context, id string) (task.Task, error)
}

// Services groups every use case served over HTTP
type Services struct {
	Webhooks   webhook.UseCase
	Tasks      TaskReader
	Monitoring monitoring.UseCase
	Limiter    ratelimit.Checker
	// The read side routes below are mounted only when their service is set
	Series    metrics.Reader
	Activity  ActivityReader
	Workflows WorkflowStates
	Results   ResultCache
	Plans     PlanStore
	// Metrics serves /metrics; the Prometheus default gatherer when nil
	Metrics http.Handler
	// HTTPMetrics instruments every request when set
	HTTPMetrics *HTTPMetrics
}

// NewLogger builds the JSON request logger shared with the services
func NewLogger(serviceName, level string) zerolog.Logger {
	return httplog.NewLogger(serviceName, httplog.Options{
		JSON:     true,
		LogLevel: level,
	})
}

// Handlers sets up the API routes
func Handlers(ctx context.Context, svc Services, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if svc.HTTPMetrics != nil {
		r.Use(svc.HTTPMetrics.Middleware)
	}
	r.Use(middleware.Timeout(requestTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	metricsHandler := svc.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	limit := func(action string) func(http.Handler) http.Handler {
		return rateLimit(svc.Limiter, action, logger)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireUser)

		r.Route("/webhooks", func(r chi.Router) {
			r.Method(http.MethodPost, "/", postWebhook(svc.Webhooks))
			r.Method(http.MethodGet, "/", getWebhooks(svc.Webhooks))

			r.Route("/{id}", func(r chi.Router) {
				r.Method(http.MethodGet, "/", getWebhook(svc.Webhooks))
				r.Method(http.MethodPut, "/", putWebhook(svc.Webhooks))
				r.Method(http.MethodDelete, "/", deleteWebhook(svc.Webhooks))
				r.With(limit(triggerAction)).Method(http.MethodPost, "/trigger", triggerWebhook(svc.Webhooks))
				r.Method(http.MethodGet, "/deliveries", getWebhookDeliveries(svc.Webhooks))
				r.Method(http.MethodPost, "/verify", verifyWebhook(svc.Webhooks))
				r.Method(http.MethodGet, "/health", getWebhookHealth(svc.Webhooks))
			})
		})

		r.Method(http.MethodGet, "/deliveries/{id}", getDelivery(svc.Webhooks))
		r.With(limit(triggerAction)).Method(http.MethodPost, "/deliveries/{id}/retry", retryDelivery(svc.Webhooks))

		r.With(limit(taskStatusAction)).Method(http.MethodGet, "/tasks/{id}", getTask(svc.Tasks))

		r.Method(http.MethodGet, "/monitoring/webhooks/current", getCurrentMetrics(svc.Monitoring))
		r.Method(http.MethodGet, "/monitoring/webhooks/period", getPeriodMetrics(svc.Monitoring))

		if svc.Series != nil {
			r.Method(http.MethodGet, "/metrics/{name}", getSeries(svc.Series))
			r.Method(http.MethodGet, "/metrics/{name}/histogram", getHistogram(svc.Series))
		}
		if svc.Activity != nil {
			r.Method(http.MethodGet, "/activity", getActivity(svc.Activity))
			r.Method(http.MethodGet, "/activity/counts", getActivityCounts(svc.Activity))
		}
		if svc.Workflows != nil {
			r.Method(http.MethodGet, "/workflows/{id}/state", getWorkflowState(svc.Workflows))
			r.Method(http.MethodGet, "/workflows/{id}/history", getWorkflowHistory(svc.Workflows))
		}
		if svc.Results != nil {
			r.Method(http.MethodGet, "/workflows/{id}/result", getWorkflowResult(svc.Results))
			r.Method(http.MethodPut, "/workflows/{id}/result", putWorkflowResult(svc.Results))
			r.Method(http.MethodDelete, "/workflows/{id}/result", deleteWorkflowResult(svc.Results))
		}
		if svc.Plans != nil {
			r.Method(http.MethodGet, "/usage", getUsage(svc.Plans))
			r.Method(http.MethodPut, "/plan", putPlan(svc.Plans))
		}
	})

	return r
}
