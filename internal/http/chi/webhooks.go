package chi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/flowrelay/webhook"
)

/* HTTP layer DTOs for webhook API
 * Separate from domain entities to avoid leaking internal structure
 */

type retryStrategyDTO struct {
	MaxRetries      int     `json:"max_retries"`
	InitialInterval int     `json:"initial_interval"`
	Multiplier      float64 `json:"multiplier"`
	MaxInterval     int     `json:"max_interval"`
}

// webhookRequest creates or updates a webhook; durations are in seconds
type webhookRequest struct {
	Name          string            `json:"name"`
	URL           string            `json:"url"`
	Method        string            `json:"method"`
	Headers       map[string]string `json:"headers"`
	Timeout       int               `json:"timeout"`
	VerifyTLS     *bool             `json:"verify_tls"`
	RetryStrategy *retryStrategyDTO `json:"retry_strategy"`
	WorkflowID    string            `json:"workflow_id"`
	Status        string            `json:"status"`
}

type webhookResponse struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	URL                  string            `json:"url"`
	Method               string            `json:"method"`
	Headers              map[string]string `json:"headers"`
	Timeout              int               `json:"timeout"`
	VerifyTLS            bool              `json:"verify_tls"`
	RetryStrategy        retryStrategyDTO  `json:"retry_strategy"`
	WorkflowID           string            `json:"workflow_id,omitempty"`
	Status               string            `json:"status"`
	Secret               string            `json:"secret,omitempty"`
	SignatureHeader      string            `json:"signature_header"`
	TotalDeliveries      int64             `json:"total_deliveries"`
	SuccessfulDeliveries int64             `json:"successful_deliveries"`
	FailedDeliveries     int64             `json:"failed_deliveries"`
	TotalAttempts        int64             `json:"total_attempts"`
	LastTriggered        *time.Time        `json:"last_triggered,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

type triggerRequest struct {
	Payload map[string]any    `json:"payload"`
	Headers map[string]string `json:"headers"`
}

type triggerResponse struct {
	DeliveryID string `json:"delivery_id"`
	WebhookID  string `json:"webhook_id"`
	Status     string `json:"status"`
}

type verifyRequest struct {
	Payload   map[string]any `json:"payload"`
	Signature string         `json:"signature"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

// postWebhook handles POST /v1/webhooks
func postWebhook(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req webhookRequest
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		if req.Name == "" || req.URL == "" {
			http.Error(w, "name and url are required", http.StatusBadRequest)
			return
		}

		cfg := req.apply(webhook.DefaultConfig(req.URL))
		wh, err := webhookService.Register(r.Context(), req.Name, cfg, req.WorkflowID, r.Header.Get(userHeader))
		if err != nil {
			writeError(w, err)
			return
		}

		// The secret is only ever returned on creation
		resp := toWebhookResponse(wh)
		resp.Secret = wh.Secret.Key
		writeJSON(w, http.StatusCreated, resp)
	})
}

// getWebhooks handles GET /v1/webhooks
func getWebhooks(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := webhook.ListFilter{WorkflowID: r.URL.Query().Get("workflow_id")}
		if s := r.URL.Query().Get("status"); s != "" {
			status, err := webhook.NewStatus(s)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			filter.Status = status
		}

		all, err := webhookService.List(r.Context(), r.Header.Get(userHeader), filter)
		if err != nil {
			writeError(w, err)
			return
		}

		result := make([]webhookResponse, 0, len(all))
		for _, wh := range all {
			result = append(result, toWebhookResponse(wh))
		}
		writeJSON(w, http.StatusOK, result)
	})
}

// getWebhook handles GET /v1/webhooks/{id}
func getWebhook(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wh, ok := ownedWebhook(w, r, webhookService)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toWebhookResponse(wh))
	})
}

// putWebhook handles PUT /v1/webhooks/{id}. Config fields and status are both optional.
func putWebhook(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wh, ok := ownedWebhook(w, r, webhookService)
		if !ok {
			return
		}

		var req webhookRequest
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		if req.hasConfig() {
			base := wh.Config
			if req.URL != "" {
				base.URL = req.URL
			}
			updated, err := webhookService.UpdateConfig(ctx, wh.ID, req.apply(base))
			if err != nil {
				writeError(w, err)
				return
			}
			wh = updated
		}

		if req.Status != "" {
			status, err := webhook.NewStatus(req.Status)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			switch status {
			case webhook.Active:
				err = webhookService.Activate(ctx, wh.ID)
			case webhook.Inactive:
				err = webhookService.Deactivate(ctx, wh.ID)
			default:
				http.Error(w, "status can only be set to active or inactive", http.StatusBadRequest)
				return
			}
			if err != nil {
				writeError(w, err)
				return
			}
			wh.Status = status
		}

		writeJSON(w, http.StatusOK, toWebhookResponse(wh))
	})
}

// deleteWebhook handles DELETE /v1/webhooks/{id}
func deleteWebhook(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wh, ok := ownedWebhook(w, r, webhookService)
		if !ok {
			return
		}
		if err := webhookService.Delete(r.Context(), wh.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// triggerWebhook handles POST /v1/webhooks/{id}/trigger
func triggerWebhook(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wh, ok := ownedWebhook(w, r, webhookService)
		if !ok {
			return
		}

		var req triggerRequest
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		if req.Payload == nil {
			http.Error(w, "payload must be a JSON object", http.StatusBadRequest)
			return
		}

		deliveryID, err := webhookService.Trigger(r.Context(), wh.ID, req.Payload, req.Headers)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, triggerResponse{
			DeliveryID: deliveryID,
			WebhookID:  wh.ID,
			Status:     webhook.DeliveryPending.String(),
		})
	})
}

// getWebhookDeliveries handles GET /v1/webhooks/{id}/deliveries
func getWebhookDeliveries(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wh, ok := ownedWebhook(w, r, webhookService)
		if !ok {
			return
		}

		q := r.URL.Query()
		var filter webhook.DeliveryFilter
		if s := q.Get("status"); s != "" {
			status, err := webhook.NewDeliveryStatus(s)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			filter.Status = status
		}
		var err error
		if filter.Limit, err = intParam(q.Get("limit")); err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		if filter.Offset, err = intParam(q.Get("offset")); err != nil {
			http.Error(w, "offset must be an integer", http.StatusBadRequest)
			return
		}

		deliveries, err := webhookService.ListDeliveries(r.Context(), wh.ID, filter)
		if err != nil {
			writeError(w, err)
			return
		}

		result := make([]deliveryResponse, 0, len(deliveries))
		for _, d := range deliveries {
			result = append(result, toDeliveryResponse(d))
		}
		writeJSON(w, http.StatusOK, result)
	})
}

// verifyWebhook handles POST /v1/webhooks/{id}/verify
func verifyWebhook(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wh, ok := ownedWebhook(w, r, webhookService)
		if !ok {
			return
		}

		var req verifyRequest
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		if req.Payload == nil || req.Signature == "" {
			http.Error(w, "payload and signature are required", http.StatusBadRequest)
			return
		}

		valid, err := webhookService.VerifyWebhook(r.Context(), wh.ID, req.Payload, req.Signature)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, verifyResponse{Valid: valid})
	})
}

// getWebhookHealth handles GET /v1/webhooks/{id}/health
func getWebhookHealth(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wh, ok := ownedWebhook(w, r, webhookService)
		if !ok {
			return
		}

		health, err := webhookService.GetWebhookHealth(r.Context(), wh.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, health)
	})
}

// Helper functions

// ownedWebhook loads the {id} webhook and hides webhooks of other users
func ownedWebhook(w http.ResponseWriter, r *http.Request, webhookService webhook.UseCase) (webhook.Webhook, bool) {
	id := chi.URLParam(r, "id")
	wh, err := webhookService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return webhook.Webhook{}, false
	}
	if wh.UserID != r.Header.Get(userHeader) {
		http.Error(w, fmt.Sprintf("webhook not found: %s", id), http.StatusNotFound)
		return webhook.Webhook{}, false
	}
	return wh, true
}

func (req webhookRequest) hasConfig() bool {
	return req.URL != "" || req.Method != "" || req.Headers != nil ||
		req.Timeout != 0 || req.VerifyTLS != nil || req.RetryStrategy != nil
}

// apply overlays the fields set in req on cfg
func (req webhookRequest) apply(cfg webhook.Config) webhook.Config {
	if req.Method != "" {
		cfg.Method = req.Method
	}
	if req.Headers != nil {
		cfg.Headers = req.Headers
	}
	if req.Timeout != 0 {
		cfg.Timeout = time.Duration(req.Timeout) * time.Second
	}
	if req.VerifyTLS != nil {
		cfg.VerifyTLS = *req.VerifyTLS
	}
	if rs := req.RetryStrategy; rs != nil {
		cfg.RetryStrategy = webhook.RetryStrategy{
			MaxRetries:      rs.MaxRetries,
			InitialInterval: time.Duration(rs.InitialInterval) * time.Second,
			Multiplier:      rs.Multiplier,
			MaxInterval:     time.Duration(rs.MaxInterval) * time.Second,
		}
	}
	return cfg
}

func toWebhookResponse(wh webhook.Webhook) webhookResponse {
	rs := wh.Config.RetryStrategy
	return webhookResponse{
		ID:      wh.ID,
		Name:    wh.Name,
		URL:     wh.Config.URL,
		Method:  wh.Config.Method,
		Headers: wh.Config.Headers,
		Timeout: int(wh.Config.Timeout.Seconds()),
		RetryStrategy: retryStrategyDTO{
			MaxRetries:      rs.MaxRetries,
			InitialInterval: int(rs.InitialInterval.Seconds()),
			Multiplier:      rs.Multiplier,
			MaxInterval:     int(rs.MaxInterval.Seconds()),
		},
		VerifyTLS:            wh.Config.VerifyTLS,
		WorkflowID:           wh.WorkflowID,
		Status:               wh.Status.String(),
		SignatureHeader:      wh.Secret.HeaderName,
		TotalDeliveries:      wh.TotalDeliveries,
		SuccessfulDeliveries: wh.SuccessfulDeliveries,
		FailedDeliveries:     wh.FailedDeliveries,
		TotalAttempts:        wh.TotalAttempts,
		LastTriggered:        wh.LastTriggered,
		CreatedAt:            wh.CreatedAt,
		UpdatedAt:            wh.UpdatedAt,
	}
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
