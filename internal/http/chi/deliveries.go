package chi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/flowrelay/webhook"
)

type responseDTO struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

type deliveryResponse struct {
	ID          string            `json:"id"`
	WebhookID   string            `json:"webhook_id"`
	Payload     map[string]any    `json:"payload"`
	Headers     map[string]string `json:"headers"`
	Status      string            `json:"status"`
	Attempts    int               `json:"attempts"`
	NextRetry   *time.Time        `json:"next_retry,omitempty"`
	Response    *responseDTO      `json:"response,omitempty"`
	Error       string            `json:"error,omitempty"`
	ErrorType   string            `json:"error_type,omitempty"`
	DurationMS  int64             `json:"duration_ms"`
	RetryOf     string            `json:"retry_of,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// getDelivery handles GET /v1/deliveries/{id}
func getDelivery(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, ok := ownedDelivery(w, r, webhookService)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toDeliveryResponse(d))
	})
}

// retryDelivery handles POST /v1/deliveries/{id}/retry
func retryDelivery(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, ok := ownedDelivery(w, r, webhookService)
		if !ok {
			return
		}

		newID, err := webhookService.RetryDelivery(r.Context(), d.ID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, triggerResponse{
			DeliveryID: newID,
			WebhookID:  d.WebhookID,
			Status:     webhook.DeliveryPending.String(),
		})
	})
}

// Helper functions

func ownedDelivery(w http.ResponseWriter, r *http.Request, webhookService webhook.UseCase) (webhook.Delivery, bool) {
	id := chi.URLParam(r, "id")
	d, err := webhookService.GetDelivery(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return webhook.Delivery{}, false
	}

	wh, err := webhookService.Get(r.Context(), d.WebhookID)
	if err != nil || wh.UserID != r.Header.Get(userHeader) {
		http.Error(w, fmt.Sprintf("delivery not found: %s", id), http.StatusNotFound)
		return webhook.Delivery{}, false
	}
	return d, true
}

func toDeliveryResponse(d webhook.Delivery) deliveryResponse {
	resp := deliveryResponse{
		ID:          d.ID,
		WebhookID:   d.WebhookID,
		Payload:     d.Payload,
		Headers:     d.Headers,
		Status:      d.Status.String(),
		Attempts:    d.Attempts,
		NextRetry:   d.NextRetry,
		Error:       d.Error,
		ErrorType:   d.ErrorType,
		DurationMS:  d.DurationMS,
		RetryOf:     d.RetryOf,
		CreatedAt:   d.CreatedAt,
		CompletedAt: d.CompletedAt,
	}
	if d.Response != nil {
		resp.Response = &responseDTO{
			StatusCode: d.Response.StatusCode,
			Headers:    d.Response.Headers,
			Body:       d.Response.Body,
		}
	}
	return resp
}
