package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marcelsud/flowrelay/ratelimit"
	"github.com/marcelsud/flowrelay/task"
	"github.com/marcelsud/flowrelay/webhook"
	"github.com/marcelsud/flowrelay/workflow"
)

type errorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// writeError maps domain errors to HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, webhook.ErrWebhookNotFound),
		errors.Is(err, webhook.ErrDeliveryNotFound),
		errors.Is(err, task.ErrTaskNotFound),
		errors.Is(err, workflow.ErrStateNotFound),
		errors.Is(err, workflow.ErrCacheMiss):
		status = http.StatusNotFound
	case errors.Is(err, webhook.ErrInvalidConfig),
		errors.Is(err, webhook.ErrInvalidPayload),
		errors.Is(err, ratelimit.ErrUnknownPlan):
		status = http.StatusBadRequest
	case errors.Is(err, webhook.ErrWebhookNotActive),
		errors.Is(err, webhook.ErrDeliveryNotFailed):
		status = http.StatusConflict
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		status = http.StatusTooManyRequests
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}
