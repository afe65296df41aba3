package chi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

/* WorkflowStates is the read side of the workflow state manager */
type WorkflowStates interface {
	Get(ctx context.Context, workflowID string) (map[string]any, error)
	History(ctx context.Context, workflowID string, limit int) ([]map[string]any, error)
}

/* ResultCache keeps the last execution result of each workflow */
type ResultCache interface {
	Put(ctx context.Context, workflowID string, result map[string]any, ttl time.Duration) (int64, error)
	Get(ctx context.Context, workflowID string, checkVersion bool) (map[string]any, error)
	Invalidate(ctx context.Context, workflowID string) error
}

type putResultRequest struct {
	Result     map[string]any `json:"result"`
	TTLSeconds int            `json:"ttl_seconds"`
}

// getWorkflowState handles GET /v1/workflows/{id}/state
func getWorkflowState(states WorkflowStates) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, err := states.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	})
}

// getWorkflowHistory handles GET /v1/workflows/{id}/history?limit=
func getWorkflowHistory(states WorkflowStates) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		history, err := states.History(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
	})
}

// getWorkflowResult handles GET /v1/workflows/{id}/result?fresh=true
func getWorkflowResult(cache ResultCache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fresh := r.URL.Query().Get("fresh") == "true"

		result, err := cache.Get(r.Context(), chi.URLParam(r, "id"), fresh)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})
}

// putWorkflowResult handles PUT /v1/workflows/{id}/result
func putWorkflowResult(cache ResultCache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req putResultRequest
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Result == nil || req.TTLSeconds < 0 {
			http.Error(w, "result is required and ttl_seconds must be >= 0", http.StatusBadRequest)
			return
		}

		version, err := cache.Put(r.Context(), chi.URLParam(r, "id"), req.Result, time.Duration(req.TTLSeconds)*time.Second)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"version": version})
	})
}

// deleteWorkflowResult handles DELETE /v1/workflows/{id}/result
func deleteWorkflowResult(cache ResultCache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := cache.Invalidate(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
