package chi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type taskResponse struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Queue     string         `json:"queue"`
	Status    string         `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	RunAt     *time.Time     `json:"run_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// getTask handles GET /v1/tasks/{id}
func getTask(tasks TaskReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, err := tasks.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, taskResponse{
			ID:        t.ID,
			Kind:      t.Kind,
			Queue:     t.QueueType.String(),
			Status:    t.Status.String(),
			Result:    t.Result,
			Error:     t.Error,
			RunAt:     t.RunAt,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		})
	})
}
