package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/marcelsud/flowrelay/ratelimit"
)

/* PlanStore reads the usage ledger and manages stored user plans */
type PlanStore interface {
	Usage(ctx context.Context, day time.Time) (ratelimit.Usage, error)
	UserPlan(ctx context.Context, userID string) (string, error)
	SetUserPlan(ctx context.Context, userID, plan string) error
}

type usageResponse struct {
	Day     string           `json:"day"`
	Plan    string           `json:"plan"`
	Actions map[string]int64 `json:"actions"`
}

type planRequest struct {
	Plan string `json:"plan"`
}

// getUsage handles GET /v1/usage?day=2006-01-02 for the calling user
func getUsage(plans PlanStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		day, err := dayParam(r.URL.Query().Get("day"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		userID := r.Header.Get(userHeader)

		usage, err := plans.Usage(r.Context(), day)
		if err != nil {
			writeError(w, err)
			return
		}
		plan, err := plans.UserPlan(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}

		actions := usage.Users[userID]
		if actions == nil {
			actions = map[string]int64{}
		}
		writeJSON(w, http.StatusOK, usageResponse{
			Day:     usage.Day,
			Plan:    plan,
			Actions: actions,
		})
	})
}

// putPlan handles PUT /v1/plan, storing the plan used when no plan header is sent
func putPlan(plans PlanStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req planRequest
		if err := decodeJSON(r, &req); err != nil || req.Plan == "" {
			http.Error(w, "plan is required", http.StatusBadRequest)
			return
		}

		if err := plans.SetUserPlan(r.Context(), r.Header.Get(userHeader), req.Plan); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, planRequest{Plan: req.Plan})
	})
}
