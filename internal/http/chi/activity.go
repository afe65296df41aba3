package chi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/marcelsud/flowrelay/activity"
)

/* ActivityReader is the read side of the activity tracker */
type ActivityReader interface {
	Recent(ctx context.Context, userID string, limit int, activityType string) ([]activity.Activity, error)
	Counts(ctx context.Context, day time.Time) (map[string]int64, error)
}

// getActivity handles GET /v1/activity?limit=&type=
// Callers only ever see their own feed.
func getActivity(tracker ActivityReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := activity.DefaultLimit
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		activities, err := tracker.Recent(r.Context(), r.Header.Get(userHeader), limit, q.Get("type"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, activities)
	})
}

// getActivityCounts handles GET /v1/activity/counts?day=2006-01-02
func getActivityCounts(tracker ActivityReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		day, err := dayParam(r.URL.Query().Get("day"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		counts, err := tracker.Counts(r.Context(), day)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"day":    day.Format(time.DateOnly),
			"counts": counts,
		})
	})
}

// dayParam parses a YYYY-MM-DD day, today (UTC) when empty
func dayParam(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	day, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day: %v", err)
	}
	return day, nil
}
