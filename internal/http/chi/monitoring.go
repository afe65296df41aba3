package chi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/marcelsud/flowrelay/monitoring"
)

// getCurrentMetrics handles GET /v1/monitoring/webhooks/current
func getCurrentMetrics(monitor monitoring.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m, err := monitor.Current(r.Context(), r.URL.Query().Get("webhook_id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	})
}

// getPeriodMetrics handles GET /v1/monitoring/webhooks/period?period=day&start=&end=
func getPeriodMetrics(monitor monitoring.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		name := q.Get("period")
		if name == "" {
			name = monitoring.Day.String()
		}
		period, err := monitoring.NewPeriod(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		start, err := timeParam(q.Get("start"))
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid start: %v", err), http.StatusBadRequest)
			return
		}
		end, err := timeParam(q.Get("end"))
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid end: %v", err), http.StatusBadRequest)
			return
		}

		m, err := monitor.ByPeriod(r.Context(), period, q.Get("webhook_id"), start, end)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	})
}

func timeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
