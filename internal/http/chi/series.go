package chi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/flowrelay/metrics"
)

// getSeries handles GET /v1/metrics/{name}?start=&end=&tag=key:value
func getSeries(reader metrics.Reader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, err := seriesQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		points, err := reader.GetMetrics(r.Context(), q)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"name":   q.Name,
			"points": points,
		})
	})
}

// getHistogram handles GET /v1/metrics/{name}/histogram
func getHistogram(reader metrics.Reader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, err := seriesQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		buckets, err := reader.GetHistogram(r.Context(), q)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"name":    q.Name,
			"buckets": buckets,
		})
	})
}

func seriesQuery(r *http.Request) (metrics.Query, error) {
	params := r.URL.Query()

	start, err := timeParam(params.Get("start"))
	if err != nil {
		return metrics.Query{}, fmt.Errorf("invalid start: %v", err)
	}
	end, err := timeParam(params.Get("end"))
	if err != nil {
		return metrics.Query{}, fmt.Errorf("invalid end: %v", err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return metrics.Query{}, fmt.Errorf("end is before start")
	}

	var tags map[string]string
	for _, tag := range params["tag"] {
		k, v, ok := strings.Cut(tag, ":")
		if !ok || k == "" {
			return metrics.Query{}, fmt.Errorf("invalid tag %q, want key:value", tag)
		}
		if tags == nil {
			tags = make(map[string]string)
		}
		tags[k] = v
	}

	return metrics.Query{
		Name:  chi.URLParam(r, "name"),
		Tags:  tags,
		Start: start,
		End:   end,
	}, nil
}
