package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// report is the aggregate health document.
type report struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]Result `json:"checks"`
}

// Handler serves the aggregate result of the given checkers. A failing
// check yields 503.
func Handler(checkers ...Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		rep := report{Healthy: true, Checks: make(map[string]Result, len(checkers))}
		for _, c := range checkers {
			result := c.Check(ctx)
			rep.Checks[c.Name()] = result
			if !result.Healthy {
				rep.Healthy = false
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !rep.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(rep)
	}
}
