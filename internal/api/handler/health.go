package handler

import (
	"context"
	"net/http"

	"github.com/Rrens/omnichannel-session/internal/api/response"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports the number of cached sessions
type SessionCounter interface {
	Count() int
}

// HealthCheck returns a simple health check response
func HealthCheck(sessions SessionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]any{
			"status":   "ok",
			"sessions": sessions.Count(),
		})
	}
}

// ReadyCheck returns readiness status including database and redis connectivity.
// Nil dependencies are skipped.
func ReadyCheck(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(r.Context()); err != nil {
				response.Error(w, http.StatusServiceUnavailable, name+" not ready")
				return
			}
		}

		response.OK(w, map[string]string{
			"status": "ready",
		})
	}
}
