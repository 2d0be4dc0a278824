// Package health exposes the readiness probe and the service index.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/aanand-mishra/student-records/internal/utils/response"
)

// Pinger is implemented by storage.Storage and filestore.FileStore.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	ComponentUp   = "up"
	ComponentDown = "down"
)

// Health is the /health response body.
type Health struct {
	Status     string               `json:"status"`
	Timestamp  time.Time            `json:"timestamp"`
	Version    string               `json:"version,omitempty"`
	Components map[string]Component `json:"components"`
}

// Component is the state of one dependency.
type Component struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
}

// New handles GET /health. Every component is pinged with timeout; the
// response is 503 if any of them is down.
func New(version string, timeout time.Duration, components map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		h := Health{
			Status:     StatusHealthy,
			Timestamp:  time.Now().UTC(),
			Version:    version,
			Components: make(map[string]Component, len(names)),
		}

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			start := time.Now()
			err := components[name].Ping(ctx)
			cancel()

			c := Component{
				Status:    ComponentUp,
				LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
			}
			if err != nil {
				c.Status = ComponentDown
				c.Message = err.Error()
				h.Status = StatusUnhealthy
				slog.Warn("health check failed", slog.String("component", name), slog.String("error", err.Error()))
			}
			h.Components[name] = c
		}

		status := http.StatusOK
		if h.Status != StatusHealthy {
			status = http.StatusServiceUnavailable
		}
		response.WriteJSON(w, status, h)
	}
}

// Index handles GET / with a short description of the API.
func Index(version, staticPrefix string) http.HandlerFunc {
	body := map[string]any{
		"service": "student-records",
		"version": version,
		"endpoints": map[string]string{
			"create_student": "POST /api/students",
			"list_students":  "GET /api/students",
			"get_student":    "GET /api/students/{id}",
			"update_student": "PUT|PATCH /api/students/{id}",
			"delete_student": "DELETE /api/students/{id}",
			"photos":         "GET " + staticPrefix + "{path}",
			"health":         "GET /health",
			"metrics":        "GET /metrics",
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusOK, body)
	}
}
