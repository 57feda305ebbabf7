package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/predictgate/internal/api/response"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is an optional dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck names one dependency.
type HealthCheck struct {
	Name   string
	Pinger Pinger
}

type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// NewHealthHandler returns an http.HandlerFunc for GET /health. Checks with a
// nil Pinger are reported as "disabled".
func NewHealthHandler(checks ...HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		services := make(map[string]string, len(checks))
		degraded := false
		for _, c := range checks {
			switch {
			case c.Pinger == nil:
				services[c.Name] = "disabled"
			case c.Pinger.Ping(ctx) != nil:
				services[c.Name] = "degraded"
				degraded = true
			default:
				services[c.Name] = "ok"
			}
		}

		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services are unavailable", services)
			return
		}
		response.JSON(w, healthResponse{Status: "ok", Services: services})
	}
}
