package handler

import (
	"net/http"

	"github.com/crosscast-io/crosscast/internal/api/response"
	"github.com/crosscast-io/crosscast/internal/cache"
	"github.com/crosscast-io/crosscast/internal/store"
)

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
// Reports degraded when a backing service is unreachable.
func NewHealthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"redis":    "ok",
		}
		status := "ok"
		httpStatus := http.StatusOK

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "unreachable"
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["redis"] = "unreachable"
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}

		if httpStatus == http.StatusOK {
			response.JSON(w, healthResponse{Status: status, Checks: checks})
			return
		}
		response.Error(w, httpStatus, "DEGRADED", "One or more backing services are unreachable", checks)
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
