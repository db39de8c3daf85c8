package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	mw "github.com/crosscast-io/crosscast/internal/api/middleware"
	"github.com/crosscast-io/crosscast/internal/api/response"
	"github.com/crosscast-io/crosscast/pkg/models"
)

// JobLister defines the interface the jobs handler depends on.
type JobLister interface {
	UserJobs(ctx context.Context, userID uuid.UUID) ([]*models.JobStatusView, error)
}

// ActiveCounter defines the interface the active-jobs handler depends on.
type ActiveCounter interface {
	ActiveJobsCount(ctx context.Context) (int, error)
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/publishing/jobs.
func NewListJobsHandler(svc JobLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		views, err := svc.UserJobs(r.Context(), userID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}
		if views == nil {
			views = []*models.JobStatusView{}
		}

		response.JSON(w, views)
	}
}

// NewActiveJobsHandler returns an http.HandlerFunc for GET /api/v1/publishing/active.
func NewActiveJobsHandler(svc ActiveCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := svc.ActiveJobsCount(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, activeJobsResponse{ActiveJobs: count})
	}
}

type activeJobsResponse struct {
	ActiveJobs int `json:"active_jobs"`
}
