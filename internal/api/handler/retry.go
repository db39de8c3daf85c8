package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/crosscast-io/crosscast/internal/api/middleware"
	"github.com/crosscast-io/crosscast/internal/api/response"
	"github.com/crosscast-io/crosscast/internal/publish"
	"github.com/crosscast-io/crosscast/internal/store"
	"github.com/crosscast-io/crosscast/pkg/models"
)

// JobRetrier defines the interface the retry handler depends on.
type JobRetrier interface {
	RetryJob(ctx context.Context, jobID, userID uuid.UUID) (*models.RetryOutcome, error)
}

// NewRetryHandler returns an http.HandlerFunc for
// POST /api/v1/publishing/retry/{jobID}.
func NewRetryHandler(svc JobRetrier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		outcome, err := svc.RetryJob(r.Context(), jobID, userID)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			case errors.Is(err, publish.ErrForbidden):
				response.Error(w, http.StatusForbidden, "FORBIDDEN",
					"Only the job owner may retry it", nil)
			case errors.Is(err, publish.ErrNothingToRetry):
				response.Error(w, http.StatusConflict, "NOTHING_TO_RETRY",
					"No failed task is eligible for retry", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.JSON(w, outcome)
	}
}
