package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	mw "github.com/crosscast-io/crosscast/internal/api/middleware"
	"github.com/crosscast-io/crosscast/internal/api/response"
	"github.com/crosscast-io/crosscast/internal/publish"
	"github.com/crosscast-io/crosscast/pkg/models"
)

// JobCreator defines the interface the publish handler depends on.
type JobCreator interface {
	CreateJob(ctx context.Context, params publish.CreateJobParams) (*models.Job, error)
}

// NewPublishHandler returns an http.HandlerFunc for POST /api/v1/publish.
// The job is accepted and persisted; publishing itself is asynchronous.
func NewPublishHandler(svc JobCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			Title       string   `json:"title"`
			Description string   `json:"description"`
			MediaRef    string   `json:"media_ref"`
			Platforms   []string `json:"platforms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Title == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "title is required", nil)
			return
		}
		if len(req.Platforms) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "at least one platform is required", nil)
			return
		}

		platforms := make([]models.Platform, 0, len(req.Platforms))
		for _, name := range req.Platforms {
			p, err := models.ParsePlatform(name)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			platforms = append(platforms, p)
		}

		job, err := svc.CreateJob(r.Context(), publish.CreateJobParams{
			UserID:      userID,
			Title:       req.Title,
			Description: req.Description,
			MediaRef:    req.MediaRef,
			Platforms:   platforms,
		})
		if err != nil {
			if errors.Is(err, publish.ErrValidation) {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Accepted(w, publishResponse{
			JobID:  job.ID.String(),
			Status: publish.Aggregate(job.Tasks),
		})
	}
}

type publishResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}
