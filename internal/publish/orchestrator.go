package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crosscast-io/crosscast/internal/cache"
	"github.com/crosscast-io/crosscast/internal/creds"
	"github.com/crosscast-io/crosscast/internal/store"
	"github.com/crosscast-io/crosscast/pkg/models"
)

// CreateJobParams holds a validated publish request.
type CreateJobParams struct {
	UserID      uuid.UUID
	Title       string
	Description string
	MediaRef    string
	Platforms   []models.Platform
}

// Orchestrator owns the publishing job lifecycle: creation, fan-out to the
// scheduler, retries, and status reads. It holds no job state of its own;
// the store is the single source of truth.
type Orchestrator struct {
	store       store.Store
	creds       creds.Source
	dispatcher  Dispatcher
	cache       cache.Cache
	maxAttempts int
	cacheTTL    time.Duration
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(s store.Store, cs creds.Source, d Dispatcher, ca cache.Cache, maxAttempts int, cacheTTL time.Duration) *Orchestrator {
	return &Orchestrator{
		store:       s,
		creds:       cs,
		dispatcher:  d,
		cache:       ca,
		maxAttempts: maxAttempts,
		cacheTTL:    cacheTTL,
	}
}

// CreateJob validates the request, persists the job with one task per target
// platform, and hands pending tasks to the scheduler. It returns as soon as
// the job is durable; no platform work has necessarily started.
//
// A platform the user never connected does not block the rest of the job:
// its task is created already failed with a permanent error.
func (o *Orchestrator) CreateJob(ctx context.Context, params CreateJobParams) (*models.Job, error) {
	if len(params.Platforms) == 0 {
		return nil, fmt.Errorf("%w: at least one platform is required", ErrValidation)
	}
	if params.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	seen := make(map[models.Platform]bool, len(params.Platforms))
	for _, p := range params.Platforms {
		if seen[p] {
			return nil, fmt.Errorf("%w: duplicate platform %q", ErrValidation, p)
		}
		seen[p] = true
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		UserID:      params.UserID,
		Title:       params.Title,
		Description: params.Description,
		MediaRef:    params.MediaRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for i, p := range params.Platforms {
		task := &models.PlatformTask{
			JobID:       job.ID,
			Platform:    p,
			Status:      models.TaskStatusPending,
			MaxAttempts: o.maxAttempts,
			Position:    i,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if _, err := o.creds.Credential(ctx, params.UserID, p); err != nil {
			if errors.Is(err, creds.ErrNotConnected) {
				msg := err.Error()
				kind := models.ErrorKindPermanent
				task.Status = models.TaskStatusFailed
				task.LastError = &msg
				task.ErrorKind = &kind
			}
			// Any other credential error is left for the attempt to surface;
			// the task stays pending.
		}

		job.Tasks = append(job.Tasks, task)
	}

	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persisting job: %w", err)
	}

	if err := o.cache.SetJobStatus(ctx, job.ID, Aggregate(job.Tasks), o.cacheTTL); err != nil {
		slog.Debug("caching job status failed", "job_id", job.ID, "error", err)
	}

	for _, t := range job.Tasks {
		if t.Status != models.TaskStatusPending {
			continue
		}
		if err := o.dispatcher.Dispatch(job.ID, t.Platform); err != nil {
			// The task is durably pending; the scheduler sweep picks it up.
			slog.Warn("dispatch deferred", "job_id", job.ID, "platform", t.Platform, "error", err)
		}
	}

	slog.Info("publishing job created", "job_id", job.ID, "user_id", job.UserID, "platforms", len(job.Tasks))
	return job, nil
}

// RetryJob resets every failed task with attempts remaining back to pending
// and re-dispatches it. Only the job owner may retry. Concurrent retries are
// safe: the per-task reset is a compare-and-set, so each eligible task is
// re-queued by exactly one caller and reported as skipped to the others.
func (o *Orchestrator) RetryJob(ctx context.Context, jobID, userID uuid.UUID) (*models.RetryOutcome, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrForbidden
	}

	var eligible []models.Platform
	for _, t := range job.Tasks {
		if t.Retryable() {
			eligible = append(eligible, t.Platform)
		}
	}
	if len(eligible) == 0 {
		return nil, ErrNothingToRetry
	}

	outcome := &models.RetryOutcome{JobID: jobID, RetriedAt: time.Now().UTC()}
	for _, p := range eligible {
		if err := o.store.RequeueFailedTask(ctx, jobID, p); err != nil {
			if errors.Is(err, store.ErrStaleUpdate) {
				// Another retry path already claimed this task.
				outcome.Skipped = append(outcome.Skipped, p)
				continue
			}
			return nil, fmt.Errorf("resetting task %s: %w", p, err)
		}
		outcome.Requeued = append(outcome.Requeued, p)

		if err := o.dispatcher.Dispatch(jobID, p); err != nil {
			slog.Warn("retry dispatch deferred", "job_id", jobID, "platform", p, "error", err)
		}
	}

	if len(outcome.Requeued) == 0 {
		return nil, ErrNothingToRetry
	}

	slog.Info("job retried", "job_id", jobID, "requeued", len(outcome.Requeued), "skipped", len(outcome.Skipped))
	return outcome, nil
}

// JobStatus returns the status view for one job, computed from the store.
// The cached aggregate is refreshed as a side effect.
func (o *Orchestrator) JobStatus(ctx context.Context, jobID uuid.UUID) (*models.JobStatusView, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	view := StatusView(job)
	if err := o.cache.SetJobStatus(ctx, jobID, view.Status, o.cacheTTL); err != nil {
		slog.Debug("caching job status failed", "job_id", jobID, "error", err)
	}
	return view, nil
}

// AggregateStatus returns just the aggregate status string, serving from the
// cache when possible. Used for lightweight snapshots on the push channel.
func (o *Orchestrator) AggregateStatus(ctx context.Context, jobID uuid.UUID) (string, error) {
	if status, ok, err := o.cache.GetJobStatus(ctx, jobID); err == nil && ok {
		return status, nil
	}

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	agg := Aggregate(job.Tasks)
	if err := o.cache.SetJobStatus(ctx, jobID, agg, o.cacheTTL); err != nil {
		slog.Debug("caching job status failed", "job_id", jobID, "error", err)
	}
	return agg, nil
}

// UserJobs lists the caller's jobs, newest first.
func (o *Orchestrator) UserJobs(ctx context.Context, userID uuid.UUID) ([]*models.JobStatusView, error) {
	jobs, err := o.store.ListJobs(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]*models.JobStatusView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, StatusView(j))
	}
	return views, nil
}

// ActiveJobsCount counts jobs that still have work outstanding. Computed
// from the store on every call rather than kept as a counter that can drift.
func (o *Orchestrator) ActiveJobsCount(ctx context.Context) (int, error) {
	return o.store.CountActiveJobs(ctx)
}
