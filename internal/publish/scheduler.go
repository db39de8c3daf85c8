package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crosscast-io/crosscast/internal/cache"
	"github.com/crosscast-io/crosscast/internal/config"
	"github.com/crosscast-io/crosscast/internal/creds"
	"github.com/crosscast-io/crosscast/internal/platform"
	"github.com/crosscast-io/crosscast/internal/store"
	"github.com/crosscast-io/crosscast/pkg/models"
)

// Dispatcher enqueues one platform task for execution. The orchestrator
// depends on this interface so tests can substitute the scheduler.
type Dispatcher interface {
	Dispatch(jobID uuid.UUID, p models.Platform) error
}

type unit struct {
	jobID    uuid.UUID
	platform models.Platform
}

// Scheduler runs platform tasks on a fixed worker pool per platform with a
// bounded queue each, plus a global in-flight cap. At most one attempt per
// (job, platform) is ever in flight: the pending -> in_flight compare-and-set
// in the store is the gate, so a duplicate dispatch of the same task is a
// cheap no-op.
type Scheduler struct {
	store    store.Store
	registry *platform.Registry
	creds    creds.Source
	cache    cache.Cache
	notifier Notifier
	cfg      config.PublisherConfig
	backoff  Backoff

	queues    map[models.Platform]chan unit
	globalSem chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler for every platform in the registry.
// Call Start before dispatching and Shutdown on the way out.
func NewScheduler(s store.Store, reg *platform.Registry, cs creds.Source, ca cache.Cache, n Notifier, cfg config.PublisherConfig) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	queues := make(map[models.Platform]chan unit)
	for _, p := range reg.Platforms() {
		queues[p] = make(chan unit, cfg.QueueSize)
	}

	return &Scheduler{
		store:     s,
		registry:  reg,
		creds:     cs,
		cache:     ca,
		notifier:  n,
		cfg:       cfg,
		backoff:   Backoff{Base: cfg.BackoffBase, Cap: cfg.BackoffCap},
		queues:    queues,
		globalSem: make(chan struct{}, cfg.GlobalInFlight),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the worker pools and the pending-task sweep.
func (s *Scheduler) Start() {
	for p, q := range s.queues {
		for i := 0; i < s.cfg.WorkersPerPlatform; i++ {
			s.wg.Add(1)
			go s.worker(p, q)
		}
	}

	s.wg.Add(1)
	go s.sweepLoop()

	slog.Info("scheduler started",
		"platforms", len(s.queues),
		"workers_per_platform", s.cfg.WorkersPerPlatform,
		"queue_size", s.cfg.QueueSize,
		"global_inflight", s.cfg.GlobalInFlight,
	)
}

// Shutdown stops accepting work and waits for in-flight attempts to finish,
// up to the context deadline. Platform calls are never cancelled mid-request;
// aborting a publish leaves the platform-side outcome ambiguous.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

// Dispatch enqueues one task for its platform pool. Returns ErrSchedulerBusy
// when the bounded queue is full; the task stays pending in the store and the
// sweep will re-dispatch it.
func (s *Scheduler) Dispatch(jobID uuid.UUID, p models.Platform) error {
	q, ok := s.queues[p]
	if !ok {
		return fmt.Errorf("no worker pool for platform %q", p)
	}

	select {
	case <-s.ctx.Done():
		return ErrSchedulerBusy
	case q <- unit{jobID: jobID, platform: p}:
		return nil
	default:
		return ErrSchedulerBusy
	}
}

func (s *Scheduler) worker(p models.Platform, q chan unit) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case u := <-q:
			select {
			case <-s.ctx.Done():
				return
			case s.globalSem <- struct{}{}:
				s.execute(u)
				<-s.globalSem
			}
		}
	}
}

// execute runs one publish attempt. It deliberately uses a background
// context: once an attempt has claimed its task, it runs to completion even
// during shutdown.
func (s *Scheduler) execute(u unit) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in publish attempt", "error", r, "job_id", u.jobID, "platform", u.platform)
			if err := s.store.MarkTaskFailed(ctx, u.jobID, u.platform,
				fmt.Sprintf("panic: %v", r), models.ErrorKindTransient); err == nil {
				s.publishTransition(ctx, u, models.TaskStatusFailed)
			}
		}
	}()

	task, err := s.store.MarkTaskInFlight(ctx, u.jobID, u.platform)
	if err != nil {
		// A stale claim means the task was already claimed, settled, or
		// exhausted by another path. Normal under duplicate dispatch.
		if errors.Is(err, store.ErrStaleUpdate) || errors.Is(err, store.ErrNotFound) {
			slog.Debug("skipping stale dispatch", "job_id", u.jobID, "platform", u.platform, "error", err)
			return
		}
		slog.Error("claiming task failed", "job_id", u.jobID, "platform", u.platform, "error", err)
		return
	}
	s.publishTransition(ctx, u, models.TaskStatusInFlight)

	result, err := s.attempt(ctx, task)
	if err == nil {
		if uerr := s.store.MarkTaskSucceeded(ctx, u.jobID, u.platform, result.ExternalPostID); uerr != nil {
			slog.Warn("recording success lost a race", "job_id", u.jobID, "platform", u.platform, "error", uerr)
			return
		}
		slog.Info("published", "job_id", u.jobID, "platform", u.platform, "external_post_id", result.ExternalPostID)
		s.publishTransition(ctx, u, models.TaskStatusSucceeded)
		return
	}

	kind := models.ErrorKindTransient
	if platform.IsPermanent(err) {
		kind = models.ErrorKindPermanent
	}
	if uerr := s.store.MarkTaskFailed(ctx, u.jobID, u.platform, err.Error(), kind); uerr != nil {
		slog.Warn("recording failure lost a race", "job_id", u.jobID, "platform", u.platform, "error", uerr)
		return
	}
	slog.Warn("publish attempt failed",
		"job_id", u.jobID, "platform", u.platform,
		"attempt", task.AttemptCount, "max_attempts", task.MaxAttempts,
		"kind", kind, "error", err,
	)
	s.publishTransition(ctx, u, models.TaskStatusFailed)

	if kind == models.ErrorKindTransient && task.AttemptCount < task.MaxAttempts {
		s.scheduleRetry(u, task.AttemptCount)
	}
}

// attempt fetches fresh credentials and calls the platform client.
func (s *Scheduler) attempt(ctx context.Context, task *models.PlatformTask) (models.PublishResult, error) {
	job, err := s.store.GetJob(ctx, task.JobID)
	if err != nil {
		return models.PublishResult{}, &platform.TransientError{
			Platform: task.Platform, Message: "loading job", Err: err,
		}
	}

	cred, err := s.creds.Credential(ctx, job.UserID, task.Platform)
	if err != nil {
		if errors.Is(err, creds.ErrNotConnected) {
			return models.PublishResult{}, &platform.PermanentError{
				Platform: task.Platform, Message: "platform not connected", Err: err,
			}
		}
		return models.PublishResult{}, &platform.TransientError{
			Platform: task.Platform, Message: "fetching credentials", Err: err,
		}
	}

	pub, err := s.registry.Get(task.Platform)
	if err != nil {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: task.Platform, Message: "no publisher", Err: err,
		}
	}

	return pub.Publish(ctx, models.PublishRequest{
		Title:       job.Title,
		Description: job.Description,
		MediaRef:    job.MediaRef,
		Credential:  *cred,
	})
}

// scheduleRetry arms a backoff timer that resets the task to pending and
// re-dispatches it. The reset is a compare-and-set: if an explicit retry beat
// the timer, the reset is stale and the timer gives up quietly.
func (s *Scheduler) scheduleRetry(u unit, attempts int) {
	delay := s.backoff.Delay(attempts)
	slog.Info("scheduling retry", "job_id", u.jobID, "platform", u.platform, "attempt", attempts, "delay", delay)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			// Shutdown while waiting: the task stays failed-transient with
			// attempts remaining; an explicit retry can pick it up later.
			return
		case <-timer.C:
		}

		ctx := context.Background()
		if err := s.store.ResetTaskForRetry(ctx, u.jobID, u.platform); err != nil {
			if !errors.Is(err, store.ErrStaleUpdate) && !errors.Is(err, store.ErrNotFound) {
				slog.Error("retry reset failed", "job_id", u.jobID, "platform", u.platform, "error", err)
			}
			return
		}
		s.publishTransition(ctx, u, models.TaskStatusPending)

		if err := s.Dispatch(u.jobID, u.platform); err != nil {
			// Queue full: the task is pending and the sweep will retry it.
			slog.Warn("retry dispatch deferred", "job_id", u.jobID, "platform", u.platform, "error", err)
		}
	}()
}

// sweepLoop re-dispatches pending tasks that were stranded by a full queue
// or by a crash between persist and dispatch.
func (s *Scheduler) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.SweepInterval)
	defer cancel()

	cutoff := time.Now().Add(-s.cfg.SweepInterval)
	tasks, err := s.store.ListStalePendingTasks(ctx, cutoff, 100)
	if err != nil {
		slog.Error("pending sweep failed", "error", err)
		return
	}

	for _, t := range tasks {
		if err := s.Dispatch(t.JobID, t.Platform); err != nil {
			// Still saturated; the next tick tries again.
			return
		}
		slog.Info("re-dispatched stranded task", "job_id", t.JobID, "platform", t.Platform)
	}
}

// publishTransition refreshes the cached aggregate status and notifies
// subscribers. Best-effort on both counts; the store remains authoritative.
func (s *Scheduler) publishTransition(ctx context.Context, u unit, newStatus string) {
	job, err := s.store.GetJob(ctx, u.jobID)
	if err != nil {
		slog.Warn("loading job for notification failed", "job_id", u.jobID, "error", err)
		return
	}

	agg := Aggregate(job.Tasks)
	if err := s.cache.SetJobStatus(ctx, job.ID, agg, s.cfg.StatusCacheTTL); err != nil {
		slog.Debug("caching job status failed", "job_id", job.ID, "error", err)
	}

	s.notifier.TaskTransition(models.TaskEvent{
		Type:            "task_update",
		JobID:           job.ID,
		UserID:          job.UserID,
		Platform:        u.platform,
		NewStatus:       newStatus,
		AggregateStatus: agg,
		OccurredAt:      time.Now().UTC(),
	})
}

var _ Dispatcher = (*Scheduler)(nil)
