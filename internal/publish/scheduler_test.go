package publish

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosscast-io/crosscast/internal/config"
	"github.com/crosscast-io/crosscast/internal/platform"
	"github.com/crosscast-io/crosscast/internal/platform/mock"
	"github.com/crosscast-io/crosscast/pkg/models"
)

func testPublisherConfig() config.PublisherConfig {
	return config.PublisherConfig{
		MaxAttempts:        3,
		BackoffBase:        time.Millisecond,
		BackoffCap:         5 * time.Millisecond,
		WorkersPerPlatform: 2,
		QueueSize:          8,
		GlobalInFlight:     8,
		SweepInterval:      25 * time.Millisecond,
		StatusCacheTTL:     time.Minute,
	}
}

func startScheduler(t *testing.T, st *fakeStore, cr *fakeCreds, n Notifier, cfg config.PublisherConfig, pubs ...models.Publisher) *Scheduler {
	t.Helper()
	reg, err := platform.NewRegistry(pubs...)
	require.NoError(t, err)

	s := NewScheduler(st, reg, cr, newFakeCache(), n, cfg)
	s.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, s.Shutdown(ctx))
	})
	return s
}

// seedJob persists a job with one pending task per platform and connects the
// user's credentials for each.
func seedJob(t *testing.T, st *fakeStore, cr *fakeCreds, platforms ...models.Platform) *models.Job {
	t.Helper()
	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Title:     "launch video",
		MediaRef:  "media-1",
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, p := range platforms {
		job.Tasks = append(job.Tasks, &models.PlatformTask{
			JobID:       job.ID,
			Platform:    p,
			Status:      models.TaskStatusPending,
			MaxAttempts: 3,
			Position:    i,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		cr.connect(job.UserID, p)
	}
	require.NoError(t, st.CreateJob(context.Background(), job))
	return job
}

func waitForTask(t *testing.T, st *fakeStore, jobID uuid.UUID, p models.Platform, pred func(*models.PlatformTask) bool) *models.PlatformTask {
	t.Helper()
	var last *models.PlatformTask
	require.Eventually(t, func() bool {
		task, err := st.GetTask(context.Background(), jobID, p)
		if err != nil {
			return false
		}
		last = task
		return pred(task)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func TestSchedulerPublishesTask(t *testing.T) {
	st := newFakeStore()
	cr := newFakeCreds()
	notifier := &fakeNotifier{}
	s := startScheduler(t, st, cr, notifier, testPublisherConfig(),
		mock.NewSucceeding(models.PlatformFacebook, "fb123"))

	job := seedJob(t, st, cr, models.PlatformFacebook)
	require.NoError(t, s.Dispatch(job.ID, models.PlatformFacebook))

	task := waitForTask(t, st, job.ID, models.PlatformFacebook, func(task *models.PlatformTask) bool {
		return task.Status == models.TaskStatusSucceeded
	})
	assert.Equal(t, 1, task.AttemptCount)
	require.NotNil(t, task.ExternalPostID)
	assert.Equal(t, "fb123", *task.ExternalPostID)

	// Subscribers saw the task go in flight and then succeed.
	events := notifier.all()
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, models.TaskStatusInFlight, events[0].NewStatus)
	last := events[len(events)-1]
	assert.Equal(t, models.TaskStatusSucceeded, last.NewStatus)
	assert.Equal(t, models.JobStatusSucceeded, last.AggregateStatus)
	assert.Equal(t, job.UserID, last.UserID)
}

func TestSchedulerRetriesTransientThenExhausts(t *testing.T) {
	st := newFakeStore()
	cr := newFakeCreds()
	s := startScheduler(t, st, cr, NopNotifier{}, testPublisherConfig(),
		mock.NewSucceeding(models.PlatformFacebook, "fb123"),
		mock.NewTransientFailing(models.PlatformTwitter, "rate limited"))

	job := seedJob(t, st, cr, models.PlatformFacebook, models.PlatformTwitter)
	require.NoError(t, s.Dispatch(job.ID, models.PlatformFacebook))
	require.NoError(t, s.Dispatch(job.ID, models.PlatformTwitter))

	fb := waitForTask(t, st, job.ID, models.PlatformFacebook, func(task *models.PlatformTask) bool {
		return task.Status == models.TaskStatusSucceeded
	})
	require.NotNil(t, fb.ExternalPostID)
	assert.Equal(t, "fb123", *fb.ExternalPostID)

	tw := waitForTask(t, st, job.ID, models.PlatformTwitter, func(task *models.PlatformTask) bool {
		return task.Status == models.TaskStatusFailed && task.AttemptCount == 3
	})
	require.NotNil(t, tw.ErrorKind)
	assert.Equal(t, models.ErrorKindTransient, *tw.ErrorKind)
	assert.True(t, tw.Terminal())

	// Exhausted: no further attempts are scheduled.
	time.Sleep(50 * time.Millisecond)
	tw, err := st.GetTask(context.Background(), job.ID, models.PlatformTwitter)
	require.NoError(t, err)
	assert.Equal(t, 3, tw.AttemptCount)

	loaded, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPartialSuccess, Aggregate(loaded.Tasks))
}

func TestSchedulerPermanentFailureNotRetried(t *testing.T) {
	st := newFakeStore()
	cr := newFakeCreds()

	var calls atomic.Int32
	pub := &mock.Publisher{
		Platform_: models.PlatformInstagram,
		PublishFunc: func(context.Context, models.PublishRequest) (models.PublishResult, error) {
			calls.Add(1)
			return models.PublishResult{}, &platform.PermanentError{
				Platform: models.PlatformInstagram, Message: "content policy rejection",
			}
		},
	}
	s := startScheduler(t, st, cr, NopNotifier{}, testPublisherConfig(), pub)

	job := seedJob(t, st, cr, models.PlatformInstagram)
	require.NoError(t, s.Dispatch(job.ID, models.PlatformInstagram))

	task := waitForTask(t, st, job.ID, models.PlatformInstagram, func(task *models.PlatformTask) bool {
		return task.Status == models.TaskStatusFailed
	})
	require.NotNil(t, task.ErrorKind)
	assert.Equal(t, models.ErrorKindPermanent, *task.ErrorKind)
	assert.Equal(t, 1, task.AttemptCount)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSchedulerDuplicateDispatchRunsOneAttempt(t *testing.T) {
	st := newFakeStore()
	cr := newFakeCreds()

	var calls atomic.Int32
	pub := &mock.Publisher{
		Platform_: models.PlatformFacebook,
		PublishFunc: func(context.Context, models.PublishRequest) (models.PublishResult, error) {
			calls.Add(1)
			return models.PublishResult{ExternalPostID: "fb123"}, nil
		},
	}
	s := startScheduler(t, st, cr, NopNotifier{}, testPublisherConfig(), pub)

	job := seedJob(t, st, cr, models.PlatformFacebook)
	require.NoError(t, s.Dispatch(job.ID, models.PlatformFacebook))
	require.NoError(t, s.Dispatch(job.ID, models.PlatformFacebook))

	task := waitForTask(t, st, job.ID, models.PlatformFacebook, func(task *models.PlatformTask) bool {
		return task.Status == models.TaskStatusSucceeded
	})
	assert.Equal(t, 1, task.AttemptCount)

	// The duplicate claim lost the compare-and-set and never reached the
	// publisher.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSchedulerUnconnectedCredentialIsPermanent(t *testing.T) {
	st := newFakeStore()
	cr := newFakeCreds()
	s := startScheduler(t, st, cr, NopNotifier{}, testPublisherConfig(),
		mock.NewSucceeding(models.PlatformFacebook, "fb123"))

	// Seed the task without connecting credentials: a revocation between
	// creation and execution looks exactly like this.
	now := time.Now().UTC()
	job := &models.Job{ID: uuid.New(), UserID: uuid.New(), Title: "launch video", CreatedAt: now, UpdatedAt: now}
	job.Tasks = []*models.PlatformTask{{
		JobID: job.ID, Platform: models.PlatformFacebook,
		Status: models.TaskStatusPending, MaxAttempts: 3,
		CreatedAt: now, UpdatedAt: now,
	}}
	require.NoError(t, st.CreateJob(context.Background(), job))

	require.NoError(t, s.Dispatch(job.ID, models.PlatformFacebook))

	task := waitForTask(t, st, job.ID, models.PlatformFacebook, func(task *models.PlatformTask) bool {
		return task.Status == models.TaskStatusFailed
	})
	require.NotNil(t, task.ErrorKind)
	assert.Equal(t, models.ErrorKindPermanent, *task.ErrorKind)
}

func TestDispatchBusyWhenQueueFull(t *testing.T) {
	st := newFakeStore()
	cr := newFakeCreds()
	reg, err := platform.NewRegistry(mock.NewSucceeding(models.PlatformFacebook, "fb123"))
	require.NoError(t, err)

	cfg := testPublisherConfig()
	cfg.QueueSize = 1

	// Deliberately never started: the queue fills and stays full.
	s := NewScheduler(st, reg, cr, newFakeCache(), NopNotifier{}, cfg)

	job := seedJob(t, st, cr, models.PlatformFacebook)
	require.NoError(t, s.Dispatch(job.ID, models.PlatformFacebook))
	err = s.Dispatch(job.ID, models.PlatformFacebook)
	assert.ErrorIs(t, err, ErrSchedulerBusy)

	// The rejected dispatch lost nothing: the task is still pending.
	task, err := st.GetTask(context.Background(), job.ID, models.PlatformFacebook)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, task.Status)
}

func TestDispatchUnknownPlatform(t *testing.T) {
	st := newFakeStore()
	cr := newFakeCreds()
	reg, err := platform.NewRegistry(mock.NewSucceeding(models.PlatformFacebook, "fb123"))
	require.NoError(t, err)
	s := NewScheduler(st, reg, cr, newFakeCache(), NopNotifier{}, testPublisherConfig())

	err = s.Dispatch(uuid.New(), models.PlatformYouTube)
	assert.Error(t, err)
}

func TestSchedulerSweepRescuesStrandedTask(t *testing.T) {
	st := newFakeStore()
	cr := newFakeCreds()
	s := startScheduler(t, st, cr, NopNotifier{}, testPublisherConfig(),
		mock.NewSucceeding(models.PlatformFacebook, "fb123"))
	_ = s

	// A pending task nobody dispatched, as if the process died between
	// persist and dispatch.
	job := seedJob(t, st, cr, models.PlatformFacebook)
	st.mu.Lock()
	st.tasks[taskKey(job.ID, models.PlatformFacebook)].UpdatedAt = time.Now().Add(-time.Minute)
	st.mu.Unlock()

	waitForTask(t, st, job.ID, models.PlatformFacebook, func(task *models.PlatformTask) bool {
		return task.Status == models.TaskStatusSucceeded
	})
}
