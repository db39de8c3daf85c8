package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crosscast-io/crosscast/internal/creds"
	"github.com/crosscast-io/crosscast/internal/store"
	"github.com/crosscast-io/crosscast/pkg/models"
)

// fakeStore is an in-memory store.Store with the same conditional-update
// semantics as the Postgres implementation.
type fakeStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*models.Job
	tasks map[string]*models.PlatformTask
	creds map[string]*models.Credential
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:  make(map[uuid.UUID]*models.Job),
		tasks: make(map[string]*models.PlatformTask),
		creds: make(map[string]*models.Credential),
	}
}

func taskKey(jobID uuid.UUID, p models.Platform) string {
	return jobID.String() + "/" + string(p)
}

func cloneTask(t *models.PlatformTask) *models.PlatformTask {
	c := *t
	return &c
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) CreateJob(_ context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[job.ID]; ok {
		return store.ErrDuplicateKey
	}
	j := *job
	j.Tasks = nil
	f.jobs[job.ID] = &j
	for _, t := range job.Tasks {
		f.tasks[taskKey(t.JobID, t.Platform)] = cloneTask(t)
	}
	return nil
}

func (f *fakeStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *j
	for _, t := range f.tasks {
		if t.JobID == id {
			out.Tasks = append(out.Tasks, cloneTask(t))
		}
	}
	// Preserve request order.
	for i := 0; i < len(out.Tasks); i++ {
		for j := i + 1; j < len(out.Tasks); j++ {
			if out.Tasks[j].Position < out.Tasks[i].Position {
				out.Tasks[i], out.Tasks[j] = out.Tasks[j], out.Tasks[i]
			}
		}
	}
	return &out, nil
}

func (f *fakeStore) ListJobs(ctx context.Context, userID uuid.UUID) ([]*models.Job, error) {
	f.mu.Lock()
	ids := make([]uuid.UUID, 0)
	for id, j := range f.jobs {
		if j.UserID == userID {
			ids = append(ids, id)
		}
	}
	f.mu.Unlock()

	jobs := make([]*models.Job, 0, len(ids))
	for _, id := range ids {
		j, err := f.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	for i := 0; i < len(jobs); i++ {
		for j := i + 1; j < len(jobs); j++ {
			if jobs[j].CreatedAt.After(jobs[i].CreatedAt) {
				jobs[i], jobs[j] = jobs[j], jobs[i]
			}
		}
	}
	return jobs, nil
}

func (f *fakeStore) GetTask(_ context.Context, jobID uuid.UUID, p models.Platform) (*models.PlatformTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskKey(jobID, p)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTask(t), nil
}

func (f *fakeStore) staleOrMissing(jobID uuid.UUID, p models.Platform) error {
	if _, ok := f.tasks[taskKey(jobID, p)]; !ok {
		return store.ErrNotFound
	}
	return store.ErrStaleUpdate
}

func (f *fakeStore) MarkTaskInFlight(_ context.Context, jobID uuid.UUID, p models.Platform) (*models.PlatformTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskKey(jobID, p)]
	if !ok || t.Status != models.TaskStatusPending || t.AttemptCount >= t.MaxAttempts {
		return nil, f.staleOrMissing(jobID, p)
	}
	now := time.Now().UTC()
	t.Status = models.TaskStatusInFlight
	t.AttemptCount++
	t.LastAttemptedAt = &now
	t.UpdatedAt = now
	return cloneTask(t), nil
}

func (f *fakeStore) MarkTaskSucceeded(_ context.Context, jobID uuid.UUID, p models.Platform, externalPostID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskKey(jobID, p)]
	if !ok || t.Status != models.TaskStatusInFlight {
		return f.staleOrMissing(jobID, p)
	}
	t.Status = models.TaskStatusSucceeded
	t.ExternalPostID = &externalPostID
	t.LastError = nil
	t.ErrorKind = nil
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) MarkTaskFailed(_ context.Context, jobID uuid.UUID, p models.Platform, errMsg, errKind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskKey(jobID, p)]
	if !ok || t.Status != models.TaskStatusInFlight {
		return f.staleOrMissing(jobID, p)
	}
	t.Status = models.TaskStatusFailed
	t.LastError = &errMsg
	t.ErrorKind = &errKind
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) ResetTaskForRetry(_ context.Context, jobID uuid.UUID, p models.Platform) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskKey(jobID, p)]
	if !ok || t.Status != models.TaskStatusFailed ||
		t.ErrorKind == nil || *t.ErrorKind != models.ErrorKindTransient ||
		t.AttemptCount >= t.MaxAttempts {
		return f.staleOrMissing(jobID, p)
	}
	t.Status = models.TaskStatusPending
	t.LastError = nil
	t.ErrorKind = nil
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) RequeueFailedTask(_ context.Context, jobID uuid.UUID, p models.Platform) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskKey(jobID, p)]
	if !ok || t.Status != models.TaskStatusFailed ||
		t.ErrorKind == nil || *t.ErrorKind != models.ErrorKindTransient {
		return f.staleOrMissing(jobID, p)
	}
	t.Status = models.TaskStatusPending
	t.AttemptCount = 0
	t.LastError = nil
	t.ErrorKind = nil
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) CountActiveJobs(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	active := make(map[uuid.UUID]bool)
	for _, t := range f.tasks {
		if !t.Terminal() {
			active[t.JobID] = true
		}
	}
	return len(active), nil
}

func (f *fakeStore) ListStalePendingTasks(_ context.Context, cutoff time.Time, limit int) ([]*models.PlatformTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PlatformTask
	for _, t := range f.tasks {
		if t.Status == models.TaskStatusPending && t.UpdatedAt.Before(cutoff) {
			out = append(out, cloneTask(t))
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func credKey(userID uuid.UUID, p models.Platform) string {
	return userID.String() + "/" + string(p)
}

func (f *fakeStore) GetCredential(_ context.Context, userID uuid.UUID, p models.Platform) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[credKey(userID, p)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cc := *c
	return &cc, nil
}

func (f *fakeStore) UpsertCredential(_ context.Context, cred *models.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *cred
	f.creds[credKey(cred.UserID, cred.Platform)] = &c
	return nil
}

func (f *fakeStore) ListCredentials(context.Context, uuid.UUID) ([]*models.Credential, error) {
	return nil, nil
}

func (f *fakeStore) GetAPIKeyByPrefix(context.Context, string) ([]*models.APIKey, error) {
	return nil, nil
}

func (f *fakeStore) UpdateAPIKeyLastUsed(context.Context, uuid.UUID) error { return nil }

func (f *fakeStore) CreateAPIKey(context.Context, *models.APIKey) error { return nil }

func (f *fakeStore) ListAPIKeys(context.Context, uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}

func (f *fakeStore) RevokeAPIKey(context.Context, uuid.UUID, uuid.UUID) error { return nil }

var _ store.Store = (*fakeStore)(nil)

// fakeCreds resolves credentials for connected (user, platform) pairs.
type fakeCreds struct {
	mu        sync.Mutex
	connected map[string]*models.Credential
}

func newFakeCreds() *fakeCreds {
	return &fakeCreds{connected: make(map[string]*models.Credential)}
}

func (f *fakeCreds) connect(userID uuid.UUID, p models.Platform) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected[credKey(userID, p)] = &models.Credential{
		UserID: userID, Platform: p, AccessToken: "test-token",
	}
}

func (f *fakeCreds) Credential(_ context.Context, userID uuid.UUID, p models.Platform) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.connected[credKey(userID, p)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", creds.ErrNotConnected, p)
	}
	cc := *c
	return &cc, nil
}

var _ creds.Source = (*fakeCreds)(nil)

// fakeCache is a map-backed cache.Cache.
type fakeCache struct {
	mu       sync.Mutex
	values   map[string][]byte
	statuses map[uuid.UUID]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		values:   make(map[string][]byte),
		statuses: make(map[uuid.UUID]string),
	}
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

func (f *fakeCache) Ping(context.Context) error { return nil }

func (f *fakeCache) SetJobStatus(_ context.Context, jobID uuid.UUID, status string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[jobID] = status
	return nil
}

func (f *fakeCache) GetJobStatus(_ context.Context, jobID uuid.UUID) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.statuses[jobID]
	return s, ok, nil
}

func (f *fakeCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}

// fakeDispatcher records dispatches and optionally fails them.
type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []unit
	err        error
}

func (f *fakeDispatcher) Dispatch(jobID uuid.UUID, p models.Platform) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.dispatched = append(f.dispatched, unit{jobID: jobID, platform: p})
	return nil
}

func (f *fakeDispatcher) calls() []unit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]unit(nil), f.dispatched...)
}

// fakeNotifier collects transition events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []models.TaskEvent
}

func (f *fakeNotifier) TaskTransition(evt models.TaskEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

func (f *fakeNotifier) all() []models.TaskEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TaskEvent(nil), f.events...)
}
