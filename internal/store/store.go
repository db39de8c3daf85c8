package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/crosscast-io/crosscast/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrStaleUpdate is returned when a conditional task update loses a race:
// the task is no longer in the expected state, typically because it is
// already terminal or another path transitioned it first. Callers log and
// ignore it; a late-arriving result must never resurrect a settled task.
var ErrStaleUpdate = errors.New("stale task update")

// Store is the data access interface. All database operations go through here.
// Task transitions are conditional compare-and-set operations keyed by
// (job_id, platform); the database row is the sole serialization point.
type Store interface {
	Ping(ctx context.Context) error

	// CreateJob persists a job together with all its platform tasks in one
	// transaction. Either everything is written or nothing is.
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, userID uuid.UUID) ([]*models.Job, error)
	GetTask(ctx context.Context, jobID uuid.UUID, platform models.Platform) (*models.PlatformTask, error)

	// MarkTaskInFlight transitions pending -> in_flight, increments the
	// attempt counter and stamps last_attempted_at. Returns the updated task.
	MarkTaskInFlight(ctx context.Context, jobID uuid.UUID, platform models.Platform) (*models.PlatformTask, error)
	// MarkTaskSucceeded transitions in_flight -> succeeded and records the
	// platform-assigned post id.
	MarkTaskSucceeded(ctx context.Context, jobID uuid.UUID, platform models.Platform, externalPostID string) error
	// MarkTaskFailed transitions in_flight -> failed with the error message
	// and kind (transient or permanent).
	MarkTaskFailed(ctx context.Context, jobID uuid.UUID, platform models.Platform, errMsg, errKind string) error
	// ResetTaskForRetry transitions failed -> pending, but only for transient
	// failures with attempts remaining. Clears the recorded error. Used by the
	// scheduler's automatic backoff path.
	ResetTaskForRetry(ctx context.Context, jobID uuid.UUID, platform models.Platform) error
	// RequeueFailedTask transitions failed -> pending for any non-permanent
	// failure, exhausted or not, and resets the attempt counter. Used by the
	// explicit user-requested retry path.
	RequeueFailedTask(ctx context.Context, jobID uuid.UUID, platform models.Platform) error

	// CountActiveJobs counts jobs holding at least one non-terminal task.
	// Always computed from task rows, never from a maintained counter.
	CountActiveJobs(ctx context.Context) (int, error)
	// ListStalePendingTasks returns pending tasks untouched since the cutoff,
	// for the scheduler's re-dispatch sweep.
	ListStalePendingTasks(ctx context.Context, cutoff time.Time, limit int) ([]*models.PlatformTask, error)

	GetCredential(ctx context.Context, userID uuid.UUID, platform models.Platform) (*models.Credential, error)
	UpsertCredential(ctx context.Context, cred *models.Credential) error
	ListCredentials(ctx context.Context, userID uuid.UUID) ([]*models.Credential, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
}
