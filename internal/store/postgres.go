package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crosscast-io/crosscast/pkg/models"
)

// nonTerminalTask matches tasks that may still transition without an explicit
// retry. Kept in one place so CountActiveJobs and the sweep agree on it.
const nonTerminalTask = `(status IN ('pending', 'in_flight')
	OR (status = 'failed' AND error_kind = 'transient' AND attempt_count < max_attempts))`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	if len(job.Tasks) == 0 {
		return fmt.Errorf("create job: job has no platform tasks")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create job: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (id, user_id, title, description, media_ref, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.UserID, job.Title, job.Description, job.MediaRef, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}

	for _, t := range job.Tasks {
		_, err = tx.Exec(ctx,
			`INSERT INTO platform_tasks (job_id, platform, status, attempt_count, max_attempts,
			   external_post_id, last_error, error_kind, last_attempted_at, position, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			t.JobID, t.Platform, t.Status, t.AttemptCount, t.MaxAttempts,
			t.ExternalPostID, t.LastError, t.ErrorKind, t.LastAttemptedAt, t.Position, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("create platform task %s: %w", t.Platform, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, description, media_ref, created_at, updated_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.UserID, &j.Title, &j.Description, &j.MediaRef, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	tasks, err := s.tasksForJob(ctx, id)
	if err != nil {
		return nil, err
	}
	j.Tasks = tasks
	return &j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, userID uuid.UUID) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, description, media_ref, created_at, updated_at
		 FROM jobs WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	byID := make(map[uuid.UUID]*models.Job)
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.UserID, &j.Title, &j.Description, &j.MediaRef,
			&j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &j)
		byID[j.ID] = &j
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return jobs, nil
	}

	taskRows, err := s.pool.Query(ctx,
		`SELECT t.job_id, t.platform, t.status, t.attempt_count, t.max_attempts,
		        t.external_post_id, t.last_error, t.error_kind, t.last_attempted_at,
		        t.position, t.created_at, t.updated_at
		 FROM platform_tasks t
		 JOIN jobs j ON j.id = t.job_id
		 WHERE j.user_id = $1
		 ORDER BY t.job_id, t.position`, userID)
	if err != nil {
		return nil, fmt.Errorf("list job tasks: %w", err)
	}
	defer taskRows.Close()

	for taskRows.Next() {
		t, err := scanTask(taskRows)
		if err != nil {
			return nil, err
		}
		if j, ok := byID[t.JobID]; ok {
			j.Tasks = append(j.Tasks, t)
		}
	}
	return jobs, taskRows.Err()
}

// --- Platform tasks ---

const taskColumns = `job_id, platform, status, attempt_count, max_attempts,
	external_post_id, last_error, error_kind, last_attempted_at, position, created_at, updated_at`

func (s *PostgresStore) tasksForJob(ctx context.Context, jobID uuid.UUID) ([]*models.PlatformTask, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM platform_tasks WHERE job_id = $1 ORDER BY position`, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.PlatformTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *PostgresStore) GetTask(ctx context.Context, jobID uuid.UUID, platform models.Platform) (*models.PlatformTask, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM platform_tasks WHERE job_id = $1 AND platform = $2`,
		jobID, platform)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *PostgresStore) MarkTaskInFlight(ctx context.Context, jobID uuid.UUID, platform models.Platform) (*models.PlatformTask, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE platform_tasks
		 SET status = 'in_flight', attempt_count = attempt_count + 1,
		     last_attempted_at = NOW(), updated_at = NOW()
		 WHERE job_id = $1 AND platform = $2 AND status = 'pending'
		   AND attempt_count < max_attempts
		 RETURNING `+taskColumns, jobID, platform)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.staleOrMissing(ctx, jobID, platform)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *PostgresStore) MarkTaskSucceeded(ctx context.Context, jobID uuid.UUID, platform models.Platform, externalPostID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE platform_tasks
		 SET status = 'succeeded', external_post_id = $3, last_error = NULL,
		     error_kind = NULL, updated_at = NOW()
		 WHERE job_id = $1 AND platform = $2 AND status = 'in_flight'`,
		jobID, platform, externalPostID)
	if err != nil {
		return fmt.Errorf("mark task succeeded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, jobID, platform)
	}
	return nil
}

func (s *PostgresStore) MarkTaskFailed(ctx context.Context, jobID uuid.UUID, platform models.Platform, errMsg, errKind string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE platform_tasks
		 SET status = 'failed', last_error = $3, error_kind = $4, updated_at = NOW()
		 WHERE job_id = $1 AND platform = $2 AND status = 'in_flight'`,
		jobID, platform, errMsg, errKind)
	if err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, jobID, platform)
	}
	return nil
}

func (s *PostgresStore) ResetTaskForRetry(ctx context.Context, jobID uuid.UUID, platform models.Platform) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE platform_tasks
		 SET status = 'pending', last_error = NULL, error_kind = NULL, updated_at = NOW()
		 WHERE job_id = $1 AND platform = $2 AND status = 'failed'
		   AND error_kind = 'transient' AND attempt_count < max_attempts`,
		jobID, platform)
	if err != nil {
		return fmt.Errorf("reset task for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, jobID, platform)
	}
	return nil
}

func (s *PostgresStore) RequeueFailedTask(ctx context.Context, jobID uuid.UUID, platform models.Platform) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE platform_tasks
		 SET status = 'pending', attempt_count = 0, last_error = NULL,
		     error_kind = NULL, updated_at = NOW()
		 WHERE job_id = $1 AND platform = $2 AND status = 'failed'
		   AND error_kind = 'transient'`,
		jobID, platform)
	if err != nil {
		return fmt.Errorf("requeue failed task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, jobID, platform)
	}
	return nil
}

// staleOrMissing distinguishes a lost compare-and-set race from a task that
// does not exist at all.
func (s *PostgresStore) staleOrMissing(ctx context.Context, jobID uuid.UUID, platform models.Platform) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM platform_tasks WHERE job_id = $1 AND platform = $2)`,
		jobID, platform).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check task existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleUpdate
}

func (s *PostgresStore) CountActiveJobs(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT job_id) FROM platform_tasks WHERE `+nonTerminalTask,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListStalePendingTasks(ctx context.Context, cutoff time.Time, limit int) ([]*models.PlatformTask, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM platform_tasks
		 WHERE status = 'pending' AND updated_at < $1
		 ORDER BY updated_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.PlatformTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*models.PlatformTask, error) {
	var t models.PlatformTask
	err := row.Scan(&t.JobID, &t.Platform, &t.Status, &t.AttemptCount, &t.MaxAttempts,
		&t.ExternalPostID, &t.LastError, &t.ErrorKind, &t.LastAttemptedAt,
		&t.Position, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan platform task: %w", err)
	}
	return &t, nil
}

// --- Credentials ---

func (s *PostgresStore) GetCredential(ctx context.Context, userID uuid.UUID, platform models.Platform) (*models.Credential, error) {
	var c models.Credential
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, platform, access_token, refresh_token, expires_at, page_id, created_at, updated_at
		 FROM platform_credentials WHERE user_id = $1 AND platform = $2`, userID, platform,
	).Scan(&c.ID, &c.UserID, &c.Platform, &c.AccessToken, &c.RefreshToken,
		&c.ExpiresAt, &c.PageID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) UpsertCredential(ctx context.Context, cred *models.Credential) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO platform_credentials (id, user_id, platform, access_token, refresh_token, expires_at, page_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, platform) DO UPDATE SET
		   access_token = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   expires_at = EXCLUDED.expires_at,
		   page_id = EXCLUDED.page_id,
		   updated_at = NOW()`,
		cred.ID, cred.UserID, cred.Platform, cred.AccessToken, cred.RefreshToken,
		cred.ExpiresAt, cred.PageID, cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCredentials(ctx context.Context, userID uuid.UUID) ([]*models.Credential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, platform, access_token, refresh_token, expires_at, page_id, created_at, updated_at
		 FROM platform_credentials WHERE user_id = $1 ORDER BY platform`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		var c models.Credential
		if err := rows.Scan(&c.ID, &c.UserID, &c.Platform, &c.AccessToken, &c.RefreshToken,
			&c.ExpiresAt, &c.PageID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, &c)
	}
	return creds, rows.Err()
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
