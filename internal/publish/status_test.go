package publish

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosscast-io/crosscast/pkg/models"
)

func task(p models.Platform, status string, attempts, max int, kind string) *models.PlatformTask {
	t := &models.PlatformTask{
		Platform:     p,
		Status:       status,
		AttemptCount: attempts,
		MaxAttempts:  max,
	}
	if kind != "" {
		t.ErrorKind = &kind
	}
	return t
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name  string
		tasks []*models.PlatformTask
		want  string
	}{
		{
			name:  "no tasks",
			tasks: nil,
			want:  models.JobStatusPending,
		},
		{
			name: "all pending",
			tasks: []*models.PlatformTask{
				task(models.PlatformFacebook, models.TaskStatusPending, 0, 3, ""),
				task(models.PlatformTwitter, models.TaskStatusPending, 0, 3, ""),
			},
			want: models.JobStatusPending,
		},
		{
			name: "in flight wins over pending",
			tasks: []*models.PlatformTask{
				task(models.PlatformFacebook, models.TaskStatusInFlight, 1, 3, ""),
				task(models.PlatformTwitter, models.TaskStatusPending, 0, 3, ""),
			},
			want: models.JobStatusInFlight,
		},
		{
			name: "pending alongside settled tasks",
			tasks: []*models.PlatformTask{
				task(models.PlatformFacebook, models.TaskStatusSucceeded, 1, 3, ""),
				task(models.PlatformTwitter, models.TaskStatusPending, 0, 3, ""),
			},
			want: models.JobStatusPending,
		},
		{
			name: "transient failure awaiting backoff counts as in flight",
			tasks: []*models.PlatformTask{
				task(models.PlatformFacebook, models.TaskStatusSucceeded, 1, 3, ""),
				task(models.PlatformTwitter, models.TaskStatusFailed, 1, 3, models.ErrorKindTransient),
			},
			want: models.JobStatusInFlight,
		},
		{
			name: "all succeeded",
			tasks: []*models.PlatformTask{
				task(models.PlatformFacebook, models.TaskStatusSucceeded, 1, 3, ""),
				task(models.PlatformTwitter, models.TaskStatusSucceeded, 2, 3, ""),
			},
			want: models.JobStatusSucceeded,
		},
		{
			name: "success and exhausted failure is partial",
			tasks: []*models.PlatformTask{
				task(models.PlatformFacebook, models.TaskStatusSucceeded, 1, 3, ""),
				task(models.PlatformTwitter, models.TaskStatusFailed, 3, 3, models.ErrorKindTransient),
			},
			want: models.JobStatusPartialSuccess,
		},
		{
			name: "success and permanent failure is partial",
			tasks: []*models.PlatformTask{
				task(models.PlatformFacebook, models.TaskStatusSucceeded, 1, 3, ""),
				task(models.PlatformTwitter, models.TaskStatusFailed, 1, 3, models.ErrorKindPermanent),
			},
			want: models.JobStatusPartialSuccess,
		},
		{
			name: "all failed",
			tasks: []*models.PlatformTask{
				task(models.PlatformFacebook, models.TaskStatusFailed, 3, 3, models.ErrorKindTransient),
				task(models.PlatformTwitter, models.TaskStatusFailed, 1, 3, models.ErrorKindPermanent),
			},
			want: models.JobStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.tasks)
			assert.Equal(t, tt.want, got)

			// Pure function: recomputing must not change the answer.
			assert.Equal(t, got, Aggregate(tt.tasks))
		})
	}
}

func TestAggregateFlipLastFailureToSuccess(t *testing.T) {
	tasks := []*models.PlatformTask{
		task(models.PlatformFacebook, models.TaskStatusSucceeded, 1, 3, ""),
		task(models.PlatformTwitter, models.TaskStatusSucceeded, 1, 3, ""),
		task(models.PlatformLinkedIn, models.TaskStatusFailed, 3, 3, models.ErrorKindTransient),
	}
	require.Equal(t, models.JobStatusPartialSuccess, Aggregate(tasks))

	tasks[2].Status = models.TaskStatusSucceeded
	tasks[2].ErrorKind = nil
	assert.Equal(t, models.JobStatusSucceeded, Aggregate(tasks))
}

func TestStatusView(t *testing.T) {
	jobID := uuid.New()
	userID := uuid.New()
	created := time.Now().UTC().Add(-time.Minute)
	settled := time.Now().UTC()

	postID := "fb123"
	job := &models.Job{
		ID:        jobID,
		UserID:    userID,
		Title:     "launch video",
		CreatedAt: created,
		Tasks: []*models.PlatformTask{
			{
				JobID: jobID, Platform: models.PlatformFacebook,
				Status: models.TaskStatusSucceeded, AttemptCount: 1, MaxAttempts: 3,
				ExternalPostID: &postID, UpdatedAt: settled,
			},
			{
				JobID: jobID, Platform: models.PlatformTwitter,
				Status: models.TaskStatusSucceeded, AttemptCount: 2, MaxAttempts: 3,
				UpdatedAt: settled.Add(-time.Second),
			},
		},
	}

	view := StatusView(job)
	assert.Equal(t, jobID, view.JobID)
	assert.Equal(t, userID, view.UserID)
	assert.Equal(t, models.JobStatusSucceeded, view.Status)
	require.Len(t, view.Tasks, 2)
	assert.Equal(t, models.PlatformFacebook, view.Tasks[0].Platform)
	require.NotNil(t, view.Tasks[0].ExternalPostID)
	assert.Equal(t, "fb123", *view.Tasks[0].ExternalPostID)

	require.NotNil(t, view.CompletedAt)
	assert.Equal(t, settled, *view.CompletedAt)
}

func TestStatusViewNoCompletedAtWhileRunning(t *testing.T) {
	jobID := uuid.New()
	job := &models.Job{
		ID: jobID,
		Tasks: []*models.PlatformTask{
			task(models.PlatformFacebook, models.TaskStatusInFlight, 1, 3, ""),
		},
	}

	view := StatusView(job)
	assert.Equal(t, models.JobStatusInFlight, view.Status)
	assert.Nil(t, view.CompletedAt)
}
