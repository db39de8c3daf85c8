// Package mock provides a models.Publisher for testing.
package mock

import (
	"context"

	"github.com/crosscast-io/crosscast/internal/platform"
	"github.com/crosscast-io/crosscast/pkg/models"
)

// Publisher satisfies models.Publisher for testing.
type Publisher struct {
	Platform_   models.Platform
	PublishFunc func(ctx context.Context, req models.PublishRequest) (models.PublishResult, error)
}

func (m *Publisher) Platform() models.Platform { return m.Platform_ }

func (m *Publisher) Publish(ctx context.Context, req models.PublishRequest) (models.PublishResult, error) {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, req)
	}
	return models.PublishResult{ExternalPostID: "mock-post"}, nil
}

// NewSucceeding returns a publisher that always succeeds with the given post id.
func NewSucceeding(p models.Platform, postID string) *Publisher {
	return &Publisher{
		Platform_: p,
		PublishFunc: func(_ context.Context, _ models.PublishRequest) (models.PublishResult, error) {
			return models.PublishResult{ExternalPostID: postID}, nil
		},
	}
}

// NewTransientFailing returns a publisher that always fails retryably.
func NewTransientFailing(p models.Platform, msg string) *Publisher {
	return &Publisher{
		Platform_: p,
		PublishFunc: func(_ context.Context, _ models.PublishRequest) (models.PublishResult, error) {
			return models.PublishResult{}, &platform.TransientError{Platform: p, Message: msg}
		},
	}
}

// NewPermanentFailing returns a publisher that always fails non-retryably.
func NewPermanentFailing(p models.Platform, msg string) *Publisher {
	return &Publisher{
		Platform_: p,
		PublishFunc: func(_ context.Context, _ models.PublishRequest) (models.PublishResult, error) {
			return models.PublishResult{}, &platform.PermanentError{Platform: p, Message: msg}
		},
	}
}

// Compile-time check that Publisher implements models.Publisher.
var _ models.Publisher = (*Publisher)(nil)
