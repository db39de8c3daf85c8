// Package creds resolves per-user per-platform credential bundles. Token
// acquisition and refresh belong to the OAuth connect flow, which is outside
// the publishing core; this package only answers "what token do I use now".
package creds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crosscast-io/crosscast/internal/store"
	"github.com/crosscast-io/crosscast/pkg/models"
)

// ErrNotConnected signals that the user has never connected the platform, or
// that the stored token is unusable. The orchestrator records such platform
// tasks as permanently failed.
var ErrNotConnected = errors.New("platform not connected")

// Source supplies credentials for publish attempts. Implementations must be
// safe for concurrent use. Callers fetch fresh per attempt and never cache,
// so refreshes and revocations take effect between retries.
type Source interface {
	Credential(ctx context.Context, userID uuid.UUID, platform models.Platform) (*models.Credential, error)
}

// StoreSource reads credentials from the platform_credentials table.
type StoreSource struct {
	store store.Store
}

func NewStoreSource(s store.Store) *StoreSource {
	return &StoreSource{store: s}
}

func (s *StoreSource) Credential(ctx context.Context, userID uuid.UUID, platform models.Platform) (*models.Credential, error) {
	cred, err := s.store.GetCredential(ctx, userID, platform)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, platform)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch credential: %w", err)
	}

	// An expired token with no refresh token can never authenticate.
	if cred.ExpiresAt != nil && cred.ExpiresAt.Before(time.Now()) && cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %s token expired", ErrNotConnected, platform)
	}

	return cred, nil
}

var _ Source = (*StoreSource)(nil)
