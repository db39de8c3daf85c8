package models

import "context"

// Publisher is the core interface every platform integration must implement.
// Callers always go through this interface, never a concrete client.
type Publisher interface {
	// Publish posts the content to the platform using the supplied credential
	// and returns the platform-assigned post identifier. Failures must be a
	// platform.TransientError or platform.PermanentError so callers can decide
	// whether to retry.
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
	// Platform returns the platform this publisher targets.
	Platform() Platform
}

// PublishRequest is the input to a single publish attempt. Credentials are
// fetched fresh per attempt and never cached, so token refresh and revocation
// take effect between retries.
type PublishRequest struct {
	Title       string
	Description string
	MediaRef    string
	Credential  Credential
}

// PublishResult is the normalized success outcome of a publish attempt.
type PublishResult struct {
	ExternalPostID string
	PostURL        string
}
