// Package platform defines the publisher error taxonomy and the registry of
// platform clients. Per-platform HTTP integrations live in subpackages.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/crosscast-io/crosscast/pkg/models"
)

// TransientError signals a retryable platform condition: rate limiting,
// timeouts, upstream 5xx. The scheduler retries these with backoff.
type TransientError struct {
	Platform models.Platform
	Message  string
	Err      error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Platform, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError signals a non-retryable condition: invalid credentials,
// content policy rejection, any 4xx-equivalent. The task fails immediately
// and is surfaced to the user.
type PermanentError struct {
	Platform models.Platform
	Message  string
	Err      error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Platform, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ClassifyHTTPError maps a transport-level failure to the taxonomy.
// Timeouts and connection failures are ambiguous but retryable.
func ClassifyHTTPError(p models.Platform, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Platform: p, Message: "request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientError{Platform: p, Message: "request timed out", Err: err}
	}
	return &TransientError{Platform: p, Message: "platform unreachable", Err: err}
}

// ClassifyStatus maps an HTTP response status to the taxonomy.
// 429 and 5xx are retryable; every other non-2xx is permanent.
func ClassifyStatus(p models.Platform, status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &TransientError{Platform: p, Message: fmt.Sprintf("rate limited (status %d): %s", status, body)}
	case status >= 500:
		return &TransientError{Platform: p, Message: fmt.Sprintf("upstream error (status %d): %s", status, body)}
	default:
		return &PermanentError{Platform: p, Message: fmt.Sprintf("rejected (status %d): %s", status, body)}
	}
}
