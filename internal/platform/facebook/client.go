// Package facebook publishes to a Facebook page via the Graph API.
package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crosscast-io/crosscast/internal/config"
	"github.com/crosscast-io/crosscast/internal/platform"
	"github.com/crosscast-io/crosscast/pkg/models"
)

// Client implements models.Publisher against the Graph API feed endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(cfg config.PlatformEndpoint, timeout time.Duration) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Platform() models.Platform { return models.PlatformFacebook }

func (c *Client) Publish(ctx context.Context, req models.PublishRequest) (models.PublishResult, error) {
	// Posts go to the connected page; without a page id the token itself is
	// the wrong kind of credential.
	if req.Credential.PageID == nil || *req.Credential.PageID == "" {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformFacebook,
			Message:  "credential has no connected page",
		}
	}

	payload := map[string]string{
		"message": req.Title + "\n\n" + req.Description,
		"link":    req.MediaRef,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformFacebook, Message: "encoding request", Err: err,
		}
	}

	u := fmt.Sprintf("%s/%s/feed", c.baseURL, *req.Credential.PageID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformFacebook, Message: "building request", Err: err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential.AccessToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return models.PublishResult{}, platform.ClassifyHTTPError(models.PlatformFacebook, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.PublishResult{}, platform.ClassifyStatus(models.PlatformFacebook, resp.StatusCode, string(snippet))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.PublishResult{}, &platform.TransientError{
			Platform: models.PlatformFacebook, Message: "decoding response", Err: err,
		}
	}
	if out.ID == "" {
		return models.PublishResult{}, &platform.TransientError{
			Platform: models.PlatformFacebook, Message: "response missing post id",
		}
	}

	return models.PublishResult{
		ExternalPostID: out.ID,
		PostURL:        "https://www.facebook.com/" + out.ID,
	}, nil
}

var _ models.Publisher = (*Client)(nil)
