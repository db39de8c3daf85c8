// Package linkedin publishes UGC posts for the authenticated member.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/crosscast-io/crosscast/internal/config"
	"github.com/crosscast-io/crosscast/internal/platform"
	"github.com/crosscast-io/crosscast/pkg/models"
)

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

func (c *Client) Platform() models.Platform { return models.PlatformLinkedIn }

func (c *Client) Publish(ctx context.Context, req models.PublishRequest) (models.PublishResult, error) {
	// PageID carries the member/organization URN captured at connect time.
	if req.Credential.PageID == nil || *req.Credential.PageID == "" {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformLinkedIn,
			Message:  "credential has no author urn",
		}
	}

	payload := map[string]any{
		"author":         *req.Credential.PageID,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary": map[string]string{
					"text": req.Title + "\n\n" + req.Description + "\n" + req.MediaRef,
				},
				"shareMediaCategory": "ARTICLE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformLinkedIn, Message: "encoding request", Err: err,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformLinkedIn, Message: "building request", Err: err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential.AccessToken)
	httpReq.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return models.PublishResult{}, platform.ClassifyHTTPError(models.PlatformLinkedIn, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.PublishResult{}, platform.ClassifyStatus(models.PlatformLinkedIn, resp.StatusCode, string(snippet))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.PublishResult{}, &platform.TransientError{
			Platform: models.PlatformLinkedIn, Message: "decoding response", Err: err,
		}
	}
	if out.ID == "" {
		return models.PublishResult{}, &platform.TransientError{
			Platform: models.PlatformLinkedIn, Message: "response missing post id",
		}
	}

	return models.PublishResult{
		ExternalPostID: out.ID,
		PostURL:        "https://www.linkedin.com/feed/update/" + out.ID,
	}, nil
}

var _ models.Publisher = (*Client)(nil)
