// Package twitter publishes via the v2 tweets endpoint.
package twitter

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

// Tweets cap out well below a full description; the text is truncated rather
// than rejected so a long-form job still crossposts.
const maxTweetLen = 280

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

func (c *Client) Platform() models.Platform { return models.PlatformTwitter }

func (c *Client) Publish(ctx context.Context, req models.PublishRequest) (models.PublishResult, error) {
	text := req.Title
	if req.MediaRef != "" {
		text += " " + req.MediaRef
	}
	if len(text) > maxTweetLen {
		text = text[:maxTweetLen]
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformTwitter, Message: "encoding request", Err: err,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformTwitter, Message: "building request", Err: err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential.AccessToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return models.PublishResult{}, platform.ClassifyHTTPError(models.PlatformTwitter, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.PublishResult{}, platform.ClassifyStatus(models.PlatformTwitter, resp.StatusCode, string(snippet))
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.PublishResult{}, &platform.TransientError{
			Platform: models.PlatformTwitter, Message: "decoding response", Err: err,
		}
	}
	if out.Data.ID == "" {
		return models.PublishResult{}, &platform.TransientError{
			Platform: models.PlatformTwitter, Message: "response missing tweet id",
		}
	}

	return models.PublishResult{
		ExternalPostID: out.Data.ID,
		PostURL:        "https://twitter.com/i/web/status/" + out.Data.ID,
	}, nil
}

var _ models.Publisher = (*Client)(nil)
