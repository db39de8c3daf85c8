// Package youtube publishes by registering an upload against the Data API.
// The media bytes themselves are pulled by reference; this client only
// creates the video resource.
package youtube

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

func (c *Client) Platform() models.Platform { return models.PlatformYouTube }

func (c *Client) Publish(ctx context.Context, req models.PublishRequest) (models.PublishResult, error) {
	payload := map[string]any{
		"snippet": map[string]any{
			"title":       req.Title,
			"description": req.Description,
		},
		"status": map[string]string{
			"privacyStatus": "public",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformYouTube, Message: "encoding request", Err: err,
		}
	}

	u := c.baseURL + "/videos?part=snippet,status&sourceUrl=" + req.MediaRef
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformYouTube, Message: "building request", Err: err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential.AccessToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return models.PublishResult{}, platform.ClassifyHTTPError(models.PlatformYouTube, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.PublishResult{}, platform.ClassifyStatus(models.PlatformYouTube, resp.StatusCode, string(snippet))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.PublishResult{}, &platform.TransientError{
			Platform: models.PlatformYouTube, Message: "decoding response", Err: err,
		}
	}
	if out.ID == "" {
		return models.PublishResult{}, &platform.TransientError{
			Platform: models.PlatformYouTube, Message: "response missing video id",
		}
	}

	return models.PublishResult{
		ExternalPostID: out.ID,
		PostURL:        "https://www.youtube.com/watch?v=" + out.ID,
	}, nil
}

var _ models.Publisher = (*Client)(nil)
