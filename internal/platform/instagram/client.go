// Package instagram publishes through the Graph API content-publishing flow:
// create a media container, then publish it.
package instagram

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

func (c *Client) Platform() models.Platform { return models.PlatformInstagram }

func (c *Client) Publish(ctx context.Context, req models.PublishRequest) (models.PublishResult, error) {
	if req.Credential.PageID == nil || *req.Credential.PageID == "" {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformInstagram,
			Message:  "credential has no connected business account",
		}
	}
	account := *req.Credential.PageID

	containerID, err := c.post(ctx, fmt.Sprintf("%s/%s/media", c.baseURL, account),
		req.Credential.AccessToken, map[string]string{
			"video_url": req.MediaRef,
			"caption":   req.Title + "\n\n" + req.Description,
		})
	if err != nil {
		return models.PublishResult{}, err
	}

	postID, err := c.post(ctx, fmt.Sprintf("%s/%s/media_publish", c.baseURL, account),
		req.Credential.AccessToken, map[string]string{
			"creation_id": containerID,
		})
	if err != nil {
		return models.PublishResult{}, err
	}

	return models.PublishResult{
		ExternalPostID: postID,
		PostURL:        "https://www.instagram.com/p/" + postID,
	}, nil
}

// post sends one Graph API call and returns the id field of the response.
func (c *Client) post(ctx context.Context, u, token string, payload map[string]string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &platform.PermanentError{
			Platform: models.PlatformInstagram, Message: "encoding request", Err: err,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", &platform.PermanentError{
			Platform: models.PlatformInstagram, Message: "building request", Err: err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", platform.ClassifyHTTPError(models.PlatformInstagram, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", platform.ClassifyStatus(models.PlatformInstagram, resp.StatusCode, string(snippet))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &platform.TransientError{
			Platform: models.PlatformInstagram, Message: "decoding response", Err: err,
		}
	}
	if out.ID == "" {
		return "", &platform.TransientError{
			Platform: models.PlatformInstagram, Message: "response missing id",
		}
	}
	return out.ID, nil
}

var _ models.Publisher = (*Client)(nil)
