// Package tiktok publishes via the Content Posting API video init endpoint.
package tiktok

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

func (c *Client) Platform() models.Platform { return models.PlatformTikTok }

type initRequest struct {
	PostInfo   postInfo   `json:"post_info"`
	SourceInfo sourceInfo `json:"source_info"`
}

type postInfo struct {
	Title         string `json:"title"`
	PrivacyLevel  string `json:"privacy_level"`
	DisableDuet   bool   `json:"disable_duet"`
	DisableStitch bool   `json:"disable_stitch"`
}

type sourceInfo struct {
	Source   string `json:"source"`
	VideoURL string `json:"video_url"`
}

type initResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Publish(ctx context.Context, req models.PublishRequest) (models.PublishResult, error) {
	body, err := json.Marshal(initRequest{
		PostInfo: postInfo{
			Title:        req.Title,
			PrivacyLevel: "PUBLIC_TO_EVERYONE",
		},
		SourceInfo: sourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: req.MediaRef,
		},
	})
	if err != nil {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformTikTok, Message: "encoding request", Err: err,
		}
	}

	u := c.baseURL + "/post/publish/video/init/"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformTikTok, Message: "building request", Err: err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential.AccessToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return models.PublishResult{}, platform.ClassifyHTTPError(models.PlatformTikTok, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.PublishResult{}, platform.ClassifyStatus(models.PlatformTikTok, resp.StatusCode, string(snippet))
	}

	var out initResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.PublishResult{}, &platform.TransientError{
			Platform: models.PlatformTikTok, Message: "decoding response", Err: err,
		}
	}
	// TikTok reports application errors in-band with a 200.
	if out.Error.Code != "" && out.Error.Code != "ok" {
		return models.PublishResult{}, &platform.PermanentError{
			Platform: models.PlatformTikTok,
			Message:  out.Error.Code + ": " + out.Error.Message,
		}
	}
	if out.Data.PublishID == "" {
		return models.PublishResult{}, &platform.TransientError{
			Platform: models.PlatformTikTok, Message: "response missing publish id",
		}
	}

	return models.PublishResult{ExternalPostID: out.Data.PublishID}, nil
}

var _ models.Publisher = (*Client)(nil)
