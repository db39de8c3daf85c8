package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential is a per-user per-platform OAuth token bundle. Raw tokens are
// treated as opaque by the publishing core; only the platform clients read
// them. PageID carries the page/channel identifier for platforms that post to
// a page rather than a profile.
type Credential struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	UserID       uuid.UUID  `db:"user_id"       json:"user_id"`
	Platform     Platform   `db:"platform"      json:"platform"`
	AccessToken  string     `db:"access_token"  json:"-"`
	RefreshToken string     `db:"refresh_token" json:"-"`
	ExpiresAt    *time.Time `db:"expires_at"    json:"expires_at,omitempty"`
	PageID       *string    `db:"page_id"       json:"page_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
}
