// Package models contains shared data models used across the CrossCast codebase.
package models

import "fmt"

// Platform identifies one of the supported social platforms.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformYouTube   Platform = "youtube"
)

// AllPlatforms lists every supported platform in a stable order.
var AllPlatforms = []Platform{
	PlatformFacebook,
	PlatformTwitter,
	PlatformInstagram,
	PlatformTikTok,
	PlatformLinkedIn,
	PlatformYouTube,
}

var supportedPlatforms = func() map[Platform]bool {
	m := make(map[Platform]bool, len(AllPlatforms))
	for _, p := range AllPlatforms {
		m[p] = true
	}
	return m
}()

// ParsePlatform validates a platform name from an inbound request.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !supportedPlatforms[p] {
		return "", fmt.Errorf("unsupported platform %q", s)
	}
	return p, nil
}

func (p Platform) String() string { return string(p) }
