// Package puppet drives an isolated browser profile through a single audit
// task: train the platform's recommender by watching seed videos, then walk
// the autoplay path collecting recommendations.
package puppet

import (
	"fmt"

	"github.com/go-rod/rod"

	"vidaudit/internal/config"
)

// Restriction records an interstitial that blocked playback.
type Restriction struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Platform abstracts one player surface of one video platform. Implementing
// it is all that is needed to point the batch runner at a new target.
type Platform interface {
	// Name is the platform identifier used in configs ("youtube").
	Name() string
	// Mode is the player surface this implementation drives.
	Mode() config.Mode
	// WatchURL builds the player URL for a video id.
	WatchURL(videoID string) string
	// ParseVideoID extracts the video id from a player URL. Returns ""
	// when the URL does not belong to this surface.
	ParseVideoID(rawURL string) string
	// VideoXPath locates the active <video> element.
	VideoXPath() string
	// Advance triggers playback of the next recommended video.
	Advance(page *rod.Page) error
	// Recommendations scrapes the recommendations surrounding the
	// current video (sidebar links for long, preload queue for short).
	Recommendations(page *rod.Page) ([]string, error)
	// CheckRestriction reports a visible playback-restriction
	// interstitial, or nil when playback is unobstructed.
	CheckRestriction(page *rod.Page) (*Restriction, error)
	// DismissRestriction clicks through a non-fatal interstitial.
	DismissRestriction(page *rod.Page) error
}

// For returns the platform implementation for a name and mode.
func For(name string, mode config.Mode) (Platform, error) {
	switch name {
	case "", "youtube":
		switch mode {
		case config.ModeLong:
			return youtubeLong{}, nil
		case config.ModeShort:
			return youtubeShort{}, nil
		}
		return nil, fmt.Errorf("youtube: unknown mode %q", mode)
	}
	return nil, fmt.Errorf("unknown platform %q", name)
}
