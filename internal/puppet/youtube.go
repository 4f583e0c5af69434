package puppet

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"vidaudit/internal/config"
)

const (
	youtubeWatchURL  = "https://www.youtube.com/watch?v="
	youtubeShortsURL = "https://www.youtube.com/shorts/"
)

// youtubeLong drives the regular desktop watch page. The next video on the
// autoplay path is reached with Shift+N, recommendations come from the
// sidebar column.
type youtubeLong struct{}

func (youtubeLong) Name() string      { return "youtube" }
func (youtubeLong) Mode() config.Mode { return config.ModeLong }

func (youtubeLong) WatchURL(videoID string) string { return youtubeWatchURL + videoID }

func (youtubeLong) ParseVideoID(rawURL string) string {
	return parseAfter(rawURL, "watch?v=")
}

func (youtubeLong) VideoXPath() string {
	return `//div[@id='movie_player']//video`
}

func (youtubeLong) Advance(page *rod.Page) error {
	return page.KeyActions().
		Press(input.ShiftLeft).
		Type(input.KeyN).
		Release(input.ShiftLeft).
		Do()
}

func (youtubeLong) Recommendations(page *rod.Page) ([]string, error) {
	sidebar, err := page.ElementX(`.//ytd-watch-next-secondary-results-renderer`)
	if err != nil {
		return nil, err
	}
	thumbs, err := sidebar.ElementsX(`.//a[@id='thumbnail']`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, t := range thumbs {
		href, err := t.Attribute("href")
		if err != nil || href == nil {
			continue
		}
		if id := parseAfter(*href, "watch?v="); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (youtubeLong) CheckRestriction(page *rod.Page) (*Restriction, error) {
	has, el, err := page.HasX(`.//div[@id='player']/yt-playability-error-supported-renderers`)
	if err != nil || !has {
		return nil, err
	}
	if hidden, _ := el.Attribute("hidden"); hidden != nil {
		return nil, nil
	}
	reason := ""
	if info, err := el.ElementX(`.//div[@id='info']`); err == nil {
		reason, _ = info.Text()
	}
	return &Restriction{Reason: strings.TrimSpace(reason)}, nil
}

func (youtubeLong) DismissRestriction(page *rod.Page) error {
	el, err := page.ElementX(`.//div[@id='player']/yt-playability-error-supported-renderers//button`)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// youtubeShort drives the vertical shorts feed. The feed is advanced with
// ArrowDown, the upcoming videos are read out of the preloaded reel items.
type youtubeShort struct{}

func (youtubeShort) Name() string      { return "youtube" }
func (youtubeShort) Mode() config.Mode { return config.ModeShort }

func (youtubeShort) WatchURL(videoID string) string { return youtubeShortsURL + videoID }

func (youtubeShort) ParseVideoID(rawURL string) string {
	return parseAfter(rawURL, "shorts/")
}

func (youtubeShort) VideoXPath() string {
	return `//ytd-reel-video-renderer[@is-active]//video`
}

func (youtubeShort) Advance(page *rod.Page) error {
	return page.KeyActions().Type(input.ArrowDown).Do()
}

func (youtubeShort) Recommendations(page *rod.Page) ([]string, error) {
	// Preloaded reel items carry their thumbnail as an inline
	// background-image pointing at i.ytimg.com/vi/<id>/.
	reels, err := page.ElementsX(`.//ytd-reel-video-renderer[not(@is-active)]//div[@id='player-container']`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, r := range reels {
		style, err := r.Attribute("style")
		if err != nil || style == nil {
			continue
		}
		if id := parseAfter(*style, "vi/"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (youtubeShort) CheckRestriction(page *rod.Page) (*Restriction, error) {
	has, el, err := page.HasX(`.//ytd-reel-video-renderer[@is-active]//yt-playability-error-supported-renderers`)
	if err != nil || !has {
		return nil, err
	}
	if hidden, _ := el.Attribute("hidden"); hidden != nil {
		return nil, nil
	}
	reason := ""
	if info, err := el.ElementX(`.//div[@id='container']`); err == nil {
		reason, _ = info.Text()
	}
	return &Restriction{Reason: strings.TrimSpace(reason)}, nil
}

func (youtubeShort) DismissRestriction(page *rod.Page) error {
	el, err := page.ElementX(`.//ytd-reel-video-renderer[@is-active]//button-view-model//button`)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// parseAfter returns the path or query segment immediately following marker,
// trimmed of any trailing path or query parts. A raw video id (no marker
// present, no separators) is returned as is.
func parseAfter(s, marker string) string {
	if i := strings.Index(s, marker); i >= 0 {
		s = s[i+len(marker):]
	} else if strings.ContainsAny(s, "/?=") {
		return ""
	}
	for _, sep := range []string{"&", "?", "/", ")"} {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	return s
}
