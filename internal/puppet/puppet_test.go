package puppet

import (
	"context"
	"testing"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidaudit/internal/config"
)

// stubPlatform behaves like the long-form surface but answers restriction
// checks and advances from canned state instead of a live page.
type stubPlatform struct {
	youtubeLong
	restriction *Restriction
	dismissed   bool
	advanced    int
}

func (s *stubPlatform) Advance(*rod.Page) error {
	s.advanced++
	return nil
}

func (s *stubPlatform) CheckRestriction(*rod.Page) (*Restriction, error) {
	if s.restriction == nil {
		return nil, nil
	}
	r := *s.restriction
	return &r, nil
}

func (s *stubPlatform) DismissRestriction(*rod.Page) error {
	s.dismissed = true
	return nil
}

// stubLauncher records teardown calls.
type stubLauncher struct {
	calls []string
}

func (s *stubLauncher) Kill()    { s.calls = append(s.calls, "kill") }
func (s *stubLauncher) Cleanup() { s.calls = append(s.calls, "cleanup") }

func TestFor(t *testing.T) {
	long, err := For("youtube", config.ModeLong)
	require.NoError(t, err)
	assert.Equal(t, config.ModeLong, long.Mode())
	assert.Equal(t, "youtube", long.Name())

	short, err := For("", config.ModeShort)
	require.NoError(t, err)
	assert.Equal(t, config.ModeShort, short.Mode())

	_, err = For("dailymotion", config.ModeLong)
	assert.Error(t, err)

	_, err = For("youtube", config.Mode("vr"))
	assert.Error(t, err)
}

func TestWatchURL(t *testing.T) {
	long, short := youtubeLong{}, youtubeShort{}
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", long.WatchURL("abc123"))
	assert.Equal(t, "https://www.youtube.com/shorts/abc123", short.WatchURL("abc123"))
}

func TestParseVideoID(t *testing.T) {
	long, short := youtubeLong{}, youtubeShort{}

	tests := []struct {
		name     string
		platform Platform
		in, want string
	}{
		{"long full url", long, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"long with params", long, "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=10s", "dQw4w9WgXcQ"},
		{"long bare id", long, "dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"long wrong surface", long, "https://www.youtube.com/shorts/AAA", ""},
		{"short full url", short, "https://www.youtube.com/shorts/AAA111", "AAA111"},
		{"short with query", short, "https://www.youtube.com/shorts/AAA111?feature=share", "AAA111"},
		{"short bare id", short, "AAA111", "AAA111"},
		{"short wrong surface", short, "https://www.youtube.com/watch?v=AAA", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.platform.ParseVideoID(tt.in))
		})
	}
}

func TestParseAfterThumbnailStyle(t *testing.T) {
	style := `background-image: url("https://i.ytimg.com/vi/QQ22ww/oardefault.jpg");`
	assert.Equal(t, "QQ22ww", parseAfter(style, "vi/"))
}

func TestNewRequiresPlatform(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestReport(t *testing.T) {
	plat, err := For("youtube", config.ModeLong)
	require.NoError(t, err)
	wt, err := config.ParseWatchSpec("45s")
	require.NoError(t, err)

	p, err := New(Options{Platform: plat, WatchTime: wt})
	require.NoError(t, err)
	p.trainingIDs = []string{"a", "b"}
	p.seedID = "b"
	p.path = []string{"c", "d"}
	p.sidebar = [][]string{{"e", "f"}, {"g"}}
	p.restricted = []Restriction{{URL: "u", Reason: "Sign in to confirm your age"}}

	got := p.Report()
	assert.Equal(t, []string{"a", "b"}, got.TrainingIDs)
	assert.Equal(t, "b", got.SeedID)
	assert.Equal(t, config.ModeLong, got.PlayerMode)
	assert.Equal(t, "youtube", got.Platform)
	assert.Equal(t, "45s", got.WatchTime)
	assert.Equal(t, []string{"c", "d"}, got.Recommendations.Autoplay)
	assert.Len(t, got.Recommendations.Restricted, 1)

	// Report copies, later mutation must not leak into the result.
	p.path = append(p.path, "x")
	assert.Equal(t, []string{"c", "d"}, got.Recommendations.Autoplay)
}

func TestHandleRestrictionSignInAborts(t *testing.T) {
	stub := &stubPlatform{restriction: &Restriction{Reason: "Sign in to confirm your age"}}
	var events []Event
	p, err := New(Options{Platform: stub, OnEvent: func(ev Event) { events = append(events, ev) }})
	require.NoError(t, err)

	err = p.handleRestriction("https://www.youtube.com/watch?v=abc")
	require.ErrorIs(t, err, ErrRestricted)

	require.Len(t, p.restricted, 1)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", p.restricted[0].URL)
	assert.Equal(t, "Sign in to confirm your age", p.restricted[0].Reason)
	assert.False(t, stub.dismissed)

	require.Len(t, events, 1)
	assert.Equal(t, EventRestrictedVideo, events[0].Type)
}

func TestHandleRestrictionDismissesOtherInterstitials(t *testing.T) {
	stub := &stubPlatform{restriction: &Restriction{Reason: "Video unavailable in your country"}}
	p, err := New(Options{Platform: stub})
	require.NoError(t, err)

	require.NoError(t, p.handleRestriction("u"))
	assert.True(t, stub.dismissed)
	assert.Len(t, p.restricted, 1)
}

func TestHandleRestrictionUnobstructed(t *testing.T) {
	p, err := New(Options{Platform: &stubPlatform{}})
	require.NoError(t, err)

	require.NoError(t, p.handleRestriction("u"))
	assert.Empty(t, p.restricted)
}

func TestCloseKillsUnconnectedBrowser(t *testing.T) {
	p, err := New(Options{Platform: &stubPlatform{}})
	require.NoError(t, err)

	// Launch succeeded but Connect never did: the browser process is
	// alive and only the launcher knows about it.
	l := &stubLauncher{}
	p.launcher = l

	require.NoError(t, p.Close())
	assert.Equal(t, []string{"kill", "cleanup"}, l.calls)

	require.NoError(t, p.Close())
	assert.Equal(t, []string{"kill", "cleanup"}, l.calls, "Close must be idempotent")
}

func TestAdvanceSurfacesCancellation(t *testing.T) {
	stub := &stubPlatform{}
	p, err := New(Options{Platform: stub})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	budget := 3
	err = p.advance(ctx, "https://www.youtube.com/watch?v=before", &budget)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stub.advanced)
}

func TestRecommendationCounts(t *testing.T) {
	r := Recommendations{
		Autoplay: []string{"a", "b", "c"},
		Sidebar:  [][]string{{"d"}, {"e", "f"}},
		Preload:  [][]string{{"g"}},
	}
	autoplay, sidebar, preload := r.Counts()
	assert.Equal(t, 3, autoplay)
	assert.Equal(t, 3, sidebar)
	assert.Equal(t, 1, preload)
}
