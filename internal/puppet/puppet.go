package puppet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"vidaudit/internal/config"
)

// ErrRestricted is returned when the platform gates a video on the autoplay
// path behind a sign-in wall. The walk cannot continue past it.
var ErrRestricted = errors.New("puppet: video restricted behind sign-in")

const (
	defaultNavTimeout = 30 * time.Second
	defaultAttempts   = 5
	// Assumed video length when the player does not report a duration.
	defaultVideoLen = 180 * time.Second

	playbackPoll    = 250 * time.Millisecond
	playbackTimeout = 10 * time.Second
	urlChangePoll   = 500 * time.Millisecond
)

// Options configures a Puppet.
type Options struct {
	Platform  Platform
	WatchTime config.WatchSpec

	Headless    bool
	Incognito   bool
	Adblock     string // unpacked extension dir, loaded when set
	BrowserBin  string
	DebuggerURL string // attach to a running browser instead of launching

	NavTimeout time.Duration // per-navigation budget, default 30s
	Attempts   int           // recoverable-error budget per phase, default 5

	Logger  *zap.Logger
	OnEvent EventFunc
}

func (o *Options) applyDefaults() {
	if o.NavTimeout <= 0 {
		o.NavTimeout = defaultNavTimeout
	}
	if o.Attempts <= 0 {
		o.Attempts = defaultAttempts
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// procLauncher is the part of *launcher.Launcher that Close needs to tear
// down a browser process.
type procLauncher interface {
	Kill()
	Cleanup()
}

// Puppet owns one browser profile for the duration of one task.
type Puppet struct {
	opts     Options
	platform Platform
	log      *zap.Logger

	launcher procLauncher
	browser  *rod.Browser
	page     *rod.Page

	trainingIDs []string
	seedID      string
	path        []string
	sidebar     [][]string
	preload     [][]string
	restricted  []Restriction
}

// New prepares a puppet. Start must be called before any other method.
func New(opts Options) (*Puppet, error) {
	if opts.Platform == nil {
		return nil, errors.New("puppet: platform is required")
	}
	opts.applyDefaults()
	return &Puppet{
		opts:     opts,
		platform: opts.Platform,
		log: opts.Logger.With(
			zap.String("platform", opts.Platform.Name()),
			zap.String("mode", string(opts.Platform.Mode())),
		),
	}, nil
}

// Start launches (or attaches to) the browser and opens the working page.
func (p *Puppet) Start(ctx context.Context) error {
	controlURL := p.opts.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(p.opts.Headless)
		if p.opts.BrowserBin != "" {
			l = l.Bin(p.opts.BrowserBin)
		}
		l = l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l = l.Set(flags.Flag("disable-gpu"))
		if p.opts.Adblock != "" {
			l = l.Set(flags.Flag("load-extension"), p.opts.Adblock)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		p.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	if p.opts.Incognito {
		inc, err := browser.Incognito()
		if err != nil {
			browser.Close()
			return fmt.Errorf("open incognito context: %w", err)
		}
		browser = inc
	}
	p.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		p.Close()
		return fmt.Errorf("open page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1280,
		Height:            1024,
		DeviceScaleFactor: 1,
	}); err != nil {
		p.log.Debug("set viewport failed", zap.Error(err))
	}
	p.page = page
	p.log.Debug("browser ready", zap.Bool("headless", p.opts.Headless))
	return nil
}

// Train plays each training video in order, priming the recommender. The
// last id becomes the seed for the collection walk.
func (p *Puppet) Train(ctx context.Context, videoIDs []string) error {
	if len(videoIDs) == 0 {
		return errors.New("puppet: no training videos")
	}
	for i, id := range videoIDs {
		p.emit(Event{Type: EventTrainingProgress, VideoID: id, Current: i + 1, Total: len(videoIDs)})
		p.log.Info("training on video", zap.String("video_id", id),
			zap.Int("n", i+1), zap.Int("of", len(videoIDs)))
		if err := p.watch(ctx, id); err != nil {
			return fmt.Errorf("train on %s: %w", id, err)
		}
	}
	p.trainingIDs = append([]string(nil), videoIDs...)
	p.seedID = videoIDs[len(videoIDs)-1]
	return nil
}

// Collect walks hops steps down the autoplay path from the seed video,
// scraping recommendations at every stop. Train must have run first.
func (p *Puppet) Collect(ctx context.Context, hops int) error {
	if p.seedID == "" {
		return errors.New("puppet: collect before train")
	}
	budget := p.opts.Attempts
	for step := 1; step <= hops; step++ {
		p.emit(Event{Type: EventCollectionProgress, Current: step, Total: hops})

		before, err := p.currentURL()
		if err != nil {
			return fmt.Errorf("read current url: %w", err)
		}
		if err := p.advance(ctx, before, &budget); err != nil {
			return fmt.Errorf("hop %d: %w", step, err)
		}

		cur, err := p.currentURL()
		if err != nil {
			return fmt.Errorf("read current url: %w", err)
		}
		if err := p.handleRestriction(cur); err != nil {
			return err
		}
		p.scrape()
		p.path = append(p.path, p.platform.ParseVideoID(cur))

		if err := p.watchCurrent(ctx); err != nil {
			p.log.Warn("watching hop failed", zap.String("url", cur), zap.Error(err))
			if budget--; budget <= 0 {
				return fmt.Errorf("hop %d: %w", step, err)
			}
		}
	}
	return nil
}

// advance triggers the next video and waits for the URL to change, retrying
// out of the shared error budget.
func (p *Puppet) advance(ctx context.Context, before string, budget *int) error {
	for {
		if err := p.platform.Advance(p.page); err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		if p.waitURLChange(ctx, before) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if *budget--; *budget <= 0 {
			return errors.New("player did not advance")
		}
		p.log.Warn("player did not advance, retrying", zap.Int("budget", *budget))
	}
}

func (p *Puppet) handleRestriction(url string) error {
	r, err := p.platform.CheckRestriction(p.page)
	if err != nil {
		p.log.Debug("restriction check failed", zap.Error(err))
		return nil
	}
	if r == nil {
		return nil
	}
	r.URL = url
	p.restricted = append(p.restricted, *r)
	p.emit(Event{Type: EventRestrictedVideo, URL: url, Reason: r.Reason})
	p.log.Warn("restricted video on path", zap.String("url", url), zap.String("reason", r.Reason))
	if strings.Contains(strings.ToLower(r.Reason), "sign in") {
		return ErrRestricted
	}
	if err := p.platform.DismissRestriction(p.page); err != nil {
		p.log.Debug("dismiss restriction failed", zap.Error(err))
	}
	return nil
}

func (p *Puppet) scrape() {
	recs, err := p.platform.Recommendations(p.page)
	if err != nil {
		p.log.Debug("scrape recommendations failed", zap.Error(err))
		recs = nil
	}
	switch p.platform.Mode() {
	case config.ModeLong:
		p.sidebar = append(p.sidebar, recs)
	case config.ModeShort:
		p.preload = append(p.preload, recs)
	}
}

// Report assembles the result collected so far.
func (p *Puppet) Report() *Result {
	return &Result{
		TrainingIDs: append([]string(nil), p.trainingIDs...),
		SeedID:      p.seedID,
		PlayerMode:  p.platform.Mode(),
		Platform:    p.platform.Name(),
		WatchTime:   p.opts.WatchTime.String(),
		Recommendations: Recommendations{
			Autoplay:   append([]string(nil), p.path...),
			Sidebar:    p.sidebar,
			Preload:    p.preload,
			Restricted: p.restricted,
		},
	}
}

// Close tears down the page, browser and, when the puppet launched it, the
// browser process itself.
func (p *Puppet) Close() error {
	var errs []error
	if p.page != nil {
		if err := p.page.Close(); err != nil {
			errs = append(errs, err)
		}
		p.page = nil
	}
	browserClosed := false
	if p.browser != nil {
		if err := p.browser.Close(); err != nil {
			errs = append(errs, err)
		} else {
			browserClosed = true
		}
		p.browser = nil
	}
	if p.launcher != nil {
		// Cleanup blocks until the browser process exits. When the
		// browser was launched but never connected or failed to close,
		// nothing else will stop the process, so kill it first.
		if !browserClosed {
			p.launcher.Kill()
		}
		p.launcher.Cleanup()
		p.launcher = nil
	}
	return errors.Join(errs...)
}

// watch navigates to a video and lets it play for the configured watch time.
func (p *Puppet) watch(ctx context.Context, videoID string) error {
	url := p.platform.WatchURL(videoID)
	if err := p.page.Context(ctx).Timeout(p.opts.NavTimeout).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.handleRestriction(url); err != nil {
		return err
	}
	return p.watchCurrent(ctx)
}

// watchCurrent waits for the active video to play and sleeps through the
// configured watch time, capped by the reported video length.
func (p *Puppet) watchCurrent(ctx context.Context) error {
	el, err := p.waitPlaying(ctx)
	if err != nil {
		return err
	}
	length := defaultVideoLen
	if v, err := el.Property("duration"); err == nil {
		if d := v.Num(); d > 0 && !math.IsNaN(d) && !math.IsInf(d, 0) {
			length = time.Duration(d * float64(time.Second))
		}
	}
	wait := p.opts.WatchTime.Duration(length)
	p.log.Debug("watching", zap.Duration("watch", wait), zap.Duration("video_len", length))
	return sleepCtx(ctx, wait)
}

// waitPlaying locates the video element and polls until playback starts,
// reloading the page between attempts.
func (p *Puppet) waitPlaying(ctx context.Context) (*rod.Element, error) {
	var lastErr error
	for attempt := 0; attempt < p.opts.Attempts; attempt++ {
		if attempt > 0 {
			p.log.Warn("video not playing, reloading", zap.Int("attempt", attempt))
			if err := p.page.Reload(); err != nil {
				lastErr = err
				continue
			}
		}
		el, err := p.page.Context(ctx).Timeout(p.opts.NavTimeout).ElementX(p.platform.VideoXPath())
		if err != nil {
			lastErr = err
			continue
		}
		deadline := time.Now().Add(playbackTimeout)
		for time.Now().Before(deadline) {
			paused, err := el.Property("paused")
			if err == nil && !paused.Bool() {
				return el, nil
			}
			if err := sleepCtx(ctx, playbackPoll); err != nil {
				return nil, err
			}
		}
		lastErr = errors.New("video never started playing")
	}
	return nil, fmt.Errorf("wait for playback: %w", lastErr)
}

// waitURLChange polls the page URL until it differs from before or the
// navigation budget runs out.
func (p *Puppet) waitURLChange(ctx context.Context, before string) bool {
	deadline := time.Now().Add(p.opts.NavTimeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}
		cur, err := p.currentURL()
		if err == nil && cur != before {
			return true
		}
		if err := sleepCtx(ctx, urlChangePoll); err != nil {
			return false
		}
	}
	return false
}

func (p *Puppet) currentURL() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *Puppet) emit(ev Event) {
	if p.opts.OnEvent != nil {
		p.opts.OnEvent(ev)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
