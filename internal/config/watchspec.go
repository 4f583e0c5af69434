package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WatchSpec expresses how long the puppet watches each video. It is either
// a fixed duration ("45s", "2m") or a fraction of the video's own length
// ("35%" or a bare float like 0.35). A fixed duration never exceeds the
// video length.
type WatchSpec struct {
	Seconds  float64 // fixed watch time, seconds
	Fraction float64 // fraction of video length; takes precedence when > 0
}

// IsZero reports whether the spec is unset.
func (w WatchSpec) IsZero() bool {
	return w.Seconds == 0 && w.Fraction == 0
}

// ParseWatchSpec parses a watch_time value.
func ParseWatchSpec(s string) (WatchSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return WatchSpec{}, fmt.Errorf("empty watch_time")
	}
	if strings.HasSuffix(s, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil || pct <= 0 || pct > 100 {
			return WatchSpec{}, fmt.Errorf("invalid watch_time percentage %q", s)
		}
		return WatchSpec{Fraction: pct / 100}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return WatchSpec{}, fmt.Errorf("watch_time must be positive, got %q", s)
		}
		return WatchSpec{Seconds: d.Seconds()}, nil
	}
	// Bare numbers: fractions below 1 mirror the historical float
	// convention; anything else is seconds.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f <= 0 {
			return WatchSpec{}, fmt.Errorf("watch_time must be positive, got %q", s)
		}
		if f < 1 {
			return WatchSpec{Fraction: f}, nil
		}
		return WatchSpec{Seconds: f}, nil
	}
	return WatchSpec{}, fmt.Errorf("invalid watch_time %q", s)
}

// Duration resolves the spec against a concrete video length.
func (w WatchSpec) Duration(videoLen time.Duration) time.Duration {
	if w.Fraction > 0 {
		return time.Duration(float64(videoLen) * w.Fraction)
	}
	d := time.Duration(w.Seconds * float64(time.Second))
	if d > videoLen {
		return videoLen
	}
	return d
}

// String renders the spec in the form ParseWatchSpec accepts.
func (w WatchSpec) String() string {
	if w.Fraction > 0 {
		return fmt.Sprintf("%g%%", w.Fraction*100)
	}
	return time.Duration(w.Seconds * float64(time.Second)).String()
}

// UnmarshalYAML accepts "45s", "35%", 10, or 0.35.
func (w *WatchSpec) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		// Not a string scalar; fall back to raw value text.
		s = node.Value
	}
	spec, err := ParseWatchSpec(s)
	if err != nil {
		return err
	}
	*w = spec
	return nil
}

// MarshalYAML emits the canonical string form.
func (w WatchSpec) MarshalYAML() (interface{}, error) {
	return w.String(), nil
}
