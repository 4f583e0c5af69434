package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PairMode selects which side of a long/short pair file becomes tasks.
type PairMode string

const (
	PairPaired PairMode = "paired"
	PairLong   PairMode = "long"
	PairShort  PairMode = "short"
)

// LoadPairs imports the legacy JSON pair format used by earlier experiment
// scripts: a list of pair groups, each a list of objects with "long" and/or
// "short" entries holding a video URL or bare ID. Every entry becomes a
// single-seed task. The experiment name defaults to the file stem.
func LoadPairs(path string, mode PairMode) (*Config, error) {
	switch mode {
	case PairPaired, PairLong, PairShort:
	default:
		return nil, fmt.Errorf("unknown pair mode %q", mode)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pairs: %w", err)
	}

	var groups [][]map[string]string
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse pairs %s: %w", path, err)
	}

	cfg := Default()
	cfg.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	for _, group := range groups {
		for _, item := range group {
			if mode != PairShort {
				if raw, ok := item["long"]; ok {
					cfg.Tasks = append(cfg.Tasks, Task{
						VideoIDs: []string{lastPathSegment(raw)},
						Mode:     ModeLong,
					})
				}
			}
			if mode != PairLong {
				if raw, ok := item["short"]; ok {
					cfg.Tasks = append(cfg.Tasks, Task{
						VideoIDs: []string{lastPathSegment(raw)},
						Mode:     ModeShort,
					})
				}
			}
		}
	}

	if len(cfg.Tasks) == 0 {
		return nil, fmt.Errorf("no tasks found in %s for mode %q", path, mode)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// lastPathSegment strips a URL down to its final path element, which is the
// video ID in both watch and shorts URLs. Bare IDs pass through unchanged.
func lastPathSegment(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	// watch URLs carry the ID in the query string instead
	if i := strings.Index(s, "watch?v="); i >= 0 {
		s = s[i+len("watch?v="):]
	}
	if i := strings.IndexByte(s, '&'); i >= 0 {
		s = s[:i]
	}
	return s
}
