package puppet

import "vidaudit/internal/config"

// Recommendations groups everything scraped along one autoplay walk. Sidebar
// and preload entries are recorded per hop, autoplay is the path itself.
type Recommendations struct {
	Autoplay   []string      `json:"autoplay_rec"`
	Sidebar    [][]string    `json:"sidebar_rec"`
	Preload    [][]string    `json:"preload_rec"`
	Restricted []Restriction `json:"restricted"`
}

// Counts reports the number of collected entries per source.
func (r Recommendations) Counts() (autoplay, sidebar, preload int) {
	autoplay = len(r.Autoplay)
	for _, hop := range r.Sidebar {
		sidebar += len(hop)
	}
	for _, hop := range r.Preload {
		preload += len(hop)
	}
	return autoplay, sidebar, preload
}

// Result is the persisted outcome of one task.
type Result struct {
	TrainingIDs     []string        `json:"training_ids"`
	SeedID          string          `json:"seed_id"`
	PlayerMode      config.Mode     `json:"player_mode"`
	Platform        string          `json:"platform"`
	WatchTime       string          `json:"watch_time"`
	Recommendations Recommendations `json:"recommendations"`
}

// Event types emitted while a task runs.
const (
	EventTrainingProgress   = "training_progress"
	EventCollectionProgress = "collection_progress"
	EventRestrictedVideo    = "restricted_video"
)

// Event is a progress notification from a running puppet.
type Event struct {
	Type    string
	VideoID string
	URL     string
	Reason  string
	Current int
	Total   int
}

// EventFunc receives progress events. May be nil.
type EventFunc func(Event)
