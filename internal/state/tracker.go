// Package state implements the status-tracking layer: a thread-safe view of
// a running experiment persisted to status.json, so run state is observable
// without parsing logs. Every mutation rewrites the file atomically.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"vidaudit/internal/config"
)

// Experiment status values.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Task phases.
const (
	PhasePending    = "pending"
	PhaseTraining   = "training"
	PhaseCollection = "collection"
	PhaseComplete   = "complete"
	PhaseFailed     = "failed"
)

// Progress is a current/total pair.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// TaskProgress is the live state of one sub-task (one player mode).
type TaskProgress struct {
	VideoID            string      `json:"video_id"`
	Mode               config.Mode `json:"mode"`
	Phase              string      `json:"phase"`
	TrainingProgress   Progress    `json:"training_progress"`
	CollectionProgress Progress    `json:"collection_progress"`
	Status             string      `json:"status"`
	Error              string      `json:"error,omitempty"`
}

// BatchProgress summarizes the batch.
type BatchProgress struct {
	TotalTasks       int `json:"total_tasks"`
	CompletedTasks   int `json:"completed_tasks"`
	FailedTasks      int `json:"failed_tasks"`
	CurrentTaskIndex int `json:"current_task_index"`
}

// Health holds run-health counters.
type Health struct {
	SuccessfulRuns   int `json:"successful_runs"`
	FailedRuns       int `json:"failed_runs"`
	Retries          int `json:"retries"`
	RestrictedVideos int `json:"restricted_videos"`
}

// DataCollected counts collected recommendation records.
type DataCollected struct {
	TotalRecommendations int `json:"total_recommendations"`
	AutoplayPaths        int `json:"autoplay_paths"`
	SidebarRecs          int `json:"sidebar_recs"`
	PreloadRecs          int `json:"preload_recs"`
}

// Snapshot is the full serialized state of an experiment run.
type Snapshot struct {
	ExperimentID   string                             `json:"experiment_id"`
	RunID          string                             `json:"run_id"`
	Status         string                             `json:"status"`
	StartedAt      string                             `json:"started_at,omitempty"`
	UpdatedAt      string                             `json:"updated_at"`
	CompletedAt    string                             `json:"completed_at,omitempty"`
	ElapsedSeconds int                                `json:"elapsed_seconds"`
	Error          string                             `json:"error,omitempty"`
	BatchProgress  BatchProgress                      `json:"batch_progress"`
	CurrentTasks   map[string]map[string]TaskProgress `json:"current_tasks"`
	Health         Health                             `json:"health"`
	DataCollected  DataCollected                      `json:"data_collected"`
}

// StatusFile is the file name a Tracker maintains inside its directory.
const StatusFile = "status.json"

// Tracker maintains a Snapshot behind a mutex and mirrors every change to
// <dir>/status.json.
type Tracker struct {
	mu      sync.Mutex
	dir     string
	path    string
	started time.Time
	snap    Snapshot
}

// NewTracker creates a tracker for an experiment rooted at dir.
func NewTracker(experimentID, dir string) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	t := &Tracker{
		dir:  dir,
		path: filepath.Join(dir, StatusFile),
		snap: Snapshot{
			ExperimentID: experimentID,
			RunID:        uuid.NewString(),
			Status:       StatusPending,
			UpdatedAt:    timestamp(),
			CurrentTasks: map[string]map[string]TaskProgress{},
			BatchProgress: BatchProgress{
				CurrentTaskIndex: -1,
			},
		},
	}
	return t, nil
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// write persists the snapshot. Caller must hold t.mu.
func (t *Tracker) write() error {
	t.snap.UpdatedAt = timestamp()
	if !t.started.IsZero() {
		t.snap.ElapsedSeconds = int(time.Since(t.started).Seconds())
	}

	data, err := json.MarshalIndent(t.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	// Atomic + durable: write a pending file, fsync, rename over the old
	// status so readers never observe a torn document.
	pending, err := renameio.NewPendingFile(t.path)
	if err != nil {
		return fmt.Errorf("create pending status file: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck // no-op after a successful replace

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}

// Start marks the experiment running.
func (t *Tracker) Start(totalTasks int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = time.Now()
	t.snap.Status = StatusRunning
	t.snap.StartedAt = timestamp()
	t.snap.BatchProgress.TotalTasks = totalTasks
	return t.write()
}

// Complete marks the experiment finished.
func (t *Tracker) Complete() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Status = StatusCompleted
	t.snap.CompletedAt = timestamp()
	return t.write()
}

// Fail marks the experiment failed with a reason.
func (t *Tracker) Fail(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Status = StatusFailed
	t.snap.Error = reason
	t.snap.CompletedAt = timestamp()
	return t.write()
}

// SetCurrentTask replaces the current-task view with one task's sub-tasks.
func (t *Tracker) SetCurrentTask(index int, taskID string, tasks map[string]TaskProgress) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.BatchProgress.CurrentTaskIndex = index
	t.snap.CurrentTasks = map[string]map[string]TaskProgress{taskID: tasks}
	return t.write()
}

// UpdateTaskPhase records phase progress for a tracked sub-task. Unknown
// task ids and modes are ignored; progress callbacks may race task cleanup.
func (t *Tracker) UpdateTaskPhase(taskID string, mode config.Mode, phase string, current, total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	modes, ok := t.snap.CurrentTasks[taskID]
	if !ok {
		return nil
	}
	tp, ok := modes[string(mode)]
	if !ok {
		return nil
	}
	tp.Phase = phase
	switch phase {
	case PhaseTraining:
		tp.TrainingProgress = Progress{Current: current, Total: total}
	case PhaseCollection:
		tp.CollectionProgress = Progress{Current: current, Total: total}
	}
	modes[string(mode)] = tp
	return t.write()
}

// ClearCurrentTask removes a finished task from the current view.
func (t *Tracker) ClearCurrentTask(taskID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.snap.CurrentTasks, taskID)
	return t.write()
}

// IncrCompleted bumps the completed-task counter.
func (t *Tracker) IncrCompleted() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.BatchProgress.CompletedTasks++
	return t.write()
}

// IncrFailed bumps the failed-task counter.
func (t *Tracker) IncrFailed() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.BatchProgress.FailedTasks++
	return t.write()
}

// HealthMetric names a Health counter.
type HealthMetric string

const (
	MetricSuccessfulRuns   HealthMetric = "successful_runs"
	MetricFailedRuns       HealthMetric = "failed_runs"
	MetricRetries          HealthMetric = "retries"
	MetricRestrictedVideos HealthMetric = "restricted_videos"
)

// IncrHealth bumps a health counter by n.
func (t *Tracker) IncrHealth(metric HealthMetric, n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch metric {
	case MetricSuccessfulRuns:
		t.snap.Health.SuccessfulRuns += n
	case MetricFailedRuns:
		t.snap.Health.FailedRuns += n
	case MetricRetries:
		t.snap.Health.Retries += n
	case MetricRestrictedVideos:
		t.snap.Health.RestrictedVideos += n
	default:
		return fmt.Errorf("unknown health metric %q", metric)
	}
	return t.write()
}

// AddCollected accumulates data-collection counters.
func (t *Tracker) AddCollected(autoplay, sidebar, preload int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.DataCollected.AutoplayPaths += autoplay
	t.snap.DataCollected.SidebarRecs += sidebar
	t.snap.DataCollected.PreloadRecs += preload
	t.snap.DataCollected.TotalRecommendations += autoplay + sidebar + preload
	return t.write()
}

// Snapshot returns a deep copy safe for concurrent readers.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap.clone()
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.CurrentTasks = make(map[string]map[string]TaskProgress, len(s.CurrentTasks))
	for id, modes := range s.CurrentTasks {
		m := make(map[string]TaskProgress, len(modes))
		for mode, tp := range modes {
			m[mode] = tp
		}
		out.CurrentTasks[id] = m
	}
	return out
}

// Load reads a status.json from dir without constructing a Tracker. Used by
// the status command and the HTTP API when no run is live in-process.
func Load(dir string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, StatusFile))
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse %s: %w", StatusFile, err)
	}
	return &snap, nil
}
