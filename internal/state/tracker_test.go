package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidaudit/internal/config"
)

func readStatus(t *testing.T, dir string) Snapshot {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, StatusFile))
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap
}

func TestTrackerLifecycle(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTracker("exp1", dir)
	require.NoError(t, err)

	require.NoError(t, tr.Start(4))
	snap := readStatus(t, dir)
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, 4, snap.BatchProgress.TotalTasks)
	assert.NotEmpty(t, snap.StartedAt)
	assert.NotEmpty(t, snap.RunID)

	require.NoError(t, tr.IncrCompleted())
	require.NoError(t, tr.IncrFailed())
	require.NoError(t, tr.IncrHealth(MetricRetries, 2))
	require.NoError(t, tr.AddCollected(15, 120, 0))

	require.NoError(t, tr.Complete())
	snap = readStatus(t, dir)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.NotEmpty(t, snap.CompletedAt)
	assert.Equal(t, 1, snap.BatchProgress.CompletedTasks)
	assert.Equal(t, 1, snap.BatchProgress.FailedTasks)
	assert.Equal(t, 2, snap.Health.Retries)
	assert.Equal(t, 135, snap.DataCollected.TotalRecommendations)
	assert.Equal(t, 15, snap.DataCollected.AutoplayPaths)
}

func TestTrackerFail(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTracker("exp1", dir)
	require.NoError(t, err)
	require.NoError(t, tr.Start(1))
	require.NoError(t, tr.Fail("context canceled"))

	snap := readStatus(t, dir)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "context canceled", snap.Error)
}

func TestTaskProgressUpdates(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTracker("exp1", dir)
	require.NoError(t, err)
	require.NoError(t, tr.Start(1))

	tp := TaskProgress{
		VideoID: "abc",
		Mode:    config.ModeLong,
		Phase:   PhasePending,
		Status:  StatusRunning,
	}
	require.NoError(t, tr.SetCurrentTask(0, "task_0000", map[string]TaskProgress{"long": tp}))
	require.NoError(t, tr.UpdateTaskPhase("task_0000", config.ModeLong, PhaseTraining, 1, 3))
	require.NoError(t, tr.UpdateTaskPhase("task_0000", config.ModeLong, PhaseCollection, 7, 15))

	snap := readStatus(t, dir)
	got := snap.CurrentTasks["task_0000"]["long"]
	assert.Equal(t, PhaseCollection, got.Phase)
	assert.Equal(t, Progress{Current: 1, Total: 3}, got.TrainingProgress)
	assert.Equal(t, Progress{Current: 7, Total: 15}, got.CollectionProgress)

	// updates for unknown tasks are ignored, not errors
	require.NoError(t, tr.UpdateTaskPhase("task_9999", config.ModeLong, PhaseTraining, 1, 1))

	require.NoError(t, tr.ClearCurrentTask("task_0000"))
	snap = readStatus(t, dir)
	assert.Empty(t, snap.CurrentTasks)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	tr, err := NewTracker("exp1", t.TempDir())
	require.NoError(t, err)
	require.NoError(t, tr.SetCurrentTask(0, "task_0000", map[string]TaskProgress{
		"long": {VideoID: "abc", Mode: config.ModeLong},
	}))

	snap := tr.Snapshot()
	snap.CurrentTasks["task_0000"]["long"] = TaskProgress{VideoID: "mutated"}

	fresh := tr.Snapshot()
	assert.Equal(t, "abc", fresh.CurrentTasks["task_0000"]["long"].VideoID)
}

func TestConcurrentUpdates(t *testing.T) {
	tr, err := NewTracker("exp1", t.TempDir())
	require.NoError(t, err)
	require.NoError(t, tr.Start(100))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = tr.IncrCompleted()
				_ = tr.IncrHealth(MetricSuccessfulRuns, 1)
			}
		}()
	}
	wg.Wait()

	snap := tr.Snapshot()
	assert.Equal(t, 100, snap.BatchProgress.CompletedTasks)
	assert.Equal(t, 100, snap.Health.SuccessfulRuns)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTracker("exp1", dir)
	require.NoError(t, err)
	require.NoError(t, tr.Start(2))

	snap, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "exp1", snap.ExperimentID)
	assert.Equal(t, StatusRunning, snap.Status)

	_, err = Load(t.TempDir())
	assert.True(t, os.IsNotExist(err))
}
