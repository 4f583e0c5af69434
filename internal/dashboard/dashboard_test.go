package dashboard

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidaudit/internal/state"
)

func TestUpdateQuitKeys(t *testing.T) {
	m := NewModel(t.TempDir(), nil)
	for _, key := range []string{"q", "ctrl+c", "esc"} {
		_, cmd := m.Update(keyMsg(key))
		require.NotNil(t, cmd, "key %q", key)
		assert.IsType(t, tea.QuitMsg{}, cmd(), "key %q", key)
	}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewRendersSnapshot(t *testing.T) {
	m := NewModel(t.TempDir(), nil)
	updated, _ := m.Update(snapshotMsg{snap: &state.Snapshot{
		ExperimentID: "exp-42",
		Status:       state.StatusRunning,
		BatchProgress: state.BatchProgress{
			TotalTasks:     10,
			CompletedTasks: 3,
			FailedTasks:    1,
		},
		CurrentTasks: map[string]map[string]state.TaskProgress{
			"task_0004": {
				"long": {
					VideoID:          "abc",
					Phase:            state.PhaseTraining,
					TrainingProgress: state.Progress{Current: 2, Total: 5},
				},
			},
		},
		Health:        state.Health{SuccessfulRuns: 3, FailedRuns: 1},
		DataCollected: state.DataCollected{TotalRecommendations: 120},
	}})

	view := updated.View()
	assert.Contains(t, view, "exp-42")
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "4/10 tasks")
	assert.Contains(t, view, "task_0004")
	assert.Contains(t, view, "2/5")
	assert.Contains(t, view, "120 recs")
}

func TestViewWaitingForStatus(t *testing.T) {
	m := NewModel(t.TempDir(), nil)
	cmd := m.loadCmd()
	updated, _ := m.Update(cmd())
	assert.Contains(t, updated.View(), "waiting for status.json")
}
