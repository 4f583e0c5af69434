// Package dashboard renders a live terminal view of an experiment's
// status.json, refreshing on file change with a polling fallback.
package dashboard

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"vidaudit/internal/state"
)

const pollInterval = 2 * time.Second

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	footerStyle = lipgloss.NewStyle().Faint(true)

	statusStyles = map[string]lipgloss.Style{
		state.StatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		state.StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		state.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		state.StatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

type snapshotMsg struct{ snap *state.Snapshot }

type loadErrMsg struct{ err error }

type tickMsg time.Time

type fileChangedMsg struct{}

// Model is the bubbletea model for the status dashboard.
type Model struct {
	dir     string
	watcher *fsnotify.Watcher

	snap *state.Snapshot
	err  error
	bar  progress.Model
}

// NewModel builds a dashboard for the experiment directory. watcher may be
// nil; the dashboard then relies on polling alone.
func NewModel(dir string, watcher *fsnotify.Watcher) Model {
	return Model{
		dir:     dir,
		watcher: watcher,
		bar:     progress.New(progress.WithDefaultGradient()),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadCmd(), tickCmd()}
	if m.watcher != nil {
		cmds = append(cmds, watchCmd(m.watcher))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-20, 60)
	case snapshotMsg:
		m.snap = msg.snap
		m.err = nil
	case loadErrMsg:
		m.err = msg.err
	case tickMsg:
		return m, tea.Batch(m.loadCmd(), tickCmd())
	case fileChangedMsg:
		cmds := []tea.Cmd{m.loadCmd()}
		if m.watcher != nil {
			cmds = append(cmds, watchCmd(m.watcher))
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("vidaudit") + "\n\n")

	switch {
	case m.err != nil && os.IsNotExist(m.err):
		b.WriteString(labelStyle.Render("waiting for status.json in ") + valueStyle.Render(m.dir) + "\n")
	case m.err != nil:
		b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
	case m.snap == nil:
		b.WriteString(labelStyle.Render("loading...") + "\n")
	default:
		m.renderSnapshot(&b)
	}

	b.WriteString("\n" + footerStyle.Render("q: quit"))
	return b.String()
}

func (m Model) renderSnapshot(b *strings.Builder) {
	s := m.snap
	statusStyle, ok := statusStyles[s.Status]
	if !ok {
		statusStyle = valueStyle
	}

	row(b, "experiment", valueStyle.Render(s.ExperimentID))
	row(b, "status", statusStyle.Render(s.Status))
	row(b, "elapsed", valueStyle.Render((time.Duration(s.ElapsedSeconds)*time.Second).String()))
	if s.Error != "" {
		row(b, "error", errorStyle.Render(s.Error))
	}
	b.WriteString("\n")

	bp := s.BatchProgress
	done := bp.CompletedTasks + bp.FailedTasks
	pct := 0.0
	if bp.TotalTasks > 0 {
		pct = float64(done) / float64(bp.TotalTasks)
	}
	b.WriteString(fmt.Sprintf("  %s %d/%d tasks (%d failed)\n",
		m.bar.ViewAs(pct), done, bp.TotalTasks, bp.FailedTasks))
	b.WriteString("\n")

	if len(s.CurrentTasks) > 0 {
		b.WriteString(labelStyle.Render("  current tasks") + "\n")
		taskIDs := make([]string, 0, len(s.CurrentTasks))
		for id := range s.CurrentTasks {
			taskIDs = append(taskIDs, id)
		}
		sort.Strings(taskIDs)
		for _, id := range taskIDs {
			modes := s.CurrentTasks[id]
			modeNames := make([]string, 0, len(modes))
			for mode := range modes {
				modeNames = append(modeNames, mode)
			}
			sort.Strings(modeNames)
			for _, mode := range modeNames {
				tp := modes[mode]
				b.WriteString(fmt.Sprintf("    %s [%s] %s %s\n",
					valueStyle.Render(id), mode, tp.Phase, phaseProgress(tp)))
			}
		}
		b.WriteString("\n")
	}

	h := s.Health
	row(b, "health", valueStyle.Render(fmt.Sprintf(
		"%d ok, %d failed, %d retries, %d restricted",
		h.SuccessfulRuns, h.FailedRuns, h.Retries, h.RestrictedVideos)))

	d := s.DataCollected
	row(b, "collected", valueStyle.Render(fmt.Sprintf(
		"%d recs (%d autoplay, %d sidebar, %d preload)",
		d.TotalRecommendations, d.AutoplayPaths, d.SidebarRecs, d.PreloadRecs)))
}

func phaseProgress(tp state.TaskProgress) string {
	switch tp.Phase {
	case state.PhaseTraining:
		return fmt.Sprintf("%d/%d", tp.TrainingProgress.Current, tp.TrainingProgress.Total)
	case state.PhaseCollection:
		return fmt.Sprintf("%d/%d", tp.CollectionProgress.Current, tp.CollectionProgress.Total)
	}
	return ""
}

func row(b *strings.Builder, label, value string) {
	b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render(label+":"), value))
}

func (m Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		snap, err := state.Load(m.dir)
		if err != nil {
			return loadErrMsg{err: err}
		}
		return snapshotMsg{snap: snap}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// watchCmd blocks on the next fsnotify event for status.json.
func watchCmd(w *fsnotify.Watcher) tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return nil
				}
				if strings.HasSuffix(ev.Name, state.StatusFile) {
					return fileChangedMsg{}
				}
			case _, ok := <-w.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

// Run shows the dashboard until the user quits.
func Run(dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		// The tracker replaces status.json by rename, so watch the
		// directory rather than the file.
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			watcher = nil
		}
	} else {
		watcher = nil
	}
	if watcher != nil {
		defer watcher.Close()
	}

	_, err = tea.NewProgram(NewModel(dir, watcher), tea.WithAltScreen()).Run()
	return err
}
