// Package batch executes an experiment's tasks in waves of workers, with
// retries, randomized cool-downs between waves, and status tracking.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vidaudit/internal/config"
	"vidaudit/internal/metrics"
	"vidaudit/internal/puppet"
	"vidaudit/internal/state"
	"vidaudit/internal/storage"
)

// ErrTasksFailed is returned by Run when at least one task exhausted its
// retries. The batch itself still ran to completion.
var ErrTasksFailed = errors.New("batch: some tasks failed")

// Runner event types.
const (
	EventExperimentStarted   = "experiment_started"
	EventExperimentCompleted = "experiment_completed"
	EventTaskStarted         = "task_started"
	EventTaskRetry           = "task_retry"
	EventTaskCompleted       = "task_completed"
	EventTaskFailed          = "task_failed"
	EventBatchSleep          = "batch_sleep"
)

// Event is a batch-level progress notification.
type Event struct {
	Type    string
	TaskID  string
	Attempt int
	Sleep   time.Duration
	Err     error
}

// EventFunc receives batch events. May be nil.
type EventFunc func(Event)

// Runner drives one experiment to completion.
type Runner struct {
	cfg     *config.Config
	exec    Executor
	tracker *state.Tracker
	store   storage.Backend
	log     *zap.Logger
	onEvent EventFunc

	sleepFn func(ctx context.Context, d time.Duration) error
	rng     *rand.Rand
	rngMu   sync.Mutex

	mu      sync.Mutex
	results map[string]*puppet.Result
}

// New builds a runner. store may be nil to skip persistence; tracker must
// not be nil.
func New(cfg *config.Config, exec Executor, tracker *state.Tracker, store storage.Backend, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		cfg:     cfg,
		exec:    exec,
		tracker: tracker,
		store:   store,
		log:     log.Named("batch"),
		sleepFn: sleepCtx,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		results: map[string]*puppet.Result{},
	}
}

// OnEvent registers a batch event callback. Must be set before Run.
func (r *Runner) OnEvent(fn EventFunc) { r.onEvent = fn }

// TaskID formats the canonical id for the task at index i.
func TaskID(i int) string { return fmt.Sprintf("task_%04d", i) }

// Run executes all tasks. Tasks run in waves of cfg.Workers; between waves
// the runner sleeps a random duration from cfg.Sleep to avoid hammering the
// platform. A failed task does not abort the batch; Run returns
// ErrTasksFailed after the fact. Context cancellation aborts immediately.
func (r *Runner) Run(ctx context.Context) error {
	tasks := r.cfg.Tasks
	if err := r.tracker.Start(len(tasks)); err != nil {
		return err
	}
	metrics.ExperimentRunning.Set(1)
	defer metrics.ExperimentRunning.Set(0)

	r.emit(Event{Type: EventExperimentStarted})
	r.log.Info("experiment started",
		zap.String("experiment", r.cfg.Name),
		zap.Int("tasks", len(tasks)),
		zap.Int("workers", r.cfg.Workers))

	var failed int
	for start := 0; start < len(tasks); start += r.cfg.Workers {
		end := min(start+r.cfg.Workers, len(tasks))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				if err := r.runTask(gctx, i, tasks[i]); err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					r.mu.Lock()
					failed++
					r.mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			r.tracker.Fail(err.Error())
			return err
		}

		if end < len(tasks) {
			d := r.sleepBetweenWaves()
			r.emit(Event{Type: EventBatchSleep, Sleep: d})
			r.log.Info("sleeping between waves", zap.Duration("sleep", d))
			if err := r.sleepFn(ctx, d); err != nil {
				r.tracker.Fail(err.Error())
				return err
			}
		}
	}

	if err := r.tracker.Complete(); err != nil {
		return err
	}
	r.emit(Event{Type: EventExperimentCompleted})
	r.log.Info("experiment completed", zap.Int("failed_tasks", failed))
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrTasksFailed, failed, len(tasks))
	}
	return nil
}

// runTask executes one task with retries and records its outcome.
func (r *Runner) runTask(ctx context.Context, index int, task config.Task) error {
	taskID := TaskID(index)
	log := r.log.With(zap.String("task_id", taskID), zap.String("mode", string(task.Mode)))

	r.trackState(r.tracker.SetCurrentTask(index, taskID, map[string]state.TaskProgress{
		string(task.Mode): {
			VideoID: task.SeedID,
			Mode:    task.Mode,
			Phase:   state.PhasePending,
			Status:  state.StatusRunning,
		},
	}))
	defer func() { r.trackState(r.tracker.ClearCurrentTask(taskID)) }()

	r.emit(Event{Type: EventTaskStarted, TaskID: taskID})

	var lastErr error
	for attempt := 1; attempt <= r.cfg.Retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt > 1 {
			r.emit(Event{Type: EventTaskRetry, TaskID: taskID, Attempt: attempt, Err: lastErr})
			r.trackState(r.tracker.IncrHealth(state.MetricRetries, 1))
			metrics.TaskRetries.Inc()
			log.Warn("retrying task", zap.Int("attempt", attempt), zap.Error(lastErr))
		}

		started := time.Now()
		result, err := r.exec.Execute(ctx, task, r.progressFunc(taskID, task.Mode))
		metrics.TaskDuration.Observe(time.Since(started).Seconds())

		if err == nil {
			r.finishTask(taskID, task.Mode, index, task, result)
			r.emit(Event{Type: EventTaskCompleted, TaskID: taskID})
			log.Info("task completed")
			return nil
		}
		lastErr = err

		// A sign-in wall will block the same walk again; keep the
		// partial result and give up instead of retrying.
		if errors.Is(err, puppet.ErrRestricted) {
			if result != nil {
				r.saveResult(taskID, index, task, result)
			}
			break
		}
	}

	r.trackState(r.tracker.UpdateTaskPhase(taskID, task.Mode, state.PhaseFailed, 0, 0))
	r.trackState(r.tracker.IncrFailed())
	r.trackState(r.tracker.IncrHealth(state.MetricFailedRuns, 1))
	metrics.TasksFailed.Inc()
	r.emit(Event{Type: EventTaskFailed, TaskID: taskID, Err: lastErr})
	log.Error("task failed", zap.Error(lastErr))
	return lastErr
}

// finishTask records a successful task in the tracker, metrics and storage.
func (r *Runner) finishTask(taskID string, mode config.Mode, index int, task config.Task, result *puppet.Result) {
	r.trackState(r.tracker.UpdateTaskPhase(taskID, mode, state.PhaseComplete, 0, 0))
	r.trackState(r.tracker.IncrCompleted())
	r.trackState(r.tracker.IncrHealth(state.MetricSuccessfulRuns, 1))

	autoplay, sidebar, preload := result.Recommendations.Counts()
	r.trackState(r.tracker.AddCollected(autoplay, sidebar, preload))
	metrics.RecommendationsCollected.WithLabelValues("autoplay").Add(float64(autoplay))
	metrics.RecommendationsCollected.WithLabelValues("sidebar").Add(float64(sidebar))
	metrics.RecommendationsCollected.WithLabelValues("preload").Add(float64(preload))
	metrics.TasksCompleted.Inc()
	metrics.LastTaskCompleted.SetToCurrentTime()

	r.saveResult(taskID, index, task, result)
}

func (r *Runner) saveResult(taskID string, index int, task config.Task, result *puppet.Result) {
	r.mu.Lock()
	r.results[taskID] = result
	r.mu.Unlock()

	if r.store == nil {
		return
	}
	meta := &storage.Metadata{
		Experiment: r.cfg.Name,
		TaskIndex:  index,
		Mode:       string(task.Mode),
		SeedIDs:    task.VideoIDs,
	}
	if err := r.store.Save(taskID, result, meta); err != nil {
		r.log.Error("persist result failed", zap.String("task_id", taskID), zap.Error(err))
	}
}

// trackState logs status-tracker write failures. A broken status.json must
// not fail the task, but it cannot stay invisible either.
func (r *Runner) trackState(err error) {
	if err != nil {
		r.log.Warn("status update failed", zap.Error(err))
	}
}

// progressFunc adapts puppet events for one task into tracker and metrics
// updates.
func (r *Runner) progressFunc(taskID string, mode config.Mode) puppet.EventFunc {
	return func(ev puppet.Event) {
		switch ev.Type {
		case puppet.EventTrainingProgress:
			r.trackState(r.tracker.UpdateTaskPhase(taskID, mode, state.PhaseTraining, ev.Current, ev.Total))
		case puppet.EventCollectionProgress:
			r.trackState(r.tracker.UpdateTaskPhase(taskID, mode, state.PhaseCollection, ev.Current, ev.Total))
		case puppet.EventRestrictedVideo:
			r.trackState(r.tracker.IncrHealth(state.MetricRestrictedVideos, 1))
			metrics.RestrictedVideos.Inc()
		}
	}
}

// Results returns the in-memory results keyed by task id.
func (r *Runner) Results() map[string]*puppet.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*puppet.Result, len(r.results))
	for k, v := range r.results {
		out[k] = v
	}
	return out
}

func (r *Runner) sleepBetweenWaves() time.Duration {
	lo, hi := r.cfg.Sleep.Min, r.cfg.Sleep.Max
	if hi <= lo {
		return time.Duration(lo) * time.Second
	}
	r.rngMu.Lock()
	n := lo + r.rng.Intn(hi-lo+1)
	r.rngMu.Unlock()
	return time.Duration(n) * time.Second
}

func (r *Runner) emit(ev Event) {
	if r.onEvent != nil {
		r.onEvent(ev)
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
