package batch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"vidaudit/internal/config"
	"vidaudit/internal/puppet"
)

// Executor runs one task end to end. The runner is agnostic to how a task
// executes, which keeps it testable without a browser.
type Executor interface {
	// Execute trains on the task's videos and collects recommendations.
	// On puppet.ErrRestricted a partial result is returned with the error.
	Execute(ctx context.Context, task config.Task, onProgress puppet.EventFunc) (*puppet.Result, error)
}

// PuppetExecutor executes tasks in a fresh browser profile each.
type PuppetExecutor struct {
	Config *config.Config
	Logger *zap.Logger
}

// Execute implements Executor with a real browser.
func (e *PuppetExecutor) Execute(ctx context.Context, task config.Task, onProgress puppet.EventFunc) (*puppet.Result, error) {
	platform, err := puppet.For(task.Platform, task.Mode)
	if err != nil {
		return nil, err
	}

	p, err := puppet.New(puppet.Options{
		Platform:    platform,
		WatchTime:   e.Config.WatchTime,
		Headless:    e.Config.Headless,
		Incognito:   e.Config.Incognito,
		Adblock:     e.Config.Adblock,
		BrowserBin:  e.Config.BrowserBin,
		DebuggerURL: e.Config.DebuggerURL,
		Logger:      e.Logger,
		OnEvent:     onProgress,
	})
	if err != nil {
		return nil, err
	}
	defer p.Close()

	if err := p.Start(ctx); err != nil {
		return nil, fmt.Errorf("start puppet: %w", err)
	}
	if err := p.Train(ctx, task.VideoIDs); err != nil {
		if errors.Is(err, puppet.ErrRestricted) {
			return p.Report(), err
		}
		return nil, fmt.Errorf("training phase: %w", err)
	}
	if err := p.Collect(ctx, e.Config.Hops); err != nil {
		if errors.Is(err, puppet.ErrRestricted) {
			return p.Report(), err
		}
		return nil, fmt.Errorf("collection phase: %w", err)
	}
	return p.Report(), nil
}
