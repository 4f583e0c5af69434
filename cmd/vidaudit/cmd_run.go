package main

import (
	"errors"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vidaudit/internal/api"
	"vidaudit/internal/batch"
	"vidaudit/internal/config"
	"vidaudit/internal/logging"
	"vidaudit/internal/state"
	"vidaudit/internal/storage"
)

func newRunCmd() *cobra.Command {
	var (
		cfgPath   string
		serveAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an experiment from a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirs(); err != nil {
				return err
			}
			expDir := cfg.ExperimentDir()

			// Replace the console-only logger with one that also
			// keeps a JSON log inside the experiment directory.
			log, err := logging.New(verbose, filepath.Join(expDir, "logs", "run.log"))
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck // best effort on exit
			logger = log

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fileStore, err := storage.NewFileStore(expDir)
			if err != nil {
				return err
			}
			dbStore, err := storage.NewSQLiteStore(filepath.Join(expDir, "results.db"))
			if err != nil {
				return err
			}
			store := storage.NewComposite(fileStore, dbStore)
			defer store.Close()

			tracker, err := state.NewTracker(cfg.Name, expDir)
			if err != nil {
				return err
			}

			runner := batch.New(cfg, &batch.PuppetExecutor{Config: cfg, Logger: log}, tracker, store, log)
			runner.OnEvent(logBatchEvents(log))

			addr := serveAddr
			if addr == "" {
				addr = cfg.API.Addr
			}
			if addr != "" {
				srv := api.New(api.Options{
					Dir:     expDir,
					Tracker: tracker,
					Store:   store,
					Logger:  log,
				})
				go func() {
					if err := srv.ListenAndServe(ctx, addr); err != nil {
						log.Error("api server failed", zap.Error(err))
					}
				}()
			}

			err = runner.Run(ctx)
			switch {
			case errors.Is(err, batch.ErrTasksFailed):
				// The batch finished, results for the surviving
				// tasks are on disk.
				log.Warn("experiment finished with failed tasks", zap.Error(err))
				return err
			case err != nil:
				return err
			}
			log.Info("experiment finished", zap.String("dir", expDir))
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "experiment.yaml", "experiment config file")
	cmd.Flags().StringVar(&serveAddr, "serve", "", "serve the status API on this address while running")
	return cmd
}

func logBatchEvents(log *zap.Logger) batch.EventFunc {
	return func(ev batch.Event) {
		fields := []zap.Field{zap.String("task_id", ev.TaskID)}
		switch ev.Type {
		case batch.EventTaskRetry:
			fields = append(fields, zap.Int("attempt", ev.Attempt), zap.Error(ev.Err))
		case batch.EventTaskFailed:
			fields = append(fields, zap.Error(ev.Err))
		case batch.EventBatchSleep:
			fields = []zap.Field{zap.Duration("sleep", ev.Sleep)}
		case batch.EventExperimentStarted, batch.EventExperimentCompleted:
			fields = nil
		}
		log.Info(ev.Type, fields...)
	}
}
