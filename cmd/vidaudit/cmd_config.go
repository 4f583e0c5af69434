package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidaudit/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, validate, and import experiment configs",
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigValidateCmd(), newConfigImportCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		name string
		out  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter experiment config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			cfg.Name = name
			cfg.Tasks = []config.Task{
				{VideoIDs: []string{"dQw4w9WgXcQ"}, Mode: config.ModeLong},
			}
			if err := cfg.Write(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "my-experiment", "experiment name")
	cmd.Flags().StringVarP(&out, "output", "o", "experiment.yaml", "output file")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an experiment config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d tasks, platform %s)\n",
				cfgPath, len(cfg.Tasks), cfg.Platform)
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "experiment.yaml", "experiment config file")
	return cmd
}

func newConfigImportCmd() *cobra.Command {
	var (
		mode string
		name string
		out  string
	)

	cmd := &cobra.Command{
		Use:   "import <pairs.json>",
		Short: "Import a legacy video-pair file as an experiment config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadPairs(args[0], config.PairMode(mode))
			if err != nil {
				return err
			}
			if name != "" {
				cfg.Name = name
			}
			if err := cfg.Write(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d tasks)\n", out, len(cfg.Tasks))
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(config.PairPaired), "which pair sides to import: paired, long, or short")
	cmd.Flags().StringVar(&name, "name", "", "override the experiment name")
	cmd.Flags().StringVarP(&out, "output", "o", "experiment.yaml", "output file")
	return cmd
}
