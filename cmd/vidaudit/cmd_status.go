package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vidaudit/internal/dashboard"
	"vidaudit/internal/state"
)

func newStatusCmd() *cobra.Command {
	var (
		dir   string
		noTUI bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of an experiment",
		Long: `Show the status of an experiment by reading its status.json.

By default an interactive dashboard opens and follows the file as the
experiment progresses. With --no-tui the current snapshot is printed as
JSON once and the command exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if noTUI {
				snap, err := state.Load(dir)
				if err != nil {
					if os.IsNotExist(err) {
						return fmt.Errorf("no status.json in %s", dir)
					}
					return err
				}
				out, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			return dashboard.Run(dir)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "experiment directory")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "print the status snapshot as JSON and exit")
	return cmd
}
