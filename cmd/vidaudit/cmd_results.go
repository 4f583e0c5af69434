package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"vidaudit/internal/storage"
)

func newResultsCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "results [task-id]",
		Short: "List or print stored task results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewFileStore(dir)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				ids, err := store.List()
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			}

			doc, err := store.Load(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "experiment directory")
	return cmd
}
