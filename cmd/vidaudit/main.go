// vidaudit runs recommendation-system audits on video platforms: it trains
// throwaway browser profiles on seed videos, walks the autoplay path, and
// records what the platform recommends along the way.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vidaudit/internal/logging"
)

var (
	verbose bool
	logger  *zap.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vidaudit",
		Short:         "Audit recommendation systems on video platforms",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = logging.New(verbose, "")
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newResultsCmd(),
		newConfigCmd(),
	)
	return root
}
