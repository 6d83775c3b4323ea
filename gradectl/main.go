// Command gradectl evaluates grading graphs from JSON documents.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newCmdRoot().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions are flags shared by every subcommand.
type rootOptions struct {
	logLevel string
	workers  int
}

func newCmdRoot() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "gradectl",
		Short:        "Evaluate grading graphs",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().IntVar(&o.workers, "workers", 0, "batch workers, 0 uses GOMAXPROCS")

	cmd.AddCommand(
		newCmdEvaluate(),
		newCmdBatch(o),
		newCmdTemplate(),
	)
	return cmd
}
