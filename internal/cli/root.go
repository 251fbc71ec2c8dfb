// Package cli implements the conveyor command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Default locations for the runner's local state.
const (
	defaultLogDir      = ".conveyor/logs"
	defaultHistoryPath = ".conveyor/history.jsonl"
	defaultToolCache   = ".conveyor/tools"
)

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "conveyor",
		Short:        "conveyor — staged CI pipeline runner",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newPlanCmd(),
		newGraphCmd(),
		newHistoryCmd(),
		newSubmitCmd(),
	)
	return cmd
}
