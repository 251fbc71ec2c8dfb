package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"conveyor/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the run journal",
	}
	cmd.PersistentFlags().StringVar(&path, "file", defaultHistoryPath, "journal file")

	list := &cobra.Command{
		Use:   "list",
		Short: "Print journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			journal, err := history.Open(path)
			if err != nil {
				return err
			}
			for _, e := range journal.Entries() {
				fmt.Fprintf(cmd.OutOrStdout(), "%4d  %s  %s/%s  %-9s  %s\n",
					e.Index, e.RunID, e.Stage, e.Job, e.Status,
					e.Timestamp.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Verify the journal's hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			journal, err := history.Open(path)
			if err != nil {
				return err
			}
			if err := journal.Verify(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d entries)\n", path, len(journal.Entries()))
			return nil
		},
	}

	cmd.AddCommand(list, verify)
	return cmd
}
