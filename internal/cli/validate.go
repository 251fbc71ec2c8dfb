package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"conveyor/internal/core"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline.yaml>",
		Short: "Check a pipeline file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := core.Load(args[0])
			if err != nil {
				return err
			}
			if p.TargetsFile != "" {
				if _, err := core.LoadManifest(p.TargetsFile); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d stages, %d jobs)\n",
				args[0], len(p.Stages), len(p.Jobs))
			return nil
		},
	}
}
