package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"conveyor/internal/core"
)

func newPlanCmd() *cobra.Command {
	var branch, targetsPath string

	cmd := &cobra.Command{
		Use:   "plan <pipeline.yaml>",
		Short: "Show which jobs would run for a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := core.Load(args[0])
			if err != nil {
				return err
			}
			if branch == "" {
				branch = p.Branch()
			}

			var manifest *core.Manifest
			if targetsPath == "" {
				targetsPath = p.TargetsFile
			}
			if targetsPath != "" {
				if manifest, err = core.LoadManifest(targetsPath); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pipeline %s, branch %s\n", p.Name, branch)
			for _, stage := range p.Stages {
				fmt.Fprintf(out, "stage %s\n", stage)
				for _, job := range p.StageJobs(stage) {
					if !job.Eligible(branch) {
						fmt.Fprintf(out, "  skip %s (branch rules)\n", job.Name)
						continue
					}
					detail := ""
					if job.Run != nil && manifest != nil {
						targets, err := manifest.Select(job.Run)
						if err != nil {
							return err
						}
						detail = fmt.Sprintf(" [%d targets]", len(targets))
					}
					fmt.Fprintf(out, "  run  %s%s\n", job.Name, detail)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "branch to plan for")
	cmd.Flags().StringVar(&targetsPath, "targets", "", "target manifest")
	return cmd
}
