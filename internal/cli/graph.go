package cli

import (
	"os"

	"github.com/spf13/cobra"

	"conveyor/internal/core"
	"conveyor/internal/drawer"
)

func newGraphCmd() *cobra.Command {
	var branch, outPath string

	cmd := &cobra.Command{
		Use:   "graph <pipeline.yaml>",
		Short: "Emit the pipeline's stage/job graph as dot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := core.Load(args[0])
			if err != nil {
				return err
			}
			if branch == "" {
				branch = p.Branch()
			}

			d := drawer.New()
			for _, stage := range p.Stages {
				d.AddStage(stage)
				for _, job := range p.StageJobs(stage) {
					status := "pending"
					if !job.Eligible(branch) {
						status = "skipped"
					}
					if err := d.AddJob(stage, job.Name, status); err != nil {
						return err
					}
				}
			}
			for _, job := range p.Jobs {
				for _, need := range job.Needs {
					if err := d.AddNeed(need, job.Name); err != nil {
						return err
					}
				}
			}

			w := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return d.Draw(w)
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "branch used to mark gated jobs")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write dot to a file instead of stdout")
	return cmd
}
