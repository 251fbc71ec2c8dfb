package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"conveyor/internal/bootstrap"
	"conveyor/internal/core"
	"conveyor/internal/history"
	"conveyor/internal/storage"
)

func newRunCmd() *cobra.Command {
	var (
		branch      string
		targetsPath string
		logDir      string
		historyPath string
		toolCache   string
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Execute a pipeline locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := core.Load(args[0])
			if err != nil {
				return err
			}

			opts := []core.RunnerOption{
				core.WithOutput(cmd.OutOrStdout()),
				core.WithWorkers(workers),
				core.WithLogStore(storage.NewLogStore(logDir)),
			}

			if targetsPath == "" {
				targetsPath = p.TargetsFile
			}
			if targetsPath != "" {
				manifest, err := core.LoadManifest(targetsPath)
				if err != nil {
					return err
				}
				opts = append(opts, core.WithTargets(manifest))
			}
			if historyPath != "" {
				journal, err := history.Open(historyPath)
				if err != nil {
					return err
				}
				opts = append(opts, core.WithJournal(journal))
			}
			if len(p.Tools) > 0 {
				opts = append(opts, core.WithToolchain(bootstrap.NewToolchain(toolCache, p.Tools)))
			}

			res, err := core.NewRunner(opts...).Run(ctx, p, core.RunContext{Branch: branch})
			if err != nil {
				return err
			}
			switch res.Status {
			case core.StatusFailed:
				return errors.New("pipeline failed")
			case core.StatusCanceled:
				return errors.New("pipeline canceled")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "branch to run as (default: the pipeline's primary branch)")
	cmd.Flags().StringVar(&targetsPath, "targets", "", "target manifest (default: the pipeline's targets_file)")
	cmd.Flags().StringVar(&logDir, "log-dir", defaultLogDir, "directory for captured job logs")
	cmd.Flags().StringVar(&historyPath, "history", defaultHistoryPath, "run journal file (empty disables)")
	cmd.Flags().StringVar(&toolCache, "tool-cache", defaultToolCache, "cache directory for fetched tool binaries")
	cmd.Flags().IntVar(&workers, "workers", 4, "max jobs running in parallel within a stage")
	return cmd
}
