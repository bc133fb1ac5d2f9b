package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [job...]",
	Short: "Run configured filtering jobs once",
	Long: `Run every job from the configuration file, or only the named jobs.

Each job reads its source (a URL, a local path, or - for stdin), drops the
excluded groups and writes the destination atomically. A summary table is
printed to stderr when all jobs have finished.`,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindFlags(cmd, map[string]string{
			"runner.concurrency":   "concurrency",
			"runner.base_dir":      "base-dir",
			"runner.fail_on_error": "fail-on-error",
		})
	},
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("concurrency", 1, "number of jobs run in parallel")
	runCmd.Flags().String("base-dir", "", "directory local paths are resolved against")
	runCmd.Flags().Bool("fail-on-error", false, "exit non-zero when any job fails")
	runCmd.Flags().Bool("quiet", false, "do not print the run summary")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Jobs) == 0 {
		return errNoJobs
	}
	jobs, err := cfg.SelectJobs(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(commandContext(cmd), slog.Default())
	defer cancel()

	a, err := newApp(ctx, cmd, cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	r, err := a.runner()
	if err != nil {
		return err
	}

	report, err := r.Run(ctx, jobs)
	if err != nil {
		return fmt.Errorf("running jobs: %w", err)
	}

	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		if err := report.WriteSummary(cmd.ErrOrStderr()); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
	}

	return jobFailureError(cfg, report)
}

// commandContext returns cmd's context, or Background when the command was
// invoked without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
