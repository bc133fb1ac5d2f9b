package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/m3uclean/internal/observability"
	"github.com/jmylchreest/m3uclean/internal/scheduler"
	"github.com/jmylchreest/m3uclean/pkg/format"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [job...]",
	Short: "Run jobs repeatedly on a schedule",
	Long: `Run the configured jobs on the watch schedule until interrupted.

The schedule accepts standard 5-field cron expressions and descriptors such
as @hourly or @every 6h. A run that is still in progress when the next one
is due is skipped.`,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindFlags(cmd, map[string]string{
			"watch.schedule":     "schedule",
			"watch.run_on_start": "run-on-start",
		})
	},
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("schedule", "", "cron expression or descriptor (default from config)")
	watchCmd.Flags().Bool("run-on-start", true, "run once immediately before waiting for the schedule")
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	logger := observability.WithComponent(slog.Default(), "watch")
	ctx, cancel := signalContext(commandContext(cmd), logger)
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

	sched, err := scheduler.New(cfg.Watch.Schedule, func(ctx context.Context) error {
		report, err := r.Run(ctx, jobs)
		if err != nil {
			return err
		}
		return report.Err()
	}, scheduler.Options{
		RunOnStart: cfg.Watch.RunOnStart,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("invalid config watch.schedule: %w", err)
	}

	logger.Info("watching playlists",
		slog.String("schedule", cfg.Watch.Schedule),
		slog.String("description", format.ScheduleDescription(cfg.Watch.Schedule)),
		slog.Int("jobs", len(jobs)),
	)

	return sched.Start(ctx)
}
