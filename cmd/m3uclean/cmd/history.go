package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jmylchreest/m3uclean/internal/models"
	"github.com/jmylchreest/m3uclean/pkg/format"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var historyCmd = &cobra.Command{
	Use:   "history [job]",
	Short: "Show recorded job runs",
	Long: `Show the most recent job runs stored in the run history database,
newest first. Requires history.enabled in configuration.

With a job name, only that job's runs are listed and the time of its last
successful run is printed. With --run, the records of a single run are
listed by its run ID.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", 20, "maximum number of runs to show")
	historyCmd.Flags().String("output", "table", "output format: table or yaml")
	historyCmd.Flags().String("run", "", "show the records of the run with this ID")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return errors.New("run history is disabled (set history.enabled: true)")
	}

	limit, _ := cmd.Flags().GetInt("limit")
	output, _ := cmd.Flags().GetString("output")
	if output != "table" && output != "yaml" {
		return fmt.Errorf("unknown output format %q (expected table or yaml)", output)
	}
	var job string
	if len(args) == 1 {
		job = args[0]
	}
	var runID models.ULID
	if raw, _ := cmd.Flags().GetString("run"); raw != "" {
		if job != "" {
			return errors.New("--run cannot be combined with a job name")
		}
		if runID, err = models.ParseULID(raw); err != nil {
			return fmt.Errorf("--run: %w", err)
		}
	}

	ctx := commandContext(cmd)
	a, err := newApp(ctx, cmd, cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var records []*models.RunRecord
	if runID.IsZero() {
		records, err = a.history.ListRecent(ctx, job, limit)
	} else {
		records, err = a.history.ListRun(ctx, runID)
	}
	if err != nil {
		return fmt.Errorf("listing run history: %w", err)
	}

	w := cmd.OutOrStdout()
	if output == "yaml" {
		data, err := yaml.Marshal(records)
		if err != nil {
			return fmt.Errorf("marshaling run history: %w", err)
		}
		_, err = w.Write(data)
		return err
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}

	if job != "" {
		last, err := a.history.LastSuccess(ctx, job)
		if err != nil {
			return fmt.Errorf("looking up last successful run: %w", err)
		}
		var at time.Time
		if last != nil {
			at = last.FinishedAt
		}
		fmt.Fprintf(w, "last success: %s\n\n", format.RelativeTime(at))
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tJOB\tSTATUS\tREMOVED\tFIXED\tKEPT\tSIZE\tDURATION\tRUN")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			format.RelativeTimeShort(rec.StartedAt),
			rec.JobName,
			rec.Status,
			format.Count(rec.Removed),
			format.Count(rec.Fixed),
			format.Count(rec.Kept),
			format.Bytes(rec.OutputBytes),
			format.Duration(rec.Duration()),
			rec.RunID,
		)
	}
	return tw.Flush()
}
