package runner

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jmylchreest/m3uclean/internal/models"
	"github.com/jmylchreest/m3uclean/pkg/format"
	"github.com/jmylchreest/m3uclean/pkg/m3u"
)

// JobResult is the outcome of one job.
type JobResult struct {
	Job         string
	Source      string
	Destination string
	Stats       m3u.Stats
	InputBytes  int64
	OutputBytes int64
	Started     time.Time
	Finished    time.Time
	// Err is set when the job failed.
	Err error
}

// Duration returns how long the job took.
func (j JobResult) Duration() time.Duration {
	return j.Finished.Sub(j.Started)
}

// Failed reports whether the job failed.
func (j JobResult) Failed() bool {
	return j.Err != nil
}

func (j JobResult) runRecord(runID models.ULID) *models.RunRecord {
	record := &models.RunRecord{
		RunID:       runID,
		JobName:     j.Job,
		Source:      j.Source,
		Destination: j.Destination,
		Status:      models.RunStatusSuccess,
		Records:     j.Stats.Records,
		Removed:     j.Stats.Removed,
		Fixed:       j.Stats.Fixed,
		Kept:        j.Stats.Kept,
		InputBytes:  j.InputBytes,
		OutputBytes: j.OutputBytes,
		DurationMs:  j.Duration().Milliseconds(),
		StartedAt:   j.Started,
		FinishedAt:  j.Finished,
	}
	if j.Err != nil {
		record.Status = models.RunStatusFailed
		record.Error = j.Err.Error()
	}
	return record
}

// Report is the outcome of a run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	// Results are in job order.
	Results []JobResult
	// Totals sums the stats of successful jobs.
	Totals m3u.Stats
}

func (r *Report) summarize() {
	r.Totals = m3u.Stats{}
	for _, res := range r.Results {
		if res.Err == nil {
			r.Totals.Add(res.Stats)
		}
	}
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Succeeded returns the number of jobs that completed.
func (r *Report) Succeeded() int {
	return len(r.Results) - r.Failed()
}

// Failed returns the number of failed jobs.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Failed() {
			n++
		}
	}
	return n
}

// Err joins the errors of all failed jobs, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", res.Job, res.Err))
		}
	}
	return errors.Join(errs...)
}

// WriteSummary writes a per-job table followed by a totals line.
func (r *Report) WriteSummary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATUS\tREMOVED\tFIXED\tKEPT\tSIZE\tDURATION")
	for _, res := range r.Results {
		status := "ok"
		if res.Failed() {
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			res.Job,
			status,
			format.Count(res.Stats.Removed),
			format.Count(res.Stats.Fixed),
			format.Count(res.Stats.Kept),
			format.Bytes(res.OutputBytes),
			format.Duration(res.Duration()),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d succeeded, %d failed; removed %s records, fixed %s lines in %s\n",
		r.Succeeded(),
		r.Failed(),
		format.Count(r.Totals.Removed),
		format.Count(r.Totals.Fixed),
		format.Duration(r.Duration()),
	)
	if err != nil {
		return err
	}

	for _, res := range r.Results {
		if res.Err != nil {
			if _, err := fmt.Fprintf(w, "  %s: %v\n", res.Job, res.Err); err != nil {
				return err
			}
		}
	}
	return nil
}
