// Package runner executes configured playlist jobs: read the source, filter
// it, write the destination, and record the outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/m3uclean/internal/config"
	"github.com/jmylchreest/m3uclean/internal/metrics"
	"github.com/jmylchreest/m3uclean/internal/models"
	"github.com/jmylchreest/m3uclean/internal/observability"
	"github.com/jmylchreest/m3uclean/internal/repository"
	"github.com/jmylchreest/m3uclean/internal/source"
	"github.com/jmylchreest/m3uclean/internal/urlutil"
	"github.com/jmylchreest/m3uclean/pkg/m3u"
)

// ErrNoJobs is returned when Run is called without jobs.
var ErrNoJobs = errors.New("no jobs to run")

// Sink stores filtered playlist text at identifier.
type Sink interface {
	Write(ctx context.Context, identifier, text string) (int64, error)
}

// Config configures a Runner. Metrics and History are optional.
type Config struct {
	Source source.Source
	Sink   Sink
	// Filter holds the line policy defaults for jobs that do not override it.
	Filter      config.FilterConfig
	Concurrency int

	Metrics         *metrics.Recorder
	MetricsTextfile string

	History          repository.RunRepository
	HistoryRetention int

	Logger *slog.Logger
}

// Runner executes jobs.
type Runner struct {
	source      source.Source
	sink        Sink
	filter      config.FilterConfig
	concurrency int

	metrics         *metrics.Recorder
	metricsTextfile string

	history          repository.RunRepository
	historyRetention int

	logger *slog.Logger
	now    func() time.Time
}

// New creates a Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Source == nil {
		return nil, errors.New("runner requires a source")
	}
	if cfg.Sink == nil {
		return nil, errors.New("runner requires a sink")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Runner{
		source:           cfg.Source,
		sink:             cfg.Sink,
		filter:           cfg.Filter,
		concurrency:      cfg.Concurrency,
		metrics:          cfg.Metrics,
		metricsTextfile:  cfg.MetricsTextfile,
		history:          cfg.History,
		historyRetention: cfg.HistoryRetention,
		logger:           observability.WithComponent(cfg.Logger, "runner"),
		now:              time.Now,
	}, nil
}

// Run executes jobs with at most the configured number in flight. A failed
// job is recorded in its JobResult and does not stop the others. The
// returned error is reserved for failures that prevent the run itself.
func (r *Runner) Run(ctx context.Context, jobs []config.JobConfig) (*Report, error) {
	if len(jobs) == 0 {
		return nil, ErrNoJobs
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runID := models.NewULIDAt(r.now())
	logger := observability.WithCorrelationID(r.logger, runID.String())
	ctx = observability.ContextWithCorrelationID(ctx, runID.String())
	ctx = observability.ContextWithLogger(ctx, logger)

	report := &Report{
		RunID:   runID.String(),
		Started: r.now(),
		Results: make([]JobResult, len(jobs)),
	}

	logger.InfoContext(ctx, "run started",
		slog.Int("jobs", len(jobs)),
		slog.Int("concurrency", r.concurrency),
	)

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			result := r.runJob(ctx, job)
			r.record(ctx, runID, result)
			report.Results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	report.Finished = r.now()
	report.summarize()

	if r.history != nil && r.historyRetention > 0 {
		if pruned, err := r.history.Prune(context.WithoutCancel(ctx), r.historyRetention); err != nil {
			observability.WithError(logger, err).WarnContext(ctx, "pruning run history failed")
		} else if pruned > 0 {
			logger.DebugContext(ctx, "pruned run history", slog.Int64("deleted", pruned))
		}
	}

	if r.metrics != nil && r.metricsTextfile != "" {
		if err := r.metrics.WriteTextfile(r.metricsTextfile); err != nil {
			observability.WithError(logger, err).WarnContext(ctx, "writing metrics textfile failed")
		}
	}

	logger.InfoContext(ctx, "run completed",
		slog.Int("succeeded", report.Succeeded()),
		slog.Int("failed", report.Failed()),
		slog.Int("removed", report.Totals.Removed),
		slog.Int("fixed", report.Totals.Fixed),
		slog.Duration("duration", report.Duration()),
	)

	return report, nil
}

// runJob reads, filters and writes one job. A job whose configuration
// entry is invalid fails without reading its source.
func (r *Runner) runJob(ctx context.Context, job config.JobConfig) (result JobResult) {
	result = JobResult{
		Job:         job.Name,
		Source:      urlutil.Redact(job.Source),
		Destination: job.Destination,
		Started:     r.now(),
	}
	logger := observability.WithJob(observability.LoggerFromContext(ctx), job.Name).With(
		slog.String("source", result.Source),
		slog.String("destination", result.Destination),
	)

	var err error
	defer func() {
		result.Finished = r.now()
		result.Err = err
		if err != nil {
			observability.WithError(logger, err).ErrorContext(ctx, "job failed")
			return
		}
		logger.InfoContext(ctx, "job completed",
			slog.Int("removed", result.Stats.Removed),
			slog.Int("fixed", result.Stats.Fixed),
			slog.Int("kept", result.Stats.Kept),
			slog.Int64("bytes", result.OutputBytes),
			slog.Duration("duration", result.Duration()),
		)
	}()
	defer observability.TimedOperationWithError(ctx, logger, "job", &err)()

	if job.Err != nil {
		err = job.Err
		return result
	}

	if err = ctx.Err(); err != nil {
		return result
	}

	mode, err := m3u.ParseMode(job.EffectiveMode(r.filter))
	if err != nil {
		return result
	}

	doc, err := source.ForEncoding(r.source, job.Encoding).Read(ctx, job.Source)
	if err != nil {
		return result
	}
	result.InputBytes = doc.Bytes

	text, stats, err := m3u.Filter(doc.Text, m3u.NewExclusionSet(job.Exclude...), m3u.Options{
		Mode:            mode,
		SeparateRecords: job.EffectiveSeparateRecords(r.filter),
	})
	if err != nil {
		err = fmt.Errorf("filtering %s: %w", result.Source, err)
		return result
	}
	result.Stats = stats

	n, err := r.sink.Write(ctx, job.Destination, text)
	if err != nil {
		return result
	}
	result.OutputBytes = n

	return result
}

// record updates metrics and stores the history entry for a finished job.
func (r *Runner) record(ctx context.Context, runID models.ULID, result JobResult) {
	if r.metrics != nil {
		if result.Err != nil {
			r.metrics.ObserveFailure(result.Job, result.Duration())
		} else {
			r.metrics.ObserveSuccess(result.Job, result.Stats.Removed, result.Stats.Fixed, result.Stats.Kept, result.Duration(), result.Finished)
		}
	}

	if r.history == nil {
		return
	}
	// History is written even when the run was cancelled.
	if err := r.history.Create(context.WithoutCancel(ctx), result.runRecord(runID)); err != nil {
		logger := observability.WithJob(observability.LoggerFromContext(ctx), result.Job)
		observability.WithError(logger, err).WarnContext(ctx, "storing run history failed")
	}
}
