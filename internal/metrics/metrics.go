// Package metrics exposes per-job filtering metrics in Prometheus format.
package metrics

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "m3uclean"

// Job run status label values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Recorder holds the job metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	recordsRemoved *prometheus.CounterVec
	linesFixed     *prometheus.CounterVec
	recordsKept    *prometheus.GaugeVec
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	lastSuccess    *prometheus.GaugeVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		recordsRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_removed_total",
			Help:      "Total number of playlist records removed by group exclusion",
		}, []string{"job"}),
		linesFixed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_fixed_total",
			Help:      "Total number of metadata lines changed by the comma fix",
		}, []string{"job"}),
		recordsKept: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_kept",
			Help:      "Number of records written by the last successful run",
		}, []string{"job"}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Total number of job runs by outcome",
		}, []string{"job", "status"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time taken to fetch, filter and write a playlist",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}, []string{"job"}),
	}
}

// Registry returns the registry the metrics are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveSuccess records a completed job.
func (r *Recorder) ObserveSuccess(job string, removed, fixed, kept int, duration time.Duration, finished time.Time) {
	r.recordsRemoved.WithLabelValues(job).Add(float64(removed))
	r.linesFixed.WithLabelValues(job).Add(float64(fixed))
	r.recordsKept.WithLabelValues(job).Set(float64(kept))
	r.jobRuns.WithLabelValues(job, StatusSuccess).Inc()
	r.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	r.lastSuccess.WithLabelValues(job).Set(float64(finished.Unix()))
}

// ObserveFailure records a failed job.
func (r *Recorder) ObserveFailure(job string, duration time.Duration) {
	r.jobRuns.WithLabelValues(job, StatusFailed).Inc()
	r.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// WriteTextfile writes the registry to path in the node_exporter textfile
// collector format. The parent directory must exist.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", filepath.Clean(path), err)
	}
	return nil
}
