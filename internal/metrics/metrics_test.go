package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_ObserveSuccess(t *testing.T) {
	r := New()
	finished := time.Unix(1760000000, 0)

	r.ObserveSuccess("rtv", 3, 1, 10, 2*time.Second, finished)
	r.ObserveSuccess("rtv", 2, 0, 8, time.Second, finished.Add(time.Hour))

	assert.Equal(t, 5.0, testutil.ToFloat64(r.recordsRemoved.WithLabelValues("rtv")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.linesFixed.WithLabelValues("rtv")))
	assert.Equal(t, 8.0, testutil.ToFloat64(r.recordsKept.WithLabelValues("rtv")), "kept is the last run's value")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.jobRuns.WithLabelValues("rtv", StatusSuccess)))
	assert.Equal(t, float64(finished.Add(time.Hour).Unix()), testutil.ToFloat64(r.lastSuccess.WithLabelValues("rtv")))
}

func TestRecorder_ObserveFailure(t *testing.T) {
	r := New()
	r.ObserveFailure("news", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobRuns.WithLabelValues("news", StatusFailed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.jobRuns.WithLabelValues("news", StatusSuccess)))
}

func TestRecorder_Names(t *testing.T) {
	r := New()
	r.ObserveSuccess("rtv", 1, 1, 1, time.Millisecond, time.Now())
	r.ObserveFailure("rtv", time.Millisecond)

	count, err := testutil.GatherAndCount(r.Registry())
	require.NoError(t, err)
	assert.Positive(t, count)

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"m3uclean_records_removed_total",
		"m3uclean_lines_fixed_total",
		"m3uclean_records_kept",
		"m3uclean_job_runs_total",
		"m3uclean_job_duration_seconds",
		"m3uclean_job_last_success_timestamp_seconds",
	}, names)
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.ObserveSuccess("rtv", 3, 1, 10, time.Second, time.Now())

	path := filepath.Join(t.TempDir(), "m3uclean.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `m3uclean_records_removed_total{job="rtv"} 3`))

	assert.NoError(t, r.WriteTextfile(""), "empty path disables the textfile")

	err = r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "m3uclean.prom"))
	assert.Error(t, err)
}
