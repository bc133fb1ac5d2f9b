package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNumber(t *testing.T) {
	assert.Equal(t, "0", Number(0))
	assert.Equal(t, "1,234,567", Number(1234567))
	assert.Equal(t, "12,000", Count(12000))
}

func TestBytes(t *testing.T) {
	assert.Equal(t, "0 B", Bytes(0))
	assert.Equal(t, "1.5 KiB", Bytes(1536))
	assert.Equal(t, "64 MiB", Bytes(64<<20))
	assert.Equal(t, "-1.0 KiB", Bytes(-1024))
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, "0.0%", Percentage(1, 0))
	assert.Equal(t, "25.0%", Percentage(1, 4))
	assert.Equal(t, "33.3%", Percentage(1, 3))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "500µs", Duration(500*time.Microsecond))
	assert.Equal(t, "250ms", Duration(250400*time.Microsecond))
	assert.Equal(t, "1.2s", Duration(1234*time.Millisecond))
	assert.Equal(t, "2m5s", Duration(125*time.Second+300*time.Millisecond))
}

func TestRelativeTime(t *testing.T) {
	assert.Equal(t, "never", RelativeTime(time.Time{}))
	assert.Equal(t, "5 minutes ago", RelativeTime(time.Now().Add(-5*time.Minute)))
}

func TestRelativeTimeShort(t *testing.T) {
	assert.Equal(t, "now", RelativeTimeShort(time.Now()))
	assert.Equal(t, "5m ago", RelativeTimeShort(time.Now().Add(-5*time.Minute-time.Second)))
	assert.Equal(t, "3h ago", RelativeTimeShort(time.Now().Add(-3*time.Hour-time.Second)))
	assert.Equal(t, "2d ago", RelativeTimeShort(time.Now().Add(-49*time.Hour)))
	assert.Equal(t, "soon", RelativeTimeShort(time.Now().Add(time.Hour)))
}

func TestScheduleDescription(t *testing.T) {
	tests := []struct {
		expr     string
		expected string
	}{
		{"@every 6h", "Every 6h0m0s"},
		{"@every 90m", "Every 1h30m0s"},
		{"@every nonsense", "@every nonsense"},
		{"@hourly", "Every hour"},
		{"@daily", "Daily at midnight"},
		{"*/15 * * * *", "Every 15 minutes"},
		{"0 */6 * * *", "Every 6 hours"},
		{"30 2 * * *", "Daily at 2:30AM"},
		{"0 12 * * *", "Daily at noon"},
		{"0 0 * * *", "Daily at midnight"},
		{"0 18 * * *", "Daily at 6PM"},
		{"15 * * * *", "Every hour at :15"},
		{"0 * * * *", "Every hour"},
		{"0 3 * * 1", "0 3 * * 1"},
		{"0 3 1 6 *", "0 3 1 6 *"},
		{"not a cron", "not a cron"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.expected, ScheduleDescription(tt.expr))
		})
	}
}
