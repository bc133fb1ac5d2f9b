// Package format provides human-readable formatting utilities for CLI output.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Number formats a number with thousand separators.
// Example: Number(1234567) => "1,234,567"
func Number(n int64) string {
	return printer.Sprintf("%d", n)
}

// Count formats an int with thousand separators.
func Count(n int) string {
	return Number(int64(n))
}

// Bytes formats a byte count using IEC units.
// Example: Bytes(1536) => "1.5 KiB"
func Bytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

// Percentage formats part/total as a percentage with one decimal.
// A zero total yields "0.0%".
func Percentage(part, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)/float64(total)*100)
}

// Duration rounds d for display. Sub-second values keep millisecond precision.
// Example: Duration(1234*time.Millisecond) => "1.2s"
func Duration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

// RelativeTime formats a time as a relative duration from now.
// Example: RelativeTime(time.Now().Add(-5*time.Minute)) => "5 minutes ago"
func RelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// RelativeTimeShort formats a time as a short relative duration.
// Example: RelativeTimeShort(time.Now().Add(-5*time.Minute)) => "5m ago"
func RelativeTimeShort(t time.Time) string {
	diff := time.Since(t)

	if diff < 0 {
		return "soon"
	}

	switch {
	case diff < time.Minute:
		return "now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

// ScheduleDescription returns a short description of a watch schedule.
// It understands the @every and @hourly style descriptors and simple
// five-field cron expressions; anything else is returned unchanged.
func ScheduleDescription(expr string) string {
	expr = strings.TrimSpace(expr)

	if rest, ok := strings.CutPrefix(expr, "@every "); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(rest)); err == nil {
			return "Every " + d.String()
		}
		return expr
	}

	switch expr {
	case "@hourly":
		return "Every hour"
	case "@daily", "@midnight":
		return "Daily at midnight"
	case "@weekly":
		return "Sundays at midnight"
	case "@monthly":
		return "1st of each month at midnight"
	case "@yearly", "@annually":
		return "Every year on Jan 1st"
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return expr
	}
	min, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]
	if month != "*" {
		return expr
	}

	if step, ok := strings.CutPrefix(min, "*/"); ok && hour == "*" && dom == "*" && dow == "*" {
		return "Every " + step + " minutes"
	}
	if step, ok := strings.CutPrefix(hour, "*/"); ok && dom == "*" && dow == "*" {
		if m, err := strconv.Atoi(min); err == nil && m == 0 {
			return "Every " + step + " hours"
		}
		return expr
	}

	h, hErr := strconv.Atoi(hour)
	m, mErr := strconv.Atoi(min)
	if hErr == nil && mErr == nil && dom == "*" && dow == "*" {
		return "Daily at " + formatTime(h, m)
	}
	if hour == "*" && mErr == nil && dom == "*" && dow == "*" {
		if m == 0 {
			return "Every hour"
		}
		return fmt.Sprintf("Every hour at :%02d", m)
	}

	return expr
}

func formatTime(hour, minute int) string {
	if hour == 0 && minute == 0 {
		return "midnight"
	}
	if hour == 12 && minute == 0 {
		return "noon"
	}

	period := "AM"
	hour12 := hour
	if hour >= 12 {
		period = "PM"
		if hour > 12 {
			hour12 = hour - 12
		}
	}
	if hour == 0 {
		hour12 = 12
	}

	if minute == 0 {
		return fmt.Sprintf("%d%s", hour12, period)
	}
	return fmt.Sprintf("%d:%02d%s", hour12, minute, period)
}
