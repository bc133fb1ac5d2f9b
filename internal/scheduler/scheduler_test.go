package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"@every 6h", false},
		{"@daily", false},
		{"@hourly", false},
		{"0 */6 * * *", false},
		{"30 4 * * 1-5", false},
		{"", true},
		{"every six hours", true},
		{"0 0 * *", true},
		{"61 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateSchedule(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	noop := func(context.Context) error { return nil }

	_, err := New("bogus", noop, Options{})
	assert.Error(t, err)

	_, err = New("@every 1h", nil, Options{})
	assert.Error(t, err)

	s, err := New("@every 1h", noop, Options{})
	require.NoError(t, err)

	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(time.Hour), s.Next(now))
}

func TestScheduler_RunOnStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New("@every 1h", func(ctx context.Context) error {
		cancel()
		return nil
	}, Options{RunOnStart: true})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
	assert.Equal(t, int64(1), s.runs.Load())
}

func TestScheduler_Ticks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var calls atomic.Int32
	s, err := New("@every 1s", func(ctx context.Context) error {
		if calls.Add(1) >= 2 {
			cancel()
		}
		return errors.New("run failures do not stop the scheduler")
	}, Options{})
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx))
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestScheduler_AlreadyStarted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	s, err := New("@every 1h", func(ctx context.Context) error {
		close(started)
		return nil
	}, Options{RunOnStart: true})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	<-started

	assert.ErrorIs(t, s.Start(ctx), ErrAlreadyStarted)

	cancel()
	require.NoError(t, <-done)
}

func TestSlogCronLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &slogCronLogger{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	l.Info("wake", "now", "x")
	assert.Contains(t, buf.String(), "cron: wake")
	assert.Contains(t, buf.String(), "level=DEBUG")

	buf.Reset()
	l.Error(errors.New("panic"), "job failed")
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "error=panic")
}
