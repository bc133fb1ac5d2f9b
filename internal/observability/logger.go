// Package observability provides logging for m3uclean.
//
// Loggers created here redact credentials: attributes named like secrets are
// replaced by masq, and credential query parameters inside string values
// (playlist URLs routinely carry username/password pairs) are masked.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/jmylchreest/m3uclean/internal/config"
	"github.com/m-mizutani/masq"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	// CorrelationIDKey is the context key for correlation IDs.
	CorrelationIDKey contextKey = "correlation_id"
	// loggerKey is the context key for the logger.
	loggerKey contextKey = "logger"
)

// LevelTrace is more verbose than debug and is rendered as "TRACE".
const LevelTrace = slog.Level(-8)

// RedactedValue replaces any masked value in log output.
const RedactedValue = "[REDACTED]"

// sensitiveFields are attribute and struct field names whose values are
// always redacted.
var sensitiveFields = []string{
	"password", "Password",
	"secret", "Secret",
	"token", "Token",
	"apikey", "ApiKey", "APIKey",
	"api_key",
	"credential", "Credential",
}

// sensitiveParamRegex matches credential query parameters in URLs.
var sensitiveParamRegex = regexp.MustCompile(`(?i)([?&](?:password|passwd|pass|token|apikey|api_key|secret|credential|auth)=)[^&#\s"]*`)

// sourceRoot is the module root, trimmed from source file paths.
var sourceRoot = func() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	// file is <root>/internal/observability/logger.go
	return filepath.Dir(filepath.Dir(filepath.Dir(file)))
}()

// NewLoggerWithWriter creates a slog.Logger writing JSON or text to w at the
// configured level.
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	level := parseLevel(cfg.Level)

	masqOpts := make([]masq.Option, 0, len(sensitiveFields))
	for _, name := range sensitiveFields {
		masqOpts = append(masqOpts, masq.WithFieldName(name))
	}
	redact := masq.New(masqOpts...)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 {
				switch a.Key {
				case slog.TimeKey:
					if t, ok := a.Value.Any().(time.Time); ok && cfg.TimeFormat != "" {
						return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
					}
					return a
				case slog.LevelKey:
					if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
						return slog.String(slog.LevelKey, "TRACE")
					}
					return a
				case slog.SourceKey:
					if src, ok := a.Value.Any().(*slog.Source); ok {
						return slog.String("logpos", fmt.Sprintf("%s:%d", relativeSource(src.File), src.Line))
					}
					return a
				case slog.MessageKey:
					return a
				}
			}

			a = redact(groups, a)
			if a.Value.Kind() == slog.KindString {
				if s := a.Value.String(); sensitiveParamRegex.MatchString(s) {
					return slog.String(a.Key, RedactURLParams(s))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func relativeSource(file string) string {
	if sourceRoot == "" {
		return file
	}
	if rel, err := filepath.Rel(sourceRoot, file); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return file
}

// RedactURLParams masks the values of credential query parameters in s.
func RedactURLParams(s string) string {
	return sensitiveParamRegex.ReplaceAllString(s, "${1}"+RedactedValue)
}

// WithCorrelationID adds a correlation ID to the logger.
func WithCorrelationID(logger *slog.Logger, correlationID string) *slog.Logger {
	return logger.With(slog.String("correlation_id", correlationID))
}

// WithComponent adds a component name to the logger for identifying the source.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// WithJob adds a job name to the logger.
func WithJob(logger *slog.Logger, job string) *slog.Logger {
	return logger.With(slog.String("job", job))
}

// WithOperation adds an operation name to the logger for tracking specific operations.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String("operation", operation))
}

// WithError adds an error to the logger attributes.
func WithError(logger *slog.Logger, err error) *slog.Logger {
	if err == nil {
		return logger
	}
	return logger.With(slog.String("error", err.Error()))
}

// LoggerFromContext extracts a logger from the context.
// If no logger is found, returns the default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// ContextWithLogger adds a logger to the context.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// CorrelationIDFromContext extracts a correlation ID from the context.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithCorrelationID adds a correlation ID to the context.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// SetDefault sets the provided logger as the default slog logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

// TimedOperationWithError logs the start (trace) and end (debug, or warn on
// failure) of an operation with its duration. The error pointer is read when the returned function runs, so
// errors assigned after this call are reported.
//
// Usage:
//
//	var err error
//	done := observability.TimedOperationWithError(ctx, logger, "filter", &err)
//	defer done()
//	err = doSomething()
//
//nolint:gocritic // errPtr must be a pointer to capture errors set after this call
func TimedOperationWithError(ctx context.Context, logger *slog.Logger, operation string, errPtr *error) func() {
	start := time.Now()
	logger = WithOperation(logger, operation)
	logger.Log(ctx, LevelTrace, "operation started")

	return func() {
		duration := time.Since(start)
		if errPtr != nil && *errPtr != nil {
			WithError(logger, *errPtr).WarnContext(ctx, "operation failed",
				slog.Duration("duration", duration),
			)
			return
		}
		logger.DebugContext(ctx, "operation completed",
			slog.Duration("duration", duration),
		)
	}
}
