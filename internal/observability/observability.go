// Package observability holds the logging and metrics seams shared by the
// pipeline, the index drivers and the CLI.
package observability

import (
	"context"
	"time"
)

// Logger is the structured logging surface used across the module. Arguments
// after msg are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder observes the outcome and duration of named operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// IndexCounter is implemented by recorders that count indexed documents.
type IndexCounter interface {
	AddIndexed(records, observations int)
}

// SuccessMarker is implemented by recorders that track the last successful run.
type SuccessMarker interface {
	MarkSuccess(at time.Time)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return noopLogger{} }

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// NopMetrics returns a MetricsRecorder that discards observations.
func NopMetrics() MetricsRecorder { return noopMetrics{} }

// Multi fans observations out to every non-nil recorder.
func Multi(recorders ...MetricsRecorder) MetricsRecorder {
	out := make(multiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multiRecorder []MetricsRecorder

func (m multiRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		r.Observe(ctx, operation, success, duration)
	}
}

// AddIndexed forwards to every recorder that counts indexed documents.
func (m multiRecorder) AddIndexed(records, observations int) {
	for _, r := range m {
		if c, ok := r.(IndexCounter); ok {
			c.AddIndexed(records, observations)
		}
	}
}

// MarkSuccess forwards to every recorder that tracks successful runs.
func (m multiRecorder) MarkSuccess(at time.Time) {
	for _, r := range m {
		if s, ok := r.(SuccessMarker); ok {
			s.MarkSuccess(at)
		}
	}
}
