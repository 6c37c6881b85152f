package logger

import (
	"context"
	"time"
)

// Entry is a single log line carrying the job metric fields that dashboards
// aggregate on: page position, per-page counts and durations.
//
// Example:
//
//	logger.With(nil).WithPage("offset:50").WithProgress(24, 1).Info(ctx, "Committed page")
type Entry struct {
	fields Fields
}

// With starts an Entry with the given fields. fields may be nil.
func With(fields Fields) *Entry {
	return (&Entry{}).With(fields)
}

// With returns a copy of the Entry with fields merged in.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

// WithField adds a single field.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.With(Fields{key: value})
}

// WithDuration records d as duration_ms.
func (e *Entry) WithDuration(d time.Duration) *Entry {
	return e.WithField(FieldDurationMs, d.Milliseconds())
}

// WithCount records the number of products a step handled.
func (e *Entry) WithCount(count int) *Entry {
	return e.WithField(FieldCount, count)
}

// WithStatus records a job status.
func (e *Entry) WithStatus(status string) *Entry {
	return e.WithField(FieldStatus, status)
}

// WithPage records the catalog position a step started from.
func (e *Entry) WithPage(page string) *Entry {
	return e.WithField(FieldPage, page)
}

// WithProgress records processed (successful) and failed product counts.
func (e *Entry) WithProgress(processed, failed int) *Entry {
	return e.With(Fields{FieldProcessed: processed, FieldFailed: failed})
}

// Info logs through the context logger at Info level.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Infof(format, args...)
}

// Warn logs through the context logger at Warn level.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Warnf(format, args...)
}

// Error logs through the context logger at Error level.
func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Errorf(format, args...)
}
