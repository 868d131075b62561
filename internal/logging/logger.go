// Package logging wraps logrus with the structured, context-aware
// logger shape used across every component of the document core:
// JSON or text output selected by config, a fluent WithField/WithError
// builder, and a timed LogOperation helper for wrapping a unit of work.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Level mirrors logrus' level set so callers configuring a Logger
// don't need to import logrus directly.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects the logrus formatter.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config controls how New builds a Logger.
type Config struct {
	Level   Level
	Format  Format
	Output  io.Writer
	Service string
	Version string
}

// DefaultConfig returns a sane JSON-at-info configuration writing to
// stderr, matching the production default the rest of the stack
// expects when no explicit config is supplied.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// Logger is a thin, chainable wrapper around a logrus entry.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	base := logrus.New()
	if cfg.Output != nil {
		base.SetOutput(cfg.Output)
	}

	switch cfg.Format {
	case FormatText:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	switch cfg.Level {
	case LevelDebug:
		base.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		base.SetLevel(logrus.WarnLevel)
	case LevelError:
		base.SetLevel(logrus.ErrorLevel)
	default:
		base.SetLevel(logrus.InfoLevel)
	}

	fields := logrus.Fields{}
	if cfg.Service != "" {
		fields["service"] = cfg.Service
	}
	if cfg.Version != "" {
		fields["version"] = cfg.Version
	}

	return &Logger{entry: base.WithFields(fields)}
}

// ServiceLogger is a convenience constructor for the top-level logger
// each binary builds at startup.
func ServiceLogger(service, version string, level Level, format Format) *Logger {
	cfg := DefaultConfig()
	cfg.Service = service
	cfg.Version = version
	cfg.Level = level
	cfg.Format = format
	return New(cfg)
}

// WithField returns a child Logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a child Logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError returns a child Logger carrying err under the "error" field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// WithContext attaches a request-scoped document/user id pair commonly
// needed to correlate gateway and persistence log lines.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := logrus.Fields{}
	if v := ctx.Value(ctxKeyDocumentID); v != nil {
		fields["document_id"] = v
	}
	if v := ctx.Value(ctxKeyUserID); v != nil {
		fields["user_id"] = v
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{entry: l.entry.WithFields(fields)}
}

func (l *Logger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *Logger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.entry.Error(args...) }
func (l *Logger) Fatal(args ...interface{}) { l.entry.Fatal(args...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

type ctxKey int

const (
	ctxKeyDocumentID ctxKey = iota
	ctxKeyUserID
)

// WithDocumentID returns a context carrying documentID for WithContext to pick up.
func WithDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, ctxKeyDocumentID, documentID)
}

// WithUserID returns a context carrying userID for WithContext to pick up.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// LogOperation runs fn, logging its outcome and duration at Debug (success)
// or Error (failure) under the given operation name.
func LogOperation(l *Logger, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	fields := map[string]interface{}{
		"operation":   operation,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		l.WithFields(fields).WithError(err).Error("operation failed")
		return err
	}
	l.WithFields(fields).Debug("operation completed")
	return nil
}
