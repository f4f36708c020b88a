// Package logger provides the structured logger shared by every component.
// It wraps logrus and stamps each entry with the owning component name.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config configures a Logger.
type Config struct {
	// Component is attached to every entry as the "component" field.
	Component string
	// Level is a logrus level name (debug, info, warn, error). Default: info.
	Level string
	// Format is "json" or "text". Default: text.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Logger is a component-scoped logrus logger.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a logger from cfg.
func New(cfg Config) *Logger {
	base := logrus.New()
	if cfg.Output != nil {
		base.SetOutput(cfg.Output)
	} else {
		base.SetOutput(os.Stderr)
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{Logger: base, component: cfg.Component}
}

// NewDefault creates a logger for component using LOG_LEVEL and LOG_FORMAT
// from the environment.
func NewDefault(component string) *Logger {
	return New(Config{
		Component: component,
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
	})
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	l := New(Config{Component: "nop", Output: io.Discard})
	l.SetLevel(logrus.PanicLevel)
	return l
}

// Named returns a logger that shares the underlying logrus instance but
// reports a different component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger, component: component}
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) entry() *logrus.Entry {
	e := logrus.NewEntry(l.Logger)
	if l.component != "" {
		e = e.WithField("component", l.component)
	}
	return e
}

// WithContext returns an entry carrying ctx and the component field.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	return l.entry().WithContext(ctx)
}

// WithField returns an entry with a single field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.entry().WithField(key, value)
}

// WithFields returns an entry with the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.entry().WithFields(fields)
}

// WithError returns an entry with the error field set.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry().WithError(err)
}

// Debug logs at debug level.
func (l *Logger) Debug(args ...interface{}) { l.entry().Debug(args...) }

// Info logs at info level.
func (l *Logger) Info(args ...interface{}) { l.entry().Info(args...) }

// Warn logs at warn level.
func (l *Logger) Warn(args ...interface{}) { l.entry().Warn(args...) }

// Error logs at error level.
func (l *Logger) Error(args ...interface{}) { l.entry().Error(args...) }

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...interface{}) { l.entry().Infof(format, args...) }

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.entry().Warnf(format, args...) }
