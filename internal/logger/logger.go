// Package logger configures the process-wide logrus logger and carries
// request-scoped fields through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process logger
type Options struct {
	Level  string // trace, debug, info, warn, error
	Format string // text or json
	File   string // optional rotating log file

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type ctxKey struct{}

var base = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	// stdout carries the MCP stdio transport
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Init applies opts to the process logger. It returns a closer for the log file, if any.
func Init(opts Options) (io.Closer, error) {
	level, err := logrus.ParseLevel(strings.ToLower(defaultString(opts.Level, "info")))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	base.SetLevel(level)

	switch strings.ToLower(defaultString(opts.Format, "text")) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	if opts.File == "" {
		base.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    defaultInt(opts.MaxSizeMB, 50),
		MaxBackups: defaultInt(opts.MaxBackups, 5),
		MaxAge:     defaultInt(opts.MaxAgeDays, 28),
	}
	base.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return rotator, nil
}

// SetOutput redirects the process logger; used by tests
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// GetLogger returns a logger carrying the fields stored in ctx
func GetLogger(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.NewEntry(base)
}

// WithFields returns a context whose logger carries fields in addition to any already present
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return context.WithValue(ctx, ctxKey{}, GetLogger(ctx).WithFields(fields))
}

// WithField is WithFields for a single key
func WithField(ctx context.Context, key string, value any) context.Context {
	return WithFields(ctx, logrus.Fields{key: value})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func defaultInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
