// Package log is the storefront's structured logging layer: a small Logger
// interface over slog with context plumbing, otel trace enrichment, and
// error-chain attachment on Error.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

// Options configures New. App, Version and Commit become base attributes on
// every record so log lines from mixed deployments stay attributable.
type Options struct {
	App     string
	Version string
	Commit  string
	BuildId string

	Level           slog.Level
	StacktraceLevel slog.Level
	JsonFormat      bool

	// Error-link rendering: when IncludeErrorLinks is set, Error records
	// carry an error_links attr with up to MaxErrorLinks resolved frames.
	MaxErrorLinks     int
	IncludeErrorLinks bool

	Writer io.Writer
}

func New(opts Options) (Logger, error) { return newCore(opts) }

// ParseLevel maps a config string to a slog level. Case and surrounding
// whitespace are ignored.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %s (valid levels are debug|info|warn|error)", s)
}
