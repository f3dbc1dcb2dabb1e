package log

import "context"

// nopLogger discards everything. Optional dependencies (apkstore, static
// middleware, tests) default to it so logging is never a nil check.
type nopLogger struct{}

func (n nopLogger) With(kv ...any) Logger { return n }

func (nopLogger) Debug(ctx context.Context, msg string, kv ...any) {}

func (nopLogger) Info(ctx context.Context, msg string, kv ...any) {}

func (nopLogger) Warn(ctx context.Context, msg string, kv ...any) {}

func (nopLogger) Error(ctx context.Context, err error, msg string, kv ...any) {}

func (nopLogger) Sync() error { return nil }

// Nop returns the shared no-op Logger.
func Nop() Logger { return nopLogger{} }
