package log

import "context"

type loggerKey struct{}

// WithContext stores l in the context; request middleware uses this to hand
// each handler a logger already annotated with request fields.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the context's Logger. Callers always get a usable
// logger back; when none was stored the no-op logger is returned.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok && l != nil {
		return l
	}
	return Nop()
}
