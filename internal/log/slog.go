package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// coreLogger is the slog-backed Logger used by the server. Base attributes
// are copied on With so derived loggers can be shared across goroutines.
type coreLogger struct {
	h        slog.Handler
	base     []slog.Attr
	links    bool
	maxLinks int
}

// pcCarrier / stackCarrier are the shapes xerrors values expose; the logger
// only depends on these interfaces, not on the xerrors package itself.
type pcCarrier interface {
	PC() uintptr
}

type stackCarrier interface {
	StackPCs() []uintptr
}

func newCore(opts Options) (Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	if opts.StacktraceLevel == 0 {
		opts.StacktraceLevel = slog.LevelError
	}
	if opts.MaxErrorLinks <= 0 {
		opts.MaxErrorLinks = 8
	}

	hopts := &slog.HandlerOptions{Level: opts.Level, AddSource: true}
	var h slog.Handler
	if opts.JsonFormat {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}

	// wrap innermost-out: stack attachment sees the record first, then the
	// span enricher, then the formatting handler
	h = spanEnricher{next: h}
	h = stackEnricher{next: h, level: opts.StacktraceLevel}

	base := []slog.Attr{slog.String("app", opts.App)}
	if opts.Version != "" {
		base = append(base, slog.String("app_version", opts.Version))
	}
	if opts.Commit != "" {
		base = append(base, slog.String("app_commit", opts.Commit))
	}

	return &coreLogger{
		h:        h,
		base:     base,
		links:    opts.IncludeErrorLinks,
		maxLinks: opts.MaxErrorLinks,
	}, nil
}

func (c *coreLogger) With(kv ...any) Logger {
	merged := make([]slog.Attr, len(c.base), len(c.base)+len(kv)/2)
	copy(merged, c.base)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			merged = append(merged, slog.Any(k, kv[i+1]))
		}
	}
	return &coreLogger{h: c.h, base: merged, links: c.links, maxLinks: c.maxLinks}
}

func (c *coreLogger) Debug(ctx context.Context, msg string, kv ...any) {
	c.emit(ctx, slog.LevelDebug, msg, kv...)
}

func (c *coreLogger) Info(ctx context.Context, msg string, kv ...any) {
	c.emit(ctx, slog.LevelInfo, msg, kv...)
}

func (c *coreLogger) Warn(ctx context.Context, msg string, kv ...any) {
	c.emit(ctx, slog.LevelWarn, msg, kv...)
}

func (c *coreLogger) Error(ctx context.Context, err error, msg string, kv ...any) {
	if err != nil {
		surface, root := errorTypes(err)
		kv = append(kv,
			"err", err,
			"error_type", surface,
			"cause_type", root,
		)
		if chain := messageChain(err); len(chain) > 0 {
			kv = append(kv, "error_chain", chain)
		}
		if c.links {
			kv = append(kv, "error_links", errorLinks(err, c.maxLinks))
		}
	}
	c.emit(ctx, slog.LevelError, msg, kv...)
}

// Sync is a no-op for the stdout backend; kept on the interface so a
// buffered backend can be swapped in without touching call sites.
func (c *coreLogger) Sync() error { return nil }

func (c *coreLogger) emit(ctx context.Context, lvl slog.Level, msg string, kv ...any) {
	if !c.h.Enabled(ctx, lvl) {
		return
	}
	// skip runtime.Callers, callSite, emit and the Debug/Info/Warn/Error
	// wrapper so AddSource points at the caller
	r := slog.NewRecord(time.Now(), lvl, msg, callSite(4))
	r.AddAttrs(c.base...)
	appendPairs(&r, kv)
	_ = c.h.Handle(ctx, r)
}

func callSite(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// appendPairs adds kv as attrs, dropping non-string keys and a trailing
// odd value rather than guessing at intent.
func appendPairs(r *slog.Record, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		r.AddAttrs(slog.Any(k, kv[i+1]))
	}
}

// spanEnricher copies the active otel span identity onto every record so
// log lines join up with traces.
type spanEnricher struct{ next slog.Handler }

func (e spanEnricher) Enabled(ctx context.Context, lvl slog.Level) bool {
	return e.next.Enabled(ctx, lvl)
}

func (e spanEnricher) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return e.next.Handle(ctx, r)
}

func (e spanEnricher) WithAttrs(attrs []slog.Attr) slog.Handler {
	return spanEnricher{next: e.next.WithAttrs(attrs)}
}

func (e spanEnricher) WithGroup(name string) slog.Handler {
	return spanEnricher{next: e.next.WithGroup(name)}
}

// stackEnricher attaches a stack attr at or above its level, preferring a
// stack captured at the error's origin over the log call site.
type stackEnricher struct {
	next  slog.Handler
	level slog.Level
}

func (e stackEnricher) Enabled(ctx context.Context, lvl slog.Level) bool {
	return e.next.Enabled(ctx, lvl)
}

func (e stackEnricher) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= e.level {
		var pcs []uintptr
		r.Attrs(func(a slog.Attr) bool {
			if a.Key != "err" {
				return true
			}
			if sc, ok := a.Value.Any().(stackCarrier); ok && sc != nil {
				pcs = sc.StackPCs()
			}
			return false
		})
		if len(pcs) > 0 {
			r.AddAttrs(slog.String("stack", formatFrames(runtime.CallersFrames(pcs))))
		} else {
			r.AddAttrs(slog.String("stack", stackHere()))
		}
	}
	return e.next.Handle(ctx, r)
}

func (e stackEnricher) WithAttrs(attrs []slog.Attr) slog.Handler {
	return stackEnricher{next: e.next.WithAttrs(attrs), level: e.level}
}

func (e stackEnricher) WithGroup(name string) slog.Handler {
	return stackEnricher{next: e.next.WithGroup(name), level: e.level}
}

func stackHere() string {
	pcs := make([]uintptr, 64)
	// skip runtime.Callers, stackHere, stackEnricher.Handle
	n := runtime.Callers(3, pcs)
	return strings.TrimSpace(formatFrames(runtime.CallersFrames(pcs[:n])))
}

// formatFrames renders frames as func / file:line pairs, suppressing the
// leading logging machinery and stopping at the runtime.
func formatFrames(frames *runtime.Frames) string {
	var b strings.Builder
	emitting := false
	for {
		fr, more := frames.Next()
		if !more {
			break
		}
		if strings.HasPrefix(fr.Function, "runtime.") {
			break
		}
		if !emitting && !internalFrame(fr.Function) {
			emitting = true
		}
		if emitting {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", fr.Function, fr.File, fr.Line)
		}
	}
	return b.String()
}

func internalFrame(fn string) bool {
	return strings.HasPrefix(fn, "log/slog.") || strings.Contains(fn, "/internal/log.")
}

// messageChain flattens the unwrap chain into its distinct messages,
// outermost first. Joined errors contribute their branches at the end.
func messageChain(err error) []string {
	out := make([]string, 0, 8)
	var prev string
	for e := err; e != nil; e = errors.Unwrap(e) {
		if msg := e.Error(); msg != prev {
			out = append(out, msg)
			prev = msg
		}
	}

	type multi interface{ Unwrap() []error }
	if m, ok := any(err).(multi); ok {
		for _, e := range m.Unwrap() {
			if msg := e.Error(); msg != prev {
				out = append(out, msg)
				prev = msg
			}
		}
	}
	return out
}

// errorLinks walks up to max wrap layers and resolves each to its origin
// frame when one was captured. The outermost link is always kept even when
// it has no position.
func errorLinks(err error, max int) []map[string]any {
	links := make([]map[string]any, 0, 8)
	depth := 0
	for e := err; e != nil && (max <= 0 || depth < max); e = errors.Unwrap(e) {
		link := map[string]any{"msg": e.Error()}
		located := false

		if pc, ok := any(e).(pcCarrier); ok {
			if fn, file, line, resolved := resolvePC(pc.PC()); resolved {
				link["func"], link["file"], link["line"] = fn, file, line
				located = true
			}
		} else if sc, ok := any(e).(stackCarrier); ok {
			if fn, file, line, resolved := firstForeignFrame(sc.StackPCs()); resolved {
				link["func"], link["file"], link["line"] = fn, file, line
				located = true
			}
		}
		if depth == 0 || located {
			links = append(links, link)
		}
		depth++
	}
	return links
}

func resolvePC(pc uintptr) (fn, file string, line int, ok bool) {
	if pc == 0 {
		return "", "", 0, false
	}
	fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return fr.Function, fr.File, fr.Line, true
}

// firstForeignFrame picks the first frame that is neither runtime, slog,
// this package, nor the xerrors constructors.
func firstForeignFrame(pcs []uintptr) (fn, file string, line int, ok bool) {
	if len(pcs) == 0 {
		return "", "", 0, false
	}
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		skip := strings.HasPrefix(fr.Function, "runtime.") ||
			internalFrame(fr.Function) ||
			strings.Contains(fr.Function, "/internal/xerrors.")
		if !skip {
			return fr.Function, fr.File, fr.Line, true
		}
		if !more {
			break
		}
	}
	return "", "", 0, false
}

// errorTypes reports the first non-wrapper type in the chain and the type
// at the root, for alerting on error classes rather than messages.
func errorTypes(err error) (surface, root string) {
	if err == nil {
		return "", ""
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		t := reflect.TypeOf(e)
		if t == nil {
			continue
		}
		u := t
		for u.Kind() == reflect.Ptr {
			u = u.Elem()
		}
		if strings.Contains(u.PkgPath(), "/internal/xerrors") {
			continue
		}
		if u.PkgPath() == "fmt" && u.Name() == "wrapError" {
			continue
		}
		surface = t.String()
		break
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}

	var last error
	for e := err; e != nil; e = errors.Unwrap(e) {
		last = e
	}
	if last != nil {
		root = fmt.Sprintf("%T", last)
	}
	return surface, root
}
