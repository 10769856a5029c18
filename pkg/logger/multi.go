package logger

import (
	"context"
	"errors"
	"log/slog"
)

// Multi returns a logger that hands every record to each of loggers. Nil
// loggers are skipped, and nested Multi loggers are flattened. "veneer serve"
// uses it to write the console log and a JSON log file together.
func Multi(loggers ...*slog.Logger) *slog.Logger {
	var handlers []slog.Handler
	for _, l := range loggers {
		if l == nil {
			continue
		}
		if m, ok := l.Handler().(fanout); ok {
			handlers = append(handlers, m...)
			continue
		}
		handlers = append(handlers, l.Handler())
	}
	return slog.New(fanout(handlers))
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers r to every enabled handler. A failing handler does not
// keep the record from the others; their errors are joined.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	children := make(fanout, len(f))
	for i, h := range f {
		children[i] = fn(h)
	}
	return children
}
