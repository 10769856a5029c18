// Package logger builds the slog loggers used across veneer.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level     slog.Level
	pretty    bool
	json      bool
	writers   []io.Writer
	source    bool
	component string
	redact    map[string]struct{}
}

// New returns a *slog.Logger configured by opts. Without options it writes
// Info-level text records to os.Stdout. Credential attributes are always
// masked (see WithRedactKeys).
func New(opts ...Option) *slog.Logger {
	c := &config{
		level:   slog.LevelInfo,
		writers: []io.Writer{os.Stdout},
		redact:  make(map[string]struct{}, len(defaultRedactKeys)),
	}
	for _, k := range defaultRedactKeys {
		c.redact[k] = struct{}{}
	}
	for _, opt := range opts {
		opt(c)
	}

	l := slog.New(newHandler(c))
	if c.component != "" {
		l = l.With("component", c.component)
	}
	return l
}

func newHandler(c *config) slog.Handler {
	var w io.Writer
	switch len(c.writers) {
	case 0:
		w = os.Stdout
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	if c.pretty {
		return &redactHandler{next: newPrettyHandler(w, c), keys: c.redact}
	}

	opts := &slog.HandlerOptions{
		Level:     c.level,
		AddSource: c.source,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactAttr(c.redact, a)
		},
	}
	if c.json {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func newPrettyHandler(w io.Writer, c *config) slog.Handler {
	var level charmlog.Level
	switch {
	case c.level <= slog.LevelDebug:
		level = charmlog.DebugLevel
	case c.level <= slog.LevelInfo:
		level = charmlog.InfoLevel
	case c.level <= slog.LevelWarn:
		level = charmlog.WarnLevel
	default:
		level = charmlog.ErrorLevel
	}

	return charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level,
		ReportTimestamp: true,
		ReportCaller:    c.source,
	})
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(nopHandler{})
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (nopHandler) Handle(context.Context, slog.Record) error { return nil }

func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h nopHandler) WithGroup(string) slog.Handler { return h }
