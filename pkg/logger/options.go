package logger

import (
	"io"
	"log/slog"
	"strings"
)

type Option func(*config)

// WithDebug lowers the level to Debug. WithDebug(false) leaves it unchanged.
func WithDebug(debug bool) Option {
	return func(c *config) {
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithPretty selects the colorized charmbracelet/log handler used by the
// interactive commands.
func WithPretty(pretty bool) Option {
	return func(c *config) {
		c.pretty = pretty
	}
}

// WithJSON selects slog's JSON handler. Pretty wins when both are set.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithWriter replaces the output writers with w.
func WithWriter(w io.Writer) Option {
	return WithWriters(w)
}

// WithWriters writes every record to each of w.
func WithWriters(w ...io.Writer) Option {
	return func(c *config) {
		c.writers = w
	}
}

func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}

// WithComponent tags every record with component=name, e.g. "proxy" or
// "chat".
func WithComponent(name string) Option {
	return func(c *config) {
		c.component = name
	}
}

// WithRedactKeys adds attribute keys whose values are masked, on top of the
// credential keys masked by default. Keys match case-insensitively.
func WithRedactKeys(keys ...string) Option {
	return func(c *config) {
		for _, k := range keys {
			c.redact[strings.ToLower(k)] = struct{}{}
		}
	}
}
