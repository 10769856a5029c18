package logger

import (
	"context"
	"log/slog"
	"strings"
)

// Redacted replaces the value of a credential attribute.
const Redacted = "[REDACTED]"

// defaultRedactKeys are attribute keys that may carry an upstream API key or
// the proxy access token.
var defaultRedactKeys = []string{
	"authorization",
	"api_key",
	"apikey",
	"x-api-key",
	"access_token",
	"token",
	"password",
}

// redactAttr masks a under the configured keys. Any string value carrying a
// bearer credential is masked regardless of its key.
func redactAttr(keys map[string]struct{}, a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	if _, ok := keys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, Redacted)
	}
	if a.Value.Kind() == slog.KindString {
		if v := a.Value.String(); len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			return slog.String(a.Key, "Bearer "+Redacted)
		}
	}
	return a
}

// redactHandler applies redactAttr in front of handlers that take no
// ReplaceAttr option.
type redactHandler struct {
	next slog.Handler
	keys map[string]struct{}
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAll(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.redactAll(a)
	}
	return &redactHandler{next: h.next.WithAttrs(masked), keys: h.keys}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name), keys: h.keys}
}

func (h *redactHandler) redactAll(a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindGroup {
		return redactAttr(h.keys, a)
	}
	group := a.Value.Group()
	masked := make([]any, len(group))
	for i, g := range group {
		masked[i] = h.redactAll(g)
	}
	return slog.Group(a.Key, masked...)
}
