package logbuf

import (
	"context"
	"log/slog"
	"strings"
)

const redacted = "[redacted]"

var secretKeys = []string{"token", "secret", "password", "api_key", "apikey", "authorization"}

// Handler tees records into a Buffer and on to an inner handler. The buffer
// sees every level; the inner handler keeps its own level filter.
type Handler struct {
	next   slog.Handler
	buf    *Buffer
	prefix string         // open groups joined by "."
	bound  map[string]any // attrs from WithAttrs, already flattened
}

// NewHandler wraps next, capturing every record into buf.
func NewHandler(next slog.Handler, buf *Buffer) *Handler {
	return &Handler{next: next, buf: buf}
}

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.bound)+r.NumAttrs())
	for k, v := range h.bound {
		attrs[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(attrs, h.prefix, a)
		return true
	})

	e := Entry{Time: r.Time, Level: r.Level.String(), Message: r.Message}
	if c, ok := attrs["component"].(string); ok {
		e.Component = c
		delete(attrs, "component")
	}
	if len(attrs) > 0 {
		e.Attrs = attrs
	}
	h.buf.Write(e)

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *Handler) WithAttrs(as []slog.Attr) slog.Handler {
	bound := make(map[string]any, len(h.bound)+len(as))
	for k, v := range h.bound {
		bound[k] = v
	}
	for _, a := range as {
		flatten(bound, h.prefix, a)
	}
	return &Handler{next: h.next.WithAttrs(as), buf: h.buf, prefix: h.prefix, bound: bound}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{next: h.next.WithGroup(name), buf: h.buf, prefix: h.prefix + name + ".", bound: h.bound}
}

// flatten writes a into dst under prefix, expanding group values into dotted keys.
func flatten(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range v.Group() {
			flatten(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dst[prefix+a.Key] = jsonValue(a.Key, v)
}

// jsonValue masks credential-looking keys and turns errors into strings.
func jsonValue(key string, v slog.Value) any {
	k := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(k, s) {
			return redacted
		}
	}
	switch x := v.Any().(type) {
	case error:
		return x.Error()
	default:
		return x
	}
}
