package logger

import (
	"context"
	"log/slog"
)

// scrubHandler wraps the configured slog.Handler. Every record gets the
// static fields first, then the call fields carried by ctx, then its own
// attributes with string values passed through RedactSensitiveData.
type scrubHandler struct {
	next   slog.Handler
	static []slog.Attr
}

func newScrubHandler(next slog.Handler, static ...slog.Attr) slog.Handler {
	return &scrubHandler{next: next, static: static}
}

func (h *scrubHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

//nolint:gocritic // slog.Handler takes the record by value
func (h *scrubHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, RedactSensitiveData(r.Message), r.PC)
	out.AddAttrs(h.static...)
	if ctx != nil {
		for _, key := range allContextKeys {
			if v, ok := ctx.Value(key).(string); ok && v != "" {
				out.AddAttrs(slog.String(string(key), v))
			}
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(scrub(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *scrubHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = scrub(a)
	}
	return &scrubHandler{next: h.next.WithAttrs(clean), static: h.static}
}

func (h *scrubHandler) WithGroup(name string) slog.Handler {
	return &scrubHandler{next: h.next.WithGroup(name), static: h.static}
}

// scrub redacts credentials from string attributes, descending into groups.
// Errors are flattened to their redacted text.
func scrub(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, RedactSensitiveData(v.String()))
	case slog.KindGroup:
		group := v.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = scrub(g)
		}
		return slog.Group(a.Key, clean...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, RedactSensitiveData(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}
