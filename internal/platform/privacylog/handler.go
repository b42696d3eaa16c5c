package privacylog

import (
	"context"
	"log/slog"
)

type SanitizingHandler struct {
	next   slog.Handler
	policy Policy
}

// WrapHandler applies DefaultPolicy in front of next.
func WrapHandler(next slog.Handler) slog.Handler {
	return WrapHandlerWithPolicy(next, DefaultPolicy)
}

func WrapHandlerWithPolicy(next slog.Handler, p Policy) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next, policy: p}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(h.policy.Attr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		clean = append(clean, h.policy.Attr(a))
	}
	return &SanitizingHandler{next: h.next.WithAttrs(clean), policy: h.policy}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name), policy: h.policy}
}
