package logger

import (
	"context"
	"log/slog"
	"regexp"
)

// TokenMasker оборачивает slog.Handler и вырезает токен бота из сообщений и атрибутов.
// Ошибки tgbotapi содержат URL запроса вместе с токеном.
type TokenMasker struct {
	next slog.Handler
}

func NewTokenMasker(next slog.Handler) *TokenMasker {
	return &TokenMasker{next: next}
}

var tokenRe = regexp.MustCompile(`\d{5,}:[A-Za-z0-9_-]{30,}`)

const tokenMask = "***:***"

func Mask(s string) string {
	return tokenRe.ReplaceAllString(s, tokenMask)
}

func (h *TokenMasker) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *TokenMasker) Handle(ctx context.Context, record slog.Record) error {
	// Clone не копирует атрибуты в новую запись, добавляем их заново
	r := slog.NewRecord(record.Time, record.Level, Mask(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		r.AddAttrs(maskAttr(a))
		return true
	})
	return h.next.Handle(ctx, r)
}

func (h *TokenMasker) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = maskAttr(a)
	}
	return &TokenMasker{next: h.next.WithAttrs(masked)}
}

func (h *TokenMasker) WithGroup(name string) slog.Handler {
	return &TokenMasker{next: h.next.WithGroup(name)}
}

func maskAttr(a slog.Attr) slog.Attr {
	return slog.Attr{Key: a.Key, Value: maskValue(a.Value)}
}

func maskValue(v slog.Value) slog.Value {
	switch v.Kind() {
	case slog.KindString:
		return slog.StringValue(Mask(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.StringValue(Mask(err.Error()))
		}
		return v
	case slog.KindGroup:
		group := v.Group()
		out := make([]slog.Attr, len(group))
		for i, a := range group {
			out[i] = maskAttr(a)
		}
		return slog.GroupValue(out...)
	default:
		return v
	}
}
