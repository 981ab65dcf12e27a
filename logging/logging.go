// Package logging builds slog handlers for the CLI and codec
// diagnostics. Core codec packages stay silent; callers that want
// logs construct a logger here and set it as the default.
package logging

import (
	"context"
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

// Logger returns a slog.Logger writing to w, as JSON when json is
// true, filtered at level. Attributes appended via AppendCtx are
// folded into every record.
func Logger(w io.Writer, json bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(&ctxHandler{inner: h})
}

// FileLogger returns a JSON logger writing to path through a rotating
// sink. maxSizeMB bounds each file; maxBackups old files are kept.
func FileLogger(path string, maxSizeMB, maxBackups int, level slog.Level) *slog.Logger {
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return Logger(sink, true, level)
}

// AppendCtx stores attrs in ctx; loggers from this package attach them
// to every record logged with that context.
func AppendCtx(ctx context.Context, attrs ...slog.Attr) context.Context {
	if existing, ok := ctx.Value(ctxKey{}).([]slog.Attr); ok {
		attrs = append(existing[:len(existing):len(existing)], attrs...)
	}
	return context.WithValue(ctx, ctxKey{}, attrs)
}

// ctxHandler folds context attributes from AppendCtx into records.
type ctxHandler struct {
	inner slog.Handler
}

func (h *ctxHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(ctxKey{}).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{inner: h.inner.WithGroup(name)}
}
