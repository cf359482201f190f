// Package infra wires logging and tracing for the binaries.
package infra

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/OKaluzny/healthchain-wallet/internal/config"
)

// TraceHandler adds the active trace and span ids to each record.
type TraceHandler struct {
	handler     slog.Handler
	otelEnabled bool
}

func NewTraceHandler(handler slog.Handler, cfg config.Config) *TraceHandler {
	return &TraceHandler{handler: handler, otelEnabled: cfg.OtelEnabled}
}

func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.otelEnabled {
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
			r.AddAttrs(
				slog.String("trace", sc.TraceID().String()),
				slog.String("spanId", sc.SpanID().String()),
				slog.Bool("traceSampled", sc.IsSampled()),
			)
		}
	}
	return h.handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{handler: h.handler.WithAttrs(attrs), otelEnabled: h.otelEnabled}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{handler: h.handler.WithGroup(name), otelEnabled: h.otelEnabled}
}

// ParseLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger installs a JSON logger with trace ids as the default.
func SetupLogger(w io.Writer, cfg config.Config) {
	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)})
	slog.SetDefault(slog.New(NewTraceHandler(jsonHandler, cfg)))
}
