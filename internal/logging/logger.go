// Package logging wraps log/slog with a handler that lifts
// correlation, trace, and span ids out of context.Context and
// attaches them to every record, the same shape the teacher's
// internal/pkg/logger package uses for its own slog setup.
package logging

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
)

// Config controls Setup's handler construction.
type Config struct {
	// Level is the minimum level to log.
	Level slog.Level
	// JSON selects JSON output; false selects slog's text handler,
	// which is easier to read locally.
	JSON bool
	// AddSource includes the calling file:line on every record.
	AddSource bool
}

// DefaultConfig returns JSON output at Info level, matching what a
// production deployment of the teacher's services runs with.
func DefaultConfig() Config {
	return Config{Level: slog.LevelInfo, JSON: true, AddSource: true}
}

// Setup builds a *slog.Logger writing to os.Stdout per cfg, wrapped in
// ContextHandler, and installs it as slog's default logger before
// returning it.
func Setup(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var base slog.Handler
	if cfg.JSON {
		base = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		base = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(&ContextHandler{next: base})
	slog.SetDefault(logger)
	return logger
}

// New returns a logger like Setup's but without touching the package
// default — for components (like tests) that want their own instance.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var base slog.Handler
	if cfg.JSON {
		base = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		base = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(&ContextHandler{next: base})
}

// ContextHandler wraps another slog.Handler, adding correlation id
// (set via WithCorrelationID) and the active span's trace/span id (via
// OpenTelemetry's trace.SpanFromContext) to every record that has a
// context carrying them.
type ContextHandler struct {
	next slog.Handler
}

// Enabled implements slog.Handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if cid, ok := ctx.Value(correlationIDKey).(string); ok && cid != "" {
		record.AddAttrs(slog.String("correlation_id", cid))
	}

	span := trace.SpanFromContext(ctx)
	if sc := span.SpanContext(); sc.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	return h.next.Handle(ctx, record)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}

// WithCorrelationID returns a context that ContextHandler will stamp
// every log record with, for tying together every log line for one
// republisher pass or one consumed delivery.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the id set by WithCorrelationID, if any.
func CorrelationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIDKey).(string)
	return id, ok
}
