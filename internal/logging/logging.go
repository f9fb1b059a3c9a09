// Package logging assembles the structured slog loggers used across the
// detection pipeline.
//
// It owns a console handler (for interactive operator use) fanned out to a
// JSON file handler (one append-only file, not rotated), plus a StreamHub that lets an operator CLI tail
// live log events without attaching to the process's stdout. Components tag
// their lines with the field constants below rather than ad-hoc keys so
// log aggregation stays consistent across C1-C9.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Field name constants used consistently across the pipeline.
const (
	FieldComponent  = "component"
	FieldEventType  = "event_type"
	FieldErrorHint  = "error_hint"
	FieldImpact     = "impact"
	FieldStage      = "stage"
	FieldFrameSeq   = "frame_seq"
	FieldEventID    = "event_id"
)

type Attr = slog.Attr

func String(key, value string) Attr        { return slog.String(key, value) }
func Int(key string, value int) Attr       { return slog.Int(key, value) }
func Int64(key string, value int64) Attr   { return slog.Int64(key, value) }
func Float64(key string, value float64) Attr { return slog.Float64(key, value) }
func Bool(key string, value bool) Attr     { return slog.Bool(key, value) }
func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

// Error wraps err as a slog attribute, returning error="<nil>" when err is
// nil so call sites never need a separate nil check.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Any wraps an arbitrary value as a slog attribute.
func Any(key string, value any) Attr { return slog.Any(key, value) }

// Args flattens a slice of Attr into the variadic form slog's logging
// methods accept.
func Args(attrs ...Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	return args
}

// NewComponentLogger tags every line from logger with a component name.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// NewNop returns a logger that discards everything, for tests and wiring
// code that cannot fail.
func NewNop() *slog.Logger {
	return slog.New(noopHandler{})
}

type noopHandler struct{}

func (noopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (noopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h noopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h noopHandler) WithGroup(string) slog.Handler           { return h }

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string // "console" | "json"
	LogDir      string // directory of the append-only JSON file sink; empty disables it
	StreamHub   *StreamHub
}

// New constructs a slog logger fanning out to console/file/stream sinks.
func New(opts Options) (*slog.Logger, func() error, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))

	var handlers []slog.Handler
	handlers = append(handlers, newConsoleHandler(os.Stdout, levelVar, opts.Format == "json"))

	closer := func() error { return nil }
	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		path := filepath.Join(opts.LogDir, "woofalytics.jsonl")
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: levelVar}))
		closer = file.Close
	}

	handler := newFanoutHandler(handlers...)
	if opts.StreamHub != nil {
		handler = newStreamHandler(handler, opts.StreamHub)
	}
	return slog.New(handler), closer, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// consoleHandler prints a compact, human-scannable line per record; it
// degrades to slog's JSON handler when jsonMode is requested (useful when
// the process isn't attached to a TTY).
type consoleHandler struct {
	out    io.Writer
	level  slog.Leveler
	json   slog.Handler
	isJSON bool
	attrs  []slog.Attr
}

func newConsoleHandler(w io.Writer, level slog.Leveler, jsonMode bool) slog.Handler {
	h := &consoleHandler{out: w, level: level, isJSON: jsonMode}
	if jsonMode {
		h.json = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return h
}

func (h *consoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.isJSON {
		return h.json.Handle(ctx, record)
	}
	ts := record.Time.Format("2006-01-02 15:04:05.000")
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", ts, record.Level.String(), record.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	record.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	b.WriteByte('\n')
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &consoleHandler{out: h.out, level: h.level, isJSON: h.isJSON}
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	if h.json != nil {
		next.json = h.json.WithAttrs(attrs)
	}
	return next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if h.json != nil {
		return &consoleHandler{out: h.out, level: h.level, isJSON: h.isJSON, json: h.json.WithGroup(name), attrs: h.attrs}
	}
	return h
}

type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	filtered := handlers[:0]
	for _, h := range handlers {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	if len(filtered) == 0 {
		return noopHandler{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &fanoutHandler{handlers: append([]slog.Handler(nil), filtered...)}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for idx, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		rec := record
		if idx < len(h.handlers)-1 {
			rec = record.Clone()
		}
		if err := handler.Handle(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
