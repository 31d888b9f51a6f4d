package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Span is a named unit of work inside a trace. Its completion record carries
// the duration, any attributes set along the way and the recorded error.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time

	mu    sync.Mutex
	attrs []slog.Attr
	err   error
}

// StartSpan derives a child span from ctx. The returned context carries a logger
// tagged with trace_id, span_id and, for nested spans, parent_span_id, plus the
// span itself. Nested span loggers are built from the logger that was current
// when the outermost span started, so each id key appears once per record.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	base, ok := lookup[*slog.Logger](ctx, spanBaseKey)
	if !ok {
		base = FromContext(ctx)
		ctx = context.WithValue(ctx, spanBaseKey, base)
	}

	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}

	spanID := uuid.NewString()
	attrs := []any{slog.String("trace_id", traceID), slog.String("span_id", spanID)}
	if parent := SpanIDFromContext(ctx); parent != "" {
		attrs = append(attrs, slog.String("parent_span_id", parent))
	}
	logger := base.With(attrs...)

	span := &Span{name: name, logger: logger, start: time.Now()}

	ctx = WithLogger(ctx, logger)
	ctx = context.WithValue(ctx, spanIDKey, spanID)
	ctx = context.WithValue(ctx, spanKey, span)
	return ctx, span
}

// SpanFromContext returns the innermost span, or nil. All Span methods accept
// a nil receiver.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := lookup[*Span](ctx, spanKey)
	return span
}

// SetAttributes adds attributes to the completion record.
func (s *Span) SetAttributes(attrs ...slog.Attr) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, attrs...)
	s.mu.Unlock()
}

// RecordError marks the span failed.
func (s *Span) RecordError(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// End emits the completion record.
func (s *Span) End() {
	if s == nil {
		return
	}

	s.mu.Lock()
	attrs := append([]slog.Attr{
		slog.String("span_name", s.name),
		slog.Duration("duration", time.Since(s.start)),
	}, s.attrs...)
	err := s.err
	s.mu.Unlock()

	if err != nil {
		attrs = append(attrs, slog.String("span_status", "error"), slog.Any("error", err))
	} else {
		attrs = append(attrs, slog.String("span_status", "ok"))
	}
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "span completed", attrs...)
}
