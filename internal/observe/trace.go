package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vilakkam/vilakkam/pipeline"

// Span attribute keys set by the explanation pipeline. All live under the
// "vilakkam." namespace so they never collide with semantic conventions.
const (
	// AttrStage names the input-normalisation stage (transcribe, extract).
	AttrStage = attribute.Key("vilakkam.stage")
	// AttrProvenance records where the message text came from.
	AttrProvenance = attribute.Key("vilakkam.provenance")
	// AttrOutcome is how the explanation was produced (model, too_short, fail_safe).
	AttrOutcome = attribute.Key("vilakkam.outcome")
	// AttrUrgency is the urgency of the final explanation.
	AttrUrgency = attribute.Key("vilakkam.urgency")
	// AttrAudioAttached reports whether synthesized speech was attached.
	AttrAudioAttached = attribute.Key("vilakkam.audio_attached")
	// AttrErrorKind is the client-facing error category of a failed request.
	AttrErrorKind = attribute.Key("vilakkam.error_kind")
)

// Tracer returns the pipeline tracer from the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// PipelineSpanName is the span name for a pipeline operation or stage,
// e.g. "pipeline.explain_text".
func PipelineSpanName(op string) string {
	return "pipeline." + op
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the trace ID of the active span in ctx, or "" when there
// is none. [Middleware] returns it to clients in the X-Correlation-ID header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
