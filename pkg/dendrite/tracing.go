package dendrite

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for event-sourcing spans, mirroring the teacher's
// observability package conventions.
var (
	attrLogID      = attribute.Key("dendrite.log_id")
	attrEventCount = attribute.Key("dendrite.event_count")
	attrEventType  = attribute.Key("dendrite.event_type")
	attrEventID    = attribute.Key("dendrite.event_id")
)

// defaultTracerName is used when a component isn't given an explicit
// tracer.
const defaultTracerName = "github.com/plaenen/dendrite"

func defaultTracer() trace.Tracer {
	return otel.Tracer(defaultTracerName)
}

// startSpan starts a span and returns it with the context carrying it,
// following the teacher's StartSpan/EndSpan helper pair.
func startSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = defaultTracer()
	}
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// endSpan ends span, recording err on it if non-nil.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
