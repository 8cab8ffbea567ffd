package fsops

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "trashcan/fsops"

type tracedDeleter struct {
	next   Deleter
	tracer trace.Tracer
}

// Traced wraps d so every Delete call is recorded as a span on the global
// OpenTelemetry tracer provider. With no provider installed the spans are no-ops.
func Traced(d Deleter) Deleter {
	return &tracedDeleter{
		next:   d,
		tracer: otel.Tracer(tracerName),
	}
}

func (t *tracedDeleter) Delete(path string) error {
	_, span := t.tracer.Start(context.Background(), "fsops.Delete",
		trace.WithAttributes(attribute.String("fs.path", path)))
	defer span.End()

	err := t.next.Delete(path)
	if err != nil {
		span.SetStatus(codes.Error, "delete failed")
		span.RecordError(err)
	}
	return err
}
