package service

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/example/blog-cms/internal/service"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	associationsWritten, _ = meter.Int64Counter("blog.post_categories.written",
		metric.WithDescription("Association rows inserted by post create/update"),
		metric.WithUnit("{row}"),
	)
	associationsRemoved, _ = meter.Int64Counter("blog.post_categories.removed",
		metric.WithDescription("Association rows deleted by post update"),
		metric.WithUnit("{row}"),
	)
)

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
