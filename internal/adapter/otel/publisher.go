package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/tallyiq/internal/domain"
)

// TracingPublisher wraps a domain.OrderPublisher with OpenTelemetry tracing.
type TracingPublisher struct {
	next   domain.OrderPublisher
	tracer trace.Tracer
}

// Compile-time check: TracingPublisher implements domain.OrderPublisher.
var _ domain.OrderPublisher = (*TracingPublisher)(nil)

// NewTracingPublisher creates a tracing decorator around the given publisher.
func NewTracingPublisher(next domain.OrderPublisher) *TracingPublisher {
	return &TracingPublisher{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (p *TracingPublisher) Publish(ctx context.Context, transition domain.Transition, order domain.Order) error {
	ctx, span := p.tracer.Start(ctx, "OrderPublisher.Publish",
		trace.WithAttributes(
			attribute.String("order.transition", string(transition)),
			attribute.String("order.id", order.ID),
			attribute.String("order.consumer_id", order.ConsumerID),
			attribute.Float64("order.total", order.Total()),
		),
	)
	defer span.End()

	err := p.next.Publish(ctx, transition, order)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
