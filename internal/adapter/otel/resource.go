package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/tallyiq/internal/domain"
)

const tracerName = "github.com/neomorfeo/tallyiq/internal/adapter/otel"

// TracingResource wraps a domain.Resource with OpenTelemetry tracing.
// Each call creates a span named after the resource and operation and
// records errors.
type TracingResource[T domain.Entity] struct {
	next   domain.Resource[T]
	name   string
	tracer trace.Tracer
}

// NewTracingResource creates a tracing decorator around the given resource.
// The name prefixes span names, e.g. "products" yields "products.Get".
func NewTracingResource[T domain.Entity](name string, next domain.Resource[T]) *TracingResource[T] {
	return &TracingResource[T]{
		next:   next,
		name:   name,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingResource[T]) Get(ctx context.Context, query domain.Query, onUpdate func([]T)) ([]T, error) {
	ctx, span := r.tracer.Start(ctx, r.name+".Get",
		trace.WithAttributes(
			attribute.String("query.search", query.Search),
			attribute.Bool("query.include_trashed", query.IncludeTrashed),
		),
	)
	defer span.End()

	items, err := r.next.Get(ctx, query, onUpdate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(items)))
	}
	return items, err
}

func (r *TracingResource[T]) Create(ctx context.Context, item T) (T, error) {
	ctx, span := r.tracer.Start(ctx, r.name+".Create")
	defer span.End()

	created, err := r.next.Create(ctx, item)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("item.id", created.EntityID()))
	}
	return created, err
}

func (r *TracingResource[T]) Update(ctx context.Context, item T) (T, error) {
	ctx, span := r.tracer.Start(ctx, r.name+".Update",
		trace.WithAttributes(attribute.String("item.id", item.EntityID())),
	)
	defer span.End()

	updated, err := r.next.Update(ctx, item)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return updated, err
}

func (r *TracingResource[T]) Trash(ctx context.Context, id string) (T, error) {
	ctx, span := r.tracer.Start(ctx, r.name+".Trash",
		trace.WithAttributes(attribute.String("item.id", id)),
	)
	defer span.End()

	item, err := r.next.Trash(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return item, err
}

func (r *TracingResource[T]) Untrash(ctx context.Context, id string) (T, error) {
	ctx, span := r.tracer.Start(ctx, r.name+".Untrash",
		trace.WithAttributes(attribute.String("item.id", id)),
	)
	defer span.End()

	item, err := r.next.Untrash(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return item, err
}

// TracingOccasionResource adds tracing for the occasion lifecycle calls on
// top of the base resource decorator.
type TracingOccasionResource struct {
	*TracingResource[domain.Occasion]
	next domain.OccasionResource
}

// Compile-time check: TracingOccasionResource implements domain.OccasionResource.
var _ domain.OccasionResource = (*TracingOccasionResource)(nil)

// NewTracingOccasionResource creates a tracing decorator around the given
// occasion resource.
func NewTracingOccasionResource(next domain.OccasionResource) *TracingOccasionResource {
	return &TracingOccasionResource{
		TracingResource: NewTracingResource[domain.Occasion]("occasions", next),
		next:            next,
	}
}

func (r *TracingOccasionResource) Close(ctx context.Context, id string) (domain.Occasion, error) {
	ctx, span := r.tracer.Start(ctx, "occasions.Close",
		trace.WithAttributes(attribute.String("item.id", id)),
	)
	defer span.End()

	occasion, err := r.next.Close(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return occasion, err
}

func (r *TracingOccasionResource) Reopen(ctx context.Context, id string) (domain.Occasion, error) {
	ctx, span := r.tracer.Start(ctx, "occasions.Reopen",
		trace.WithAttributes(attribute.String("item.id", id)),
	)
	defer span.End()

	occasion, err := r.next.Reopen(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return occasion, err
}

// TracingBackend decorates every resource of a domain.Backend with tracing.
type TracingBackend struct {
	consumers     *TracingResource[domain.Consumer]
	consumerTypes *TracingResource[domain.ConsumerType]
	products      *TracingResource[domain.Product]
	occasions     *TracingOccasionResource
	orders        *TracingResource[domain.Order]
}

// Compile-time check: TracingBackend implements domain.Backend.
var _ domain.Backend = (*TracingBackend)(nil)

// NewTracingBackend creates a tracing decorator around the given backend.
func NewTracingBackend(next domain.Backend) *TracingBackend {
	return &TracingBackend{
		consumers:     NewTracingResource[domain.Consumer]("consumers", next.Consumers()),
		consumerTypes: NewTracingResource[domain.ConsumerType]("consumer_types", next.ConsumerTypes()),
		products:      NewTracingResource[domain.Product]("products", next.Products()),
		occasions:     NewTracingOccasionResource(next.Occasions()),
		orders:        NewTracingResource[domain.Order]("orders", next.Orders()),
	}
}

func (b *TracingBackend) Consumers() domain.Resource[domain.Consumer] { return b.consumers }

func (b *TracingBackend) ConsumerTypes() domain.Resource[domain.ConsumerType] {
	return b.consumerTypes
}

func (b *TracingBackend) Products() domain.Resource[domain.Product] { return b.products }

func (b *TracingBackend) Occasions() domain.OccasionResource { return b.occasions }

func (b *TracingBackend) Orders() domain.Resource[domain.Order] { return b.orders }
