package otel_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	adapter "github.com/neomorfeo/tallyiq/internal/adapter/otel"
	"github.com/neomorfeo/tallyiq/internal/domain"
)

// --- Test tracer setup ---

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter
}

// --- Mock resource ---

type mockProducts struct {
	products map[string]domain.Product
}

func newMockProducts() *mockProducts {
	return &mockProducts{products: make(map[string]domain.Product)}
}

func (m *mockProducts) Get(_ context.Context, _ domain.Query, _ func([]domain.Product)) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProducts) Create(_ context.Context, p domain.Product) (domain.Product, error) {
	if p.ID == "" {
		p.ID = "p-generated"
	}
	m.products[p.ID] = p
	return p, nil
}

func (m *mockProducts) Update(_ context.Context, p domain.Product) (domain.Product, error) {
	if _, ok := m.products[p.ID]; !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	m.products[p.ID] = p
	return p, nil
}

func (m *mockProducts) Trash(_ context.Context, id string) (domain.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (m *mockProducts) Untrash(_ context.Context, id string) (domain.Product, error) {
	return m.Trash(context.Background(), id)
}

// --- Tests ---

func TestTracingResource_Create_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockProducts()
	res := adapter.NewTracingResource[domain.Product]("products", inner)

	created, err := res.Create(context.Background(), domain.Product{Title: "Cola", Price: 1.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "products.Create" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "products.Create")
	}

	assertAttribute(t, spans[0], "item.id", created.ID)
}

func TestTracingResource_Get_RecordsResultCount(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockProducts()
	res := adapter.NewTracingResource[domain.Product]("products", inner)

	inner.products["p-1"] = domain.Product{ID: "p-1", Title: "Cola"}
	inner.products["p-2"] = domain.Product{ID: "p-2", Title: "Beer"}

	products, err := res.Get(context.Background(), domain.Query{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 2 {
		t.Errorf("got %d products, want 2", len(products))
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}

	assertAttribute(t, spans[0], "result.count", "2")
}

func TestTracingResource_Update_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := newMockProducts()
	res := adapter.NewTracingResource[domain.Product]("products", inner)

	_, err := res.Update(context.Background(), domain.Product{ID: "nonexistent"})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}

	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}

	if len(spans[0].Events) == 0 {
		t.Error("expected error event on span")
	}
}

// --- Occasion lifecycle ---

type mockOccasions struct {
	occasions map[string]domain.Occasion
}

func (m *mockOccasions) Get(_ context.Context, _ domain.Query, _ func([]domain.Occasion)) ([]domain.Occasion, error) {
	return nil, nil
}

func (m *mockOccasions) Create(_ context.Context, o domain.Occasion) (domain.Occasion, error) {
	m.occasions[o.ID] = o
	return o, nil
}

func (m *mockOccasions) Update(_ context.Context, o domain.Occasion) (domain.Occasion, error) {
	m.occasions[o.ID] = o
	return o, nil
}

func (m *mockOccasions) Trash(_ context.Context, id string) (domain.Occasion, error) {
	return m.occasions[id], nil
}

func (m *mockOccasions) Untrash(_ context.Context, id string) (domain.Occasion, error) {
	return m.occasions[id], nil
}

func (m *mockOccasions) Close(_ context.Context, id string) (domain.Occasion, error) {
	o, ok := m.occasions[id]
	if !ok {
		return domain.Occasion{}, domain.ErrOccasionNotFound
	}
	o.Closed = true
	m.occasions[id] = o
	return o, nil
}

func (m *mockOccasions) Reopen(_ context.Context, id string) (domain.Occasion, error) {
	o, ok := m.occasions[id]
	if !ok {
		return domain.Occasion{}, domain.ErrOccasionNotFound
	}
	o.Closed = false
	m.occasions[id] = o
	return o, nil
}

func TestTracingOccasionResource_Close_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := &mockOccasions{occasions: map[string]domain.Occasion{
		"o-1": {ID: "o-1", Title: "Party"},
	}}
	res := adapter.NewTracingOccasionResource(inner)

	closed, err := res.Close(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !closed.Closed {
		t.Error("occasion should be closed")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "occasions.Close" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "occasions.Close")
	}

	assertAttribute(t, spans[0], "item.id", "o-1")
}

// assertAttribute checks that a span has an attribute with the given key and string value.
func assertAttribute(t *testing.T, span tracetest.SpanStub, key, want string) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			got := attr.Value.Emit()
			if got != want {
				t.Errorf("attribute %q = %q, want %q", key, got, want)
			}
			return
		}
	}
	t.Errorf("attribute %q not found on span %q", key, span.Name)
}
