package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/tallyiq/internal/domain"
)

// Compile-time check: Publisher implements domain.OrderPublisher.
var _ domain.OrderPublisher = (*Publisher)(nil)

// OrderJobArgs carries the data needed to process an order event
// asynchronously. River serializes this as JSON into its job queue table. It
// includes a snapshot of the order at the time it was placed, so the worker
// never needs to query the database.
type OrderJobArgs struct {
	Transition string         `json:"transition"`
	OrderID    string         `json:"order_id"`
	ConsumerID string         `json:"consumer_id"`
	OccasionID string         `json:"occasion_id"`
	Total      float64        `json:"total"`
	Lines      []OrderJobLine `json:"lines"`
}

// OrderJobLine is one product position of the order snapshot.
type OrderJobLine struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (OrderJobArgs) Kind() string { return "order.placed" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.OrderPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues an order event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, transition domain.Transition, order domain.Order) error {
	lines := make([]OrderJobLine, len(order.Lines))
	for i, l := range order.Lines {
		lines[i] = OrderJobLine{ProductID: l.ProductID, Quantity: l.Quantity, Price: l.Price}
	}

	_, err := p.client.Insert(ctx, OrderJobArgs{
		Transition: string(transition),
		OrderID:    order.ID,
		ConsumerID: order.ConsumerID,
		OccasionID: order.OccasionID,
		Total:      order.Total(),
		Lines:      lines,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing order job: %w", err)
	}
	return nil
}
