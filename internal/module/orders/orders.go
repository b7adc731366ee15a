// Package orders is the domain module for persisted orders. Orders are not
// edited field by field: they are composed through the receipt module, and
// this module persists the outcome when SUBMIT_RECEIPT runs, decorates raw
// records with resolved consumers and computed totals, and enforces the
// time lock after which an order may no longer change.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/tallyiq/internal/domain"
	"github.com/neomorfeo/tallyiq/internal/services"
	"github.com/neomorfeo/tallyiq/internal/store"
)

// ConsumersPort is the narrow read surface this module needs from the
// consumers module.
type ConsumersPort interface {
	ConsumerByID(id string) (domain.Consumer, bool)
	ActiveConsumer() (domain.Consumer, bool)
}

// ProductsPort resolves products for line pricing.
type ProductsPort interface {
	ProductByID(id string) (domain.Product, bool)
}

// OccasionsPort exposes the standing occasion context.
type OccasionsPort interface {
	ActiveOccasion() (domain.Occasion, bool)
}

// ReceiptPort exposes the receipt being composed.
type ReceiptPort interface {
	Lines() []domain.ReceiptLine
	EditingOrderID() string
}

// Deps are the collaborators the module needs.
type Deps struct {
	Workflow  domain.Workflow
	API       domain.Resource[domain.Order]
	Publisher domain.OrderPublisher
	Consumers ConsumersPort
	Products  ProductsPort
	Occasions OccasionsPort
	Receipt   ReceiptPort
	Delay     domain.DelayFunc
	Logger    *slog.Logger

	// LockWindow is how long after creation an order stays changeable. Zero
	// disables the lock entirely.
	LockWindow time.Duration

	MinLoadingTime time.Duration

	// Now is the clock, injectable for tests.
	Now func() time.Time
}

// Decorated is an order joined with its resolved consumer and computed
// totals.
type Decorated struct {
	domain.Order
	Consumer *domain.Consumer
	Total    float64
	Quantity int
	Locked   bool
}

// Module manages the order list for the active occasion.
type Module struct {
	*store.Store[domain.Order]
	deps Deps
}

// New creates the module. Call Init once at bootstrap.
func New(deps Deps) *Module {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Delay == nil {
		deps.Delay = services.Delay
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	m := &Module{deps: deps}
	// Orders carry no patchable fields; the factory still provides the
	// list, active-item and feedback lifecycle.
	m.Store = store.New(store.Options[domain.Order]{Workflow: deps.Workflow})
	return m
}

// IsItemLocked reports whether the order's change window has passed. A zero
// window means orders never lock.
func (m *Module) IsItemLocked(o domain.Order) bool {
	if m.deps.LockWindow == 0 {
		return false
	}
	return m.deps.Now().After(o.CreatedAt.Add(m.deps.LockWindow))
}

// Listing returns orders decorated with resolved consumers, totals and lock
// state.
func (m *Module) Listing() []Decorated {
	var out []Decorated
	for _, o := range m.Items() {
		d := Decorated{
			Order:    o,
			Total:    o.Total(),
			Quantity: o.Quantity(),
			Locked:   m.IsItemLocked(o),
		}
		if c, ok := m.deps.Consumers.ConsumerByID(o.ConsumerID); ok {
			d.Consumer = &c
		}
		out = append(out, d)
	}
	return out
}

// OrdersForConsumer is the read port the consumers module reduces over.
func (m *Module) OrdersForConsumer(id string) []domain.Order {
	var out []domain.Order
	for _, o := range m.Items() {
		if o.ConsumerID == id {
			out = append(out, o)
		}
	}
	return out
}

// Count is the read port the occasions module checks deletability with.
func (m *Module) Count() int {
	return m.Len()
}

// ActiveOrder is the read port the receipt module seeds edit flows from.
func (m *Module) ActiveOrder() (domain.Order, bool) {
	return m.Active()
}

// Init registers the module's workflow observers. Run once at bootstrap.
// The SUBMIT_RECEIPT before observer must come after the receipt module's
// own validation observers; the workspace init order guarantees that.
func (m *Module) Init(context.Context) {
	wf := m.deps.Workflow

	wf.Observe(domain.BeforeHook(domain.TransitionSelectOrder), m.onSelect)
	wf.Observe(domain.BeforeHook(domain.TransitionEditOrder), m.onEditOrder)
	wf.Observe(domain.BeforeHook(domain.TransitionDeleteOrder), m.onDelete)
	wf.Observe(domain.BeforeHook(domain.TransitionSubmitReceipt), m.onSubmitReceipt)
	wf.Observe(domain.AfterHook(domain.TransitionSubmitReceipt), m.onAfterSubmit)
	wf.Observe(domain.EnterHook(domain.StateIdle), m.onEnterIdle)
}

func (m *Module) onSelect(_ context.Context, _ domain.Lifecycle, payload any) error {
	p, ok := payload.(store.Payload[domain.Order])
	if !ok || p.IsZero() {
		return domain.Reject("catalog.notFound")
	}
	if _, found := m.ItemByID(p.ID()); !found {
		return domain.Reject("catalog.notFound")
	}
	m.SetActive(p)
	return nil
}

func (m *Module) onEditOrder(context.Context, domain.Lifecycle, any) error {
	active, ok := m.Active()
	if !ok {
		return domain.ErrNoActiveItem
	}
	if m.IsItemLocked(active) {
		return domain.Reject("orders.locked")
	}
	return nil
}

func (m *Module) onDelete(ctx context.Context, _ domain.Lifecycle, _ any) error {
	active, ok := m.Active()
	if !ok {
		return domain.ErrNoActiveItem
	}
	if m.IsItemLocked(active) {
		return domain.Reject("orders.locked")
	}

	trashed, err := m.deps.API.Trash(ctx, active.ID)
	if err != nil {
		return fmt.Errorf("trashing order: %w", err)
	}
	m.RemoveActiveItemFromList(store.ByItem(trashed))
	return nil
}

// onSubmitReceipt persists the composed receipt as an order. Editing an
// existing order updates it in place; otherwise a new order is created. The
// confirmed order becomes the active one so the post-commit observer can
// publish it before idle clears the context.
func (m *Module) onSubmitReceipt(ctx context.Context, _ domain.Lifecycle, _ any) error {
	consumer, ok := m.deps.Consumers.ActiveConsumer()
	if !ok {
		return domain.Reject("receipt.noConsumer")
	}
	occasion, ok := m.deps.Occasions.ActiveOccasion()
	if !ok {
		return domain.Reject("receipt.noOccasion")
	}

	lines := make([]domain.OrderLine, 0, len(m.deps.Receipt.Lines()))
	for _, l := range m.deps.Receipt.Lines() {
		product, found := m.deps.Products.ProductByID(l.ID)
		if !found {
			return domain.Reject("catalog.notFound")
		}
		lines = append(lines, domain.OrderLine{
			ProductID: l.ID,
			Quantity:  l.Quantity,
			Price:     product.Price,
		})
	}

	order := domain.Order{
		ID:         m.deps.Receipt.EditingOrderID(),
		ConsumerID: consumer.ID,
		OccasionID: occasion.ID,
		Lines:      lines,
	}

	if order.ID == "" {
		order.CreatedAt = m.deps.Now().UTC()
		created, err := m.deps.API.Create(ctx, order)
		if err != nil {
			return fmt.Errorf("creating order: %w", err)
		}
		m.AddItem(created)
		m.SetActive(store.ByItem(created))
		return nil
	}

	// Editing keeps the original timestamp so the lock window is not reset,
	// even when the backing Resource persists the payload verbatim.
	if existing, found := m.ItemByID(order.ID); found {
		order.CreatedAt = existing.CreatedAt
	}

	updated, err := m.deps.API.Update(ctx, order)
	if err != nil {
		return fmt.Errorf("updating order: %w", err)
	}
	m.SetActiveItemInList(updated)
	return nil
}

// onAfterSubmit publishes the confirmed order. It runs after the commit but
// before enter.idle clears the active order.
func (m *Module) onAfterSubmit(ctx context.Context, lc domain.Lifecycle, _ any) error {
	order, ok := m.Active()
	if !ok {
		return domain.ErrOrderNotFound
	}
	if m.deps.Publisher == nil {
		return nil
	}
	if err := m.deps.Publisher.Publish(ctx, lc.Transition, order); err != nil {
		return fmt.Errorf("publishing order event: %w", err)
	}
	return nil
}

func (m *Module) onEnterIdle(context.Context, domain.Lifecycle, any) error {
	m.ClearActive()
	m.ClearFeedback()
	return nil
}

// Load hydrates the orders of the given occasion, applying every streamed
// snapshot.
func (m *Module) Load(ctx context.Context, occasionID string) error {
	started := time.Now()

	items, err := m.deps.API.Get(ctx, domain.Query{OccasionID: occasionID}, func(partial []domain.Order) {
		m.SetItems(partial)
	})
	if err != nil {
		return fmt.Errorf("loading orders: %w", err)
	}
	m.SetItems(items)

	if rest := m.deps.MinLoadingTime - time.Since(started); rest > 0 {
		if err := m.deps.Delay(ctx, rest); err != nil {
			return err
		}
	}
	return nil
}

// --- Actions ---

// Select opens an order for viewing.
func (m *Module) Select(ctx context.Context, id string) error {
	return m.deps.Workflow.Do(ctx, store.ByID[domain.Order](id), domain.TransitionSelectOrder)
}

// Edit reopens the selected order in the receipt composer.
func (m *Module) Edit(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionEditOrder)
}

// Delete trashes the selected order.
func (m *Module) Delete(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionDeleteOrder)
}

// Close leaves the order view.
func (m *Module) Close(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionCloseItem)
}
