// Package receipt is the domain module for the receipt being composed. Its
// lines are ephemeral, keyed by product id and mutated exclusively through
// the INCREMENT_PRODUCT and DECREMENT_PRODUCT transitions; they only become
// durable when SUBMIT_RECEIPT turns them into an order.
//
// A line is removed when its quantity lands on exactly zero. Decrementing
// past zero leaves a negative quantity in place; this mirrors the observed
// behavior of the composer and is deliberately not clamped.
package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neomorfeo/tallyiq/internal/domain"
	"github.com/neomorfeo/tallyiq/internal/store"
)

// ProductsPort resolves products for pricing and existence checks.
type ProductsPort interface {
	ProductByID(id string) (domain.Product, bool)
}

// ConsumersPort exposes the selected consumer and their spend.
type ConsumersPort interface {
	ActiveConsumer() (domain.Consumer, bool)
	SpentBy(id string) float64
}

// OccasionsPort exposes the standing occasion context.
type OccasionsPort interface {
	ActiveOccasion() (domain.Occasion, bool)
}

// OrdersPort exposes the order an edit flow was started from.
type OrdersPort interface {
	ActiveOrder() (domain.Order, bool)
}

// LinePayload accompanies the increment and decrement transitions. A zero
// Quantity means one.
type LinePayload struct {
	ProductID string
	Quantity  int
}

func (p LinePayload) delta() int {
	if p.Quantity == 0 {
		return 1
	}
	return p.Quantity
}

// Deps are the collaborators the module needs.
type Deps struct {
	Workflow  domain.Workflow
	Surface   domain.FeedbackSurface
	Products  ProductsPort
	Consumers ConsumersPort
	Occasions OccasionsPort
	Orders    OrdersPort
	Logger    *slog.Logger
}

// Module manages the receipt lines.
type Module struct {
	*store.Store[domain.ReceiptLine]
	deps Deps

	mu             sync.RWMutex
	editingOrderID string
}

// New creates the module. Call Init once at bootstrap.
func New(deps Deps) *Module {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	m := &Module{deps: deps}
	m.Store = store.New(store.Options[domain.ReceiptLine]{Workflow: deps.Workflow})
	return m
}

// Lines returns the composed lines. Read port for the orders module.
func (m *Module) Lines() []domain.ReceiptLine {
	return m.Items()
}

// EditingOrderID returns the id of the order this receipt was seeded from,
// or empty for a fresh receipt. Read port for the orders module.
func (m *Module) EditingOrderID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.editingOrderID
}

func (m *Module) setEditingOrderID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.editingOrderID = id
}

// Total prices the receipt against the current product catalog.
func (m *Module) Total() float64 {
	var sum float64
	for _, l := range m.Items() {
		if p, ok := m.deps.Products.ProductByID(l.ID); ok {
			sum += float64(l.Quantity) * p.Price
		}
	}
	return sum
}

// QuantityOf returns the quantity on the line for the given product, zero
// when absent.
func (m *Module) QuantityOf(productID string) int {
	if l, ok := m.ItemByID(productID); ok {
		return l.Quantity
	}
	return 0
}

// IsSubmittable combines the module's own feedback with cross-module state:
// there are lines, a consumer is selected, the occasion is open, and the
// workflow is composing a receipt.
func (m *Module) IsSubmittable() bool {
	if m.HasFeedbackErrors() || m.Len() == 0 {
		return false
	}
	if _, ok := m.deps.Consumers.ActiveConsumer(); !ok {
		return false
	}
	occasion, ok := m.deps.Occasions.ActiveOccasion()
	if !ok || occasion.Closed {
		return false
	}
	return m.deps.Workflow.Is(domain.StateReceipt)
}

// IsEditable reports whether the composer accepts line mutations.
func (m *Module) IsEditable() bool {
	occasion, ok := m.deps.Occasions.ActiveOccasion()
	return ok && !occasion.Closed && m.deps.Workflow.Is(domain.StateReceipt)
}

// Init registers the module's workflow observers. Run once at bootstrap,
// before the orders module so submission validation precedes persistence.
func (m *Module) Init(context.Context) {
	wf := m.deps.Workflow

	wf.Observe(domain.BeforeHook(domain.TransitionIncrementProduct), m.onGuardLine)
	wf.Observe(domain.BeforeHook(domain.TransitionDecrementProduct), m.onGuardLine)
	wf.Observe(domain.AfterHook(domain.TransitionIncrementProduct), m.onIncrement)
	wf.Observe(domain.AfterHook(domain.TransitionDecrementProduct), m.onDecrement)
	wf.Observe(domain.BeforeHook(domain.TransitionSubmitReceipt), m.onGuardSubmit)
	wf.Observe(domain.EnterHook(domain.StateReceipt), m.onEnterReceipt)
	wf.Observe(domain.EnterHook(domain.StateIdle), m.onEnterIdle)
}

// onGuardLine vetoes line mutations for unknown products.
func (m *Module) onGuardLine(_ context.Context, _ domain.Lifecycle, payload any) error {
	p, ok := payload.(LinePayload)
	if !ok || p.ProductID == "" {
		return domain.Reject("catalog.notFound")
	}
	if _, found := m.deps.Products.ProductByID(p.ProductID); !found {
		return domain.Reject("catalog.notFound")
	}
	return nil
}

func (m *Module) onIncrement(_ context.Context, _ domain.Lifecycle, payload any) error {
	p, ok := payload.(LinePayload)
	if !ok {
		return nil
	}
	m.IncrementItem(p.ProductID, p.delta())
	return nil
}

func (m *Module) onDecrement(_ context.Context, _ domain.Lifecycle, payload any) error {
	p, ok := payload.(LinePayload)
	if !ok {
		return nil
	}
	m.DecrementItem(p.ProductID, p.delta())
	return nil
}

// onGuardSubmit vetoes empty receipts and spending-limit breaches. A breach
// also surfaces as list-scoped feedback carrying the amounts involved.
func (m *Module) onGuardSubmit(_ context.Context, _ domain.Lifecycle, _ any) error {
	if m.Len() == 0 {
		return domain.Reject("receipt.empty")
	}

	consumer, ok := m.deps.Consumers.ActiveConsumer()
	if !ok {
		return domain.Reject("receipt.noConsumer")
	}
	if consumer.SpendingLimit > 0 {
		projected := m.deps.Consumers.SpentBy(consumer.ID) + m.Total()
		if projected > consumer.SpendingLimit {
			item := domain.FeedbackItem{
				IsError: true,
				Message: "consumers.limitExceeded",
				Data: map[string]any{
					"consumerId": consumer.ID,
					"projected":  projected,
					"limit":      consumer.SpendingLimit,
				},
			}
			m.AddFeedback(item)
			if m.deps.Surface != nil {
				m.deps.Surface.Add(item)
			}
			return domain.Reject("consumers.limitExceeded")
		}
	}
	return nil
}

// onEnterReceipt seeds the composer. An edit flow copies the active order's
// lines; any other entry starts from a clean slate.
func (m *Module) onEnterReceipt(_ context.Context, lc domain.Lifecycle, _ any) error {
	m.Clear()
	m.ClearFeedback()
	m.setEditingOrderID("")

	if lc.Transition != domain.TransitionEditOrder {
		return nil
	}
	order, ok := m.deps.Orders.ActiveOrder()
	if !ok {
		return domain.ErrOrderNotFound
	}

	lines := make([]domain.ReceiptLine, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, domain.ReceiptLine{ID: l.ProductID, Quantity: l.Quantity})
	}
	m.SetItems(lines)
	// Remember which order the composer edits so submission updates it
	// instead of creating a new one.
	m.setEditingOrderID(order.ID)
	return nil
}

func (m *Module) onEnterIdle(context.Context, domain.Lifecycle, any) error {
	m.Clear()
	m.ClearFeedback()
	m.setEditingOrderID("")
	return nil
}

// IncrementItem raises the quantity of the product's line, creating it when
// absent, and drops the line when the result is exactly zero.
func (m *Module) IncrementItem(productID string, by int) {
	m.applyDelta(productID, by)
}

// DecrementItem lowers the quantity of the product's line. The line is
// removed only when the result is exactly zero; overshooting leaves a
// negative quantity.
func (m *Module) DecrementItem(productID string, by int) {
	m.applyDelta(productID, -by)
}

func (m *Module) applyDelta(productID string, delta int) {
	line, ok := m.ItemByID(productID)
	if !ok {
		line = domain.ReceiptLine{ID: productID}
	}
	line.Quantity += delta

	switch {
	case line.Quantity == 0:
		m.RemoveItem(productID)
	case ok:
		m.SetItemInList(line)
	default:
		m.AddItem(line)
	}
}

// --- Actions ---

// Start opens the composer for the given consumer.
func (m *Module) Start(ctx context.Context, consumerID string) error {
	return m.deps.Workflow.Do(ctx, store.ByID[domain.Consumer](consumerID), domain.TransitionStartReceipt)
}

// Increment adds one unit of the product.
func (m *Module) Increment(ctx context.Context, productID string) error {
	return m.deps.Workflow.Do(ctx, LinePayload{ProductID: productID}, domain.TransitionIncrementProduct)
}

// IncrementBy adds the given number of units.
func (m *Module) IncrementBy(ctx context.Context, productID string, quantity int) error {
	return m.deps.Workflow.Do(ctx, LinePayload{ProductID: productID, Quantity: quantity}, domain.TransitionIncrementProduct)
}

// Decrement removes one unit of the product.
func (m *Module) Decrement(ctx context.Context, productID string) error {
	return m.deps.Workflow.Do(ctx, LinePayload{ProductID: productID}, domain.TransitionDecrementProduct)
}

// DecrementBy removes the given number of units.
func (m *Module) DecrementBy(ctx context.Context, productID string, quantity int) error {
	return m.deps.Workflow.Do(ctx, LinePayload{ProductID: productID, Quantity: quantity}, domain.TransitionDecrementProduct)
}

// Submit turns the receipt into an order.
func (m *Module) Submit(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionSubmitReceipt)
}

// Cancel leaves the composer without submitting.
func (m *Module) Cancel(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionCloseItem)
}

// String summarizes the receipt for logging.
func (m *Module) String() string {
	return fmt.Sprintf("receipt(%d lines, %.2f)", m.Len(), m.Total())
}
