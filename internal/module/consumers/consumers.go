// Package consumers is the domain module for the consumer catalog. Besides
// the plain list lifecycle it joins consumers with their types, aggregates
// spend over the orders module through a read port, and commits the receipt
// flow's consumer selection.
package consumers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/neomorfeo/tallyiq/internal/domain"
	"github.com/neomorfeo/tallyiq/internal/services"
	"github.com/neomorfeo/tallyiq/internal/store"
)

// AllowedStates are the workflow states in which a consumer patch may be
// submitted.
var AllowedStates = []domain.State{domain.StateConsumerEdit, domain.StateConsumerCreate}

// OrdersPort is the narrow read surface this module needs from the orders
// module.
type OrdersPort interface {
	OrdersForConsumer(id string) []domain.Order
	ActiveOrder() (domain.Order, bool)
}

// Deps are the collaborators the module needs.
type Deps struct {
	Workflow domain.Workflow
	API      domain.Resource[domain.Consumer]
	Types    domain.Resource[domain.ConsumerType]
	Orders   OrdersPort
	Auth     domain.Authorizer
	Delay    domain.DelayFunc
	Logger   *slog.Logger

	MinLoadingTime time.Duration
}

// Stats aggregates a consumer's orders.
type Stats struct {
	OrderCount int
	Quantity   int
	Total      float64
}

// Decorated is a consumer joined with its type and order stats.
type Decorated struct {
	domain.Consumer
	Type        *domain.ConsumerType
	Stats       Stats
	WithinLimit bool
}

// Module manages the consumer list and its edit lifecycle.
type Module struct {
	*store.Store[domain.Consumer]
	deps Deps

	mu    sync.RWMutex
	types []domain.ConsumerType
}

// New creates the module. Call Init once at bootstrap.
func New(deps Deps) *Module {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Delay == nil {
		deps.Delay = services.Delay
	}

	m := &Module{deps: deps}
	m.Store = store.New(store.Options[domain.Consumer]{
		Workflow: deps.Workflow,
		NewItem:  func() domain.Consumer { return domain.Consumer{Show: true} },
		Fields: []store.Field[domain.Consumer]{
			{
				Name:     "name",
				Get:      func(c domain.Consumer) any { return c.Name },
				Set:      func(c *domain.Consumer, v any) { c.Name, _ = v.(string) },
				Sanitize: store.TrimString,
				Validate: store.RequireString[domain.Consumer]("name", "consumers.nameRequired"),
			},
			{
				Name:     "typeId",
				Get:      func(c domain.Consumer) any { return c.TypeID },
				Set:      func(c *domain.Consumer, v any) { c.TypeID, _ = v.(string) },
				Sanitize: store.TrimString,
			},
			{
				Name:     "iban",
				Get:      func(c domain.Consumer) any { return c.IBAN },
				Set:      func(c *domain.Consumer, v any) { c.IBAN, _ = v.(string) },
				Sanitize: sanitizeIBAN,
			},
			{
				Name:     "show",
				Get:      func(c domain.Consumer) any { return c.Show },
				Set:      func(c *domain.Consumer, v any) { c.Show, _ = v.(bool) },
				Sanitize: store.ToBool,
			},
			{
				Name:     "spendingLimit",
				Get:      func(c domain.Consumer) any { return c.SpendingLimit },
				Set:      func(c *domain.Consumer, v any) { c.SpendingLimit, _ = v.(float64) },
				Sanitize: store.ToNumber,
			},
		},
	})
	return m
}

// sanitizeIBAN uppercases and strips all spaces; formatting for display is
// someone else's concern.
func sanitizeIBAN(v any) any {
	s, _ := v.(string)
	return strings.ToUpper(strings.ReplaceAll(s, " ", ""))
}

// Submittable reports whether the active consumer may be saved.
func (m *Module) Submittable() bool {
	return m.Store.Submittable(AllowedStates...)
}

// TypeByID finds a consumer type.
func (m *Module) TypeByID(id string) (domain.ConsumerType, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.types {
		if t.ID == id {
			return t, true
		}
	}
	return domain.ConsumerType{}, false
}

// Types returns the loaded consumer types.
func (m *Module) Types() []domain.ConsumerType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ConsumerType, len(m.types))
	copy(out, m.types)
	return out
}

// Listing returns visible consumers joined with their type and order stats,
// filtered by the current search query.
func (m *Module) Listing() []Decorated {
	query := strings.ToLower(m.SearchQuery())
	var out []Decorated
	for _, c := range m.Items() {
		if !c.Show {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(c.Name), query) {
			continue
		}
		d := Decorated{
			Consumer:    c,
			Stats:       m.StatsFor(c.ID),
			WithinLimit: m.WithinLimit(c.ID),
		}
		if t, ok := m.TypeByID(c.TypeID); ok {
			d.Type = &t
		}
		out = append(out, d)
	}
	return out
}

// StatsFor reduces over the consumer's orders: count, total quantity and
// total consumed value.
func (m *Module) StatsFor(id string) Stats {
	var s Stats
	for _, o := range m.deps.Orders.OrdersForConsumer(id) {
		s.OrderCount++
		s.Quantity += o.Quantity()
		s.Total += o.Total()
	}
	return s
}

// SpentBy returns the consumer's total consumed value.
func (m *Module) SpentBy(id string) float64 {
	return m.StatsFor(id).Total
}

// WithinLimit reports spending-limit compliance. A zero limit means no
// limit.
func (m *Module) WithinLimit(id string) bool {
	c, ok := m.ItemByID(id)
	if !ok || c.SpendingLimit == 0 {
		return true
	}
	return m.SpentBy(id) < c.SpendingLimit
}

// ActiveConsumer is the read port the receipt module uses.
func (m *Module) ActiveConsumer() (domain.Consumer, bool) {
	return m.Active()
}

// ConsumerByID is the read port the orders module uses.
func (m *Module) ConsumerByID(id string) (domain.Consumer, bool) {
	return m.ItemByID(id)
}

// Init registers the module's workflow observers. Run once at bootstrap.
func (m *Module) Init(context.Context) {
	wf := m.deps.Workflow

	wf.Observe(domain.BeforeHook(domain.TransitionSelectConsumer), m.onSelect)
	wf.Observe(domain.BeforeHook(domain.TransitionEditConsumer), m.onEdit)
	wf.Observe(domain.BeforeHook(domain.TransitionCreateConsumer), m.onCreate)
	wf.Observe(domain.BeforeHook(domain.TransitionSaveConsumer), m.onSave)
	wf.Observe(domain.BeforeHook(domain.TransitionDeleteConsumer), m.onDelete)
	wf.Observe(domain.BeforeHook(domain.TransitionCancelEdit), m.onCancel)
	wf.Observe(domain.BeforeHook(domain.TransitionStartReceipt), m.onStartReceipt)
	wf.Observe(domain.BeforeHook(domain.TransitionEditOrder), m.onEditOrder)
	wf.Observe(domain.EnterHook(domain.StateIdle), m.onEnterIdle)
}

func (m *Module) onSelect(_ context.Context, _ domain.Lifecycle, payload any) error {
	p, ok := payload.(store.Payload[domain.Consumer])
	if !ok || p.IsZero() {
		return domain.Reject("catalog.notFound")
	}
	if _, found := m.ItemByID(p.ID()); !found {
		return domain.Reject("catalog.notFound")
	}
	m.SetActive(p)
	return nil
}

func (m *Module) onEdit(context.Context, domain.Lifecycle, any) error {
	if !m.deps.Auth.UserCan(services.CapManageCatalog) {
		return domain.Reject("settings.notAllowed")
	}
	if _, ok := m.Active(); !ok {
		return domain.ErrNoActiveItem
	}
	return nil
}

func (m *Module) onCreate(context.Context, domain.Lifecycle, any) error {
	if !m.deps.Auth.UserCan(services.CapManageCatalog) {
		return domain.Reject("catalog.createNotAllowed")
	}
	m.SetNewActive(m.NewItem())
	return nil
}

func (m *Module) onSave(ctx context.Context, lc domain.Lifecycle, _ any) error {
	if !m.Submittable() {
		return domain.Reject("catalog.notSubmittable")
	}
	active, ok := m.Active()
	if !ok {
		return domain.ErrNoActiveItem
	}

	if lc.From == domain.StateConsumerCreate {
		created, err := m.deps.API.Create(ctx, active)
		if err != nil {
			return fmt.Errorf("creating consumer: %w", err)
		}
		m.AddItem(created)
		m.SetActive(store.ByItem(created))
		return nil
	}

	updated, err := m.deps.API.Update(ctx, active)
	if err != nil {
		return fmt.Errorf("updating consumer: %w", err)
	}
	m.SetActiveItemInList(updated)
	return nil
}

func (m *Module) onDelete(ctx context.Context, _ domain.Lifecycle, _ any) error {
	if !m.deps.Auth.UserCan(services.CapDeleteItems) {
		return domain.Reject("catalog.deleteNotAllowed")
	}
	active, ok := m.Active()
	if !ok {
		return domain.ErrNoActiveItem
	}

	trashed, err := m.deps.API.Trash(ctx, active.ID)
	if err != nil {
		return fmt.Errorf("trashing consumer: %w", err)
	}
	m.RemoveActiveItemFromList(store.ByItem(trashed))
	return nil
}

func (m *Module) onCancel(_ context.Context, lc domain.Lifecycle, _ any) error {
	switch lc.From {
	case domain.StateConsumerEdit:
		if active, ok := m.Active(); ok {
			m.SetActive(store.ByID[domain.Consumer](active.ID))
		}
		m.ClearFeedback()
	case domain.StateConsumerCreate:
		m.ClearActive()
		m.ClearFeedback()
	}
	return nil
}

// onStartReceipt commits the consumer selection before the state changes,
// so every observer running after the commit already sees the new consumer.
func (m *Module) onStartReceipt(_ context.Context, _ domain.Lifecycle, payload any) error {
	p, ok := payload.(store.Payload[domain.Consumer])
	if !ok || p.IsZero() {
		return domain.Reject("receipt.noConsumer")
	}
	if _, found := m.ItemByID(p.ID()); !found {
		return domain.Reject("receipt.noConsumer")
	}
	m.SetActive(p)
	return nil
}

// onEditOrder re-commits the edited order's consumer as the selection, so a
// resubmission bills the same person. Runs before the receipt module seeds
// the composer.
func (m *Module) onEditOrder(_ context.Context, _ domain.Lifecycle, _ any) error {
	order, ok := m.deps.Orders.ActiveOrder()
	if !ok {
		return domain.ErrOrderNotFound
	}
	if _, found := m.ItemByID(order.ConsumerID); !found {
		return domain.Reject("receipt.noConsumer")
	}
	m.SetActive(store.ByID[domain.Consumer](order.ConsumerID))
	return nil
}

func (m *Module) onEnterIdle(context.Context, domain.Lifecycle, any) error {
	m.ClearActive()
	m.ClearFeedback()
	return nil
}

// Load hydrates consumers and their types, applying every streamed snapshot.
func (m *Module) Load(ctx context.Context) error {
	started := time.Now()

	types, err := m.deps.Types.Get(ctx, domain.Query{}, nil)
	if err != nil {
		return fmt.Errorf("loading consumer types: %w", err)
	}
	m.mu.Lock()
	m.types = types
	m.mu.Unlock()

	items, err := m.deps.API.Get(ctx, domain.Query{}, func(partial []domain.Consumer) {
		m.SetItems(partial)
	})
	if err != nil {
		return fmt.Errorf("loading consumers: %w", err)
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

// Select opens a consumer for viewing.
func (m *Module) Select(ctx context.Context, id string) error {
	return m.deps.Workflow.Do(ctx, store.ByID[domain.Consumer](id), domain.TransitionSelectConsumer)
}

// Edit switches the selected consumer into edit mode.
func (m *Module) Edit(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionEditConsumer)
}

// Create starts a creation flow.
func (m *Module) Create(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionCreateConsumer)
}

// Save persists the pending patch.
func (m *Module) Save(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionSaveConsumer)
}

// Delete trashes the selected consumer.
func (m *Module) Delete(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionDeleteConsumer)
}

// Close leaves the edit or view context, whichever is open.
func (m *Module) Close(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionCancelEdit, domain.TransitionCloseItem)
}
