// Package products is the domain module for the product catalog. It is the
// fully worked exemplar of the list-module pattern: per-field sanitizers,
// uniqueness validation against the canonical list, create-versus-update
// branching on the current workflow state, and a destination filter for the
// save-and-create-another flow.
package products

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neomorfeo/tallyiq/internal/domain"
	"github.com/neomorfeo/tallyiq/internal/services"
	"github.com/neomorfeo/tallyiq/internal/store"
)

// AllowedStates are the workflow states in which a product patch may be
// submitted.
var AllowedStates = []domain.State{domain.StateProductEdit, domain.StateProductCreate}

// SavePayload accompanies SAVE_PRODUCT. CreateAnother keeps the workflow in
// the create state after a successful save so the next product can be
// entered immediately.
type SavePayload struct {
	CreateAnother bool
}

// Deps are the collaborators the module needs.
type Deps struct {
	Workflow domain.Workflow
	API      domain.Resource[domain.Product]
	Auth     domain.Authorizer
	Delay    domain.DelayFunc
	Logger   *slog.Logger

	// MinLoadingTime keeps the loading state visible long enough to not
	// flicker.
	MinLoadingTime time.Duration
}

// Module manages the product list and its edit lifecycle.
type Module struct {
	*store.Store[domain.Product]
	deps Deps
}

// New creates the module. Call Init once at bootstrap to register its
// workflow observers.
func New(deps Deps) *Module {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Delay == nil {
		deps.Delay = services.Delay
	}

	m := &Module{deps: deps}
	m.Store = store.New(store.Options[domain.Product]{
		Workflow: deps.Workflow,
		NewItem:  func() domain.Product { return domain.Product{Show: true} },
		Fields: []store.Field[domain.Product]{
			{
				Name:     "title",
				Get:      func(p domain.Product) any { return p.Title },
				Set:      func(p *domain.Product, v any) { p.Title, _ = v.(string) },
				Sanitize: store.TrimString,
				Validate: m.validateTitle,
			},
			{
				Name:     "price",
				Get:      func(p domain.Product) any { return p.Price },
				Set:      func(p *domain.Product, v any) { p.Price, _ = v.(float64) },
				Sanitize: store.ToNumber,
				Validate: store.RequirePositive[domain.Product]("price", "products.priceNotPositive"),
			},
			{
				Name:     "show",
				Get:      func(p domain.Product) any { return p.Show },
				Set:      func(p *domain.Product, v any) { p.Show, _ = v.(bool) },
				Sanitize: store.ToBool,
			},
		},
	})
	return m
}

// validateTitle requires a title and enforces accent- and case-insensitive
// uniqueness against the canonical list.
func (m *Module) validateTitle(v store.Validation[domain.Product]) []domain.FeedbackItem {
	title, _ := v.Value.(string)
	if title == "" {
		return []domain.FeedbackItem{domain.ErrorFeedback("title", "products.titleRequired")}
	}

	folded := normalizeTitle(title)
	for _, other := range v.All {
		if other.ID != v.Item.ID && normalizeTitle(other.Title) == folded {
			return []domain.FeedbackItem{domain.ErrorFeedback("title", "products.titleTaken")}
		}
	}
	return nil
}

// Submittable reports whether the active product may be saved.
func (m *Module) Submittable() bool {
	return m.Store.Submittable(AllowedStates...)
}

// Listing returns the products matching the current search query, hidden
// ones excluded.
func (m *Module) Listing() []domain.Product {
	query := normalizeTitle(m.SearchQuery())
	var out []domain.Product
	for _, p := range m.Items() {
		if !p.Show {
			continue
		}
		if query != "" && !strings.Contains(normalizeTitle(p.Title), query) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ProductByID is the read port other modules use.
func (m *Module) ProductByID(id string) (domain.Product, bool) {
	return m.ItemByID(id)
}

// Init registers the module's workflow observers. Run once at bootstrap,
// before any transition is attempted.
func (m *Module) Init(context.Context) {
	wf := m.deps.Workflow

	wf.Observe(domain.BeforeHook(domain.TransitionSelectProduct), m.onSelect)
	wf.Observe(domain.BeforeHook(domain.TransitionEditProduct), m.onEdit)
	wf.Observe(domain.BeforeHook(domain.TransitionCreateProduct), m.onCreate)
	wf.Observe(domain.BeforeHook(domain.TransitionSaveProduct), m.onSave)
	wf.Observe(domain.BeforeHook(domain.TransitionDeleteProduct), m.onDelete)
	wf.Observe(domain.BeforeHook(domain.TransitionCancelEdit), m.onCancel)
	wf.Observe(domain.AfterHook(domain.TransitionSaveProduct), m.onAfterSave)
	wf.Observe(domain.EnterHook(domain.StateIdle), m.onEnterIdle)

	wf.Filter(domain.TransitionSaveProduct, func(lc domain.Lifecycle, payload any) domain.State {
		p, ok := payload.(SavePayload)
		if ok && p.CreateAnother && lc.From == domain.StateProductCreate {
			return domain.StateProductCreate
		}
		return ""
	})
}

func (m *Module) onSelect(_ context.Context, _ domain.Lifecycle, payload any) error {
	p, ok := payload.(store.Payload[domain.Product])
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

// onSave persists the active product, creating or updating depending on the
// state the save was issued from. The network call happens inside the before
// observer so a failure vetoes the transition and the edit context survives.
func (m *Module) onSave(ctx context.Context, lc domain.Lifecycle, _ any) error {
	if !m.Submittable() {
		return domain.Reject("catalog.notSubmittable")
	}
	active, ok := m.Active()
	if !ok {
		return domain.ErrNoActiveItem
	}

	if lc.From == domain.StateProductCreate {
		created, err := m.deps.API.Create(ctx, active)
		if err != nil {
			return fmt.Errorf("creating product: %w", err)
		}
		m.AddItem(created)
		m.SetActive(store.ByItem(created))
		return nil
	}

	updated, err := m.deps.API.Update(ctx, active)
	if err != nil {
		return fmt.Errorf("updating product: %w", err)
	}
	m.SetActiveItemInList(updated)
	return nil
}

func (m *Module) onAfterSave(_ context.Context, lc domain.Lifecycle, payload any) error {
	m.ClearFeedback()
	if p, ok := payload.(SavePayload); ok && p.CreateAnother && lc.To == domain.StateProductCreate {
		m.SetNewActive(m.NewItem())
	}
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
		return fmt.Errorf("trashing product: %w", err)
	}
	m.RemoveActiveItemFromList(store.ByItem(trashed))
	return nil
}

// onCancel restores the active product from its canonical list entry,
// dropping pending patches. Creation flows have no canonical entry, so the
// active item clears instead.
func (m *Module) onCancel(_ context.Context, lc domain.Lifecycle, _ any) error {
	switch lc.From {
	case domain.StateProductEdit:
		if active, ok := m.Active(); ok {
			m.SetActive(store.ByID[domain.Product](active.ID))
		}
		m.ClearFeedback()
	case domain.StateProductCreate:
		m.ClearActive()
		m.ClearFeedback()
	}
	return nil
}

func (m *Module) onEnterIdle(context.Context, domain.Lifecycle, any) error {
	m.ClearActive()
	m.ClearFeedback()
	return nil
}

// Load hydrates the list from the API, applying every streamed snapshot and
// holding the loading state visible for the configured minimum.
func (m *Module) Load(ctx context.Context) error {
	started := time.Now()

	items, err := m.deps.API.Get(ctx, domain.Query{}, func(partial []domain.Product) {
		m.SetItems(partial)
	})
	if err != nil {
		return fmt.Errorf("loading products: %w", err)
	}
	m.SetItems(items)

	if rest := m.deps.MinLoadingTime - time.Since(started); rest > 0 {
		if err := m.deps.Delay(ctx, rest); err != nil {
			return err
		}
	}
	return nil
}

// --- Actions (workflow entry points) ---

// Select opens a product for viewing.
func (m *Module) Select(ctx context.Context, id string) error {
	return m.deps.Workflow.Do(ctx, store.ByID[domain.Product](id), domain.TransitionSelectProduct)
}

// Edit switches the selected product into edit mode.
func (m *Module) Edit(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionEditProduct)
}

// Create starts a creation flow from the template.
func (m *Module) Create(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionCreateProduct)
}

// Save persists the pending patch.
func (m *Module) Save(ctx context.Context, createAnother bool) error {
	return m.deps.Workflow.Do(ctx, SavePayload{CreateAnother: createAnother}, domain.TransitionSaveProduct)
}

// Delete trashes the selected product.
func (m *Module) Delete(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionDeleteProduct)
}

// Close leaves the edit or view context, whichever is open.
func (m *Module) Close(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionCancelEdit, domain.TransitionCloseItem)
}
