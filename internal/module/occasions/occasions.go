// Package occasions is the domain module for occasions. The active occasion
// is the persistent context orders and receipts attach to: it survives
// returning to idle and guards, through a wildcard observer, every entry
// into and exit out of the receipt state.
package occasions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/tallyiq/internal/domain"
	"github.com/neomorfeo/tallyiq/internal/services"
	"github.com/neomorfeo/tallyiq/internal/store"
)

// AllowedStates are the workflow states in which an occasion patch may be
// submitted.
var AllowedStates = []domain.State{domain.StateOccasionEdit, domain.StateOccasionCreate}

// OrdersPort is the narrow read surface this module needs from the orders
// module.
type OrdersPort interface {
	Count() int
}

// Deps are the collaborators the module needs.
type Deps struct {
	Workflow domain.Workflow
	API      domain.OccasionResource
	Orders   OrdersPort
	L10n     domain.Localizer
	Auth     domain.Authorizer
	Delay    domain.DelayFunc
	Logger   *slog.Logger

	MinLoadingTime time.Duration
}

// Module manages the occasion list and the active occasion context.
type Module struct {
	*store.Store[domain.Occasion]
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

	m := &Module{deps: deps}
	m.Store = store.New(store.Options[domain.Occasion]{
		Workflow: deps.Workflow,
		NewItem: func() domain.Occasion {
			return domain.Occasion{Date: today()}
		},
		Fields: []store.Field[domain.Occasion]{
			{
				Name:     "title",
				Get:      func(o domain.Occasion) any { return o.Title },
				Set:      func(o *domain.Occasion, v any) { o.Title, _ = v.(string) },
				Sanitize: store.TrimString,
				Validate: store.RequireString[domain.Occasion]("title", "occasions.titleRequired"),
			},
			{
				Name:     "date",
				Get:      func(o domain.Occasion) any { return o.Date },
				Set:      func(o *domain.Occasion, v any) { o.Date, _ = v.(time.Time) },
				Sanitize: sanitizeDate,
				Equal:    dateEqual,
			},
		},
	})
	return m
}

func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

// sanitizeDate accepts a time.Time or an ISO date string, normalized to
// midnight UTC. Unparseable input becomes the zero time.
func sanitizeDate(v any) any {
	switch d := v.(type) {
	case time.Time:
		return d.UTC().Truncate(24 * time.Hour)
	case string:
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return time.Time{}
		}
		return t.UTC()
	default:
		return time.Time{}
	}
}

func dateEqual(a, b any) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	return aok && bok && at.Equal(bt)
}

// Submittable reports whether the active occasion may be saved.
func (m *Module) Submittable() bool {
	return m.Store.Submittable(AllowedStates...)
}

// --- Derived booleans over the active occasion ---

// IsEditable: an occasion can be edited while it is open.
func (m *Module) IsEditable() bool {
	active, ok := m.Active()
	return ok && !active.Closed
}

// IsDeletable: an occasion can be deleted while it is open and no orders
// exist yet.
func (m *Module) IsDeletable() bool {
	active, ok := m.Active()
	return ok && !active.Closed && m.deps.Orders.Count() == 0
}

// IsClosable: an open occasion can be closed.
func (m *Module) IsClosable() bool {
	active, ok := m.Active()
	return ok && !active.Closed
}

// IsReopenable: a closed occasion can be reopened.
func (m *Module) IsReopenable() bool {
	active, ok := m.Active()
	return ok && active.Closed
}

// ActiveOccasion is the read port other modules use.
func (m *Module) ActiveOccasion() (domain.Occasion, bool) {
	return m.Active()
}

// Init registers the module's workflow observers. Run once at bootstrap.
func (m *Module) Init(context.Context) {
	wf := m.deps.Workflow

	wf.Observe(domain.BeforeAnyHook, m.guardReceiptContext)
	wf.Observe(domain.BeforeHook(domain.TransitionSelectOccasion), m.onSelect)
	wf.Observe(domain.BeforeHook(domain.TransitionEditOccasion), m.onEdit)
	wf.Observe(domain.BeforeHook(domain.TransitionCreateOccasion), m.onCreate)
	wf.Observe(domain.BeforeHook(domain.TransitionSaveOccasion), m.onSave)
	wf.Observe(domain.BeforeHook(domain.TransitionDeleteOccasion), m.onDelete)
	wf.Observe(domain.BeforeHook(domain.TransitionCloseOccasion), m.onClose)
	wf.Observe(domain.BeforeHook(domain.TransitionReopenOccasion), m.onReopen)
	wf.Observe(domain.BeforeHook(domain.TransitionCancelEdit), m.onCancel)
}

// guardReceiptContext is the cross-cutting precondition: an occasion must be
// selected, and open, to enter or leave the receipt state. Closed occasions
// reject with a reopen affordance attached.
func (m *Module) guardReceiptContext(_ context.Context, lc domain.Lifecycle, _ any) error {
	if lc.To != domain.StateReceipt && lc.From != domain.StateReceipt {
		return nil
	}

	active, ok := m.Active()
	if !ok {
		return domain.Reject("receipt.noOccasion")
	}
	if active.Closed && lc.To == domain.StateReceipt {
		return &domain.TransitionRejection{
			Code: "occasions.closed",
			Action: &domain.FeedbackAction{
				Label: m.deps.L10n.Get("receipt.reopenOccasion"),
				Callback: func() {
					if err := m.ReopenActive(context.Background()); err != nil {
						m.deps.Logger.Warn("reopening occasion", "error", err)
					}
				},
			},
		}
	}
	return nil
}

func (m *Module) onSelect(_ context.Context, _ domain.Lifecycle, payload any) error {
	p, ok := payload.(store.Payload[domain.Occasion])
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
	if !m.IsEditable() {
		return domain.Reject("occasions.closed")
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

	if lc.From == domain.StateOccasionCreate {
		created, err := m.deps.API.Create(ctx, active)
		if err != nil {
			return fmt.Errorf("creating occasion: %w", err)
		}
		m.AddItem(created)
		m.SetActive(store.ByItem(created))
		return nil
	}

	updated, err := m.deps.API.Update(ctx, active)
	if err != nil {
		return fmt.Errorf("updating occasion: %w", err)
	}
	m.SetActiveItemInList(updated)
	return nil
}

func (m *Module) onDelete(ctx context.Context, _ domain.Lifecycle, _ any) error {
	if !m.deps.Auth.UserCan(services.CapDeleteItems) {
		return domain.Reject("catalog.deleteNotAllowed")
	}
	if !m.IsDeletable() {
		return domain.Reject("occasions.hasOrders")
	}
	active, _ := m.Active()

	trashed, err := m.deps.API.Trash(ctx, active.ID)
	if err != nil {
		return fmt.Errorf("trashing occasion: %w", err)
	}
	m.RemoveActiveItemFromList(store.ByItem(trashed))
	return nil
}

func (m *Module) onClose(ctx context.Context, _ domain.Lifecycle, _ any) error {
	if !m.IsClosable() {
		return domain.Reject("occasions.closed")
	}
	active, _ := m.Active()

	closed, err := m.deps.API.Close(ctx, active.ID)
	if err != nil {
		return fmt.Errorf("closing occasion: %w", err)
	}
	m.SetActiveItemInList(closed)
	return nil
}

func (m *Module) onReopen(ctx context.Context, _ domain.Lifecycle, _ any) error {
	if !m.IsReopenable() {
		return domain.Reject("occasions.closed")
	}
	return m.ReopenActive(ctx)
}

// ReopenActive reopens the active occasion server-side and merges the
// confirmation. It is also the recovery affordance attached to the closed
// rejection, which is why it works without a transition.
func (m *Module) ReopenActive(ctx context.Context) error {
	active, ok := m.Active()
	if !ok {
		return domain.ErrNoActiveItem
	}
	reopened, err := m.deps.API.Reopen(ctx, active.ID)
	if err != nil {
		return fmt.Errorf("reopening occasion: %w", err)
	}
	m.SetActiveItemInList(reopened)
	return nil
}

// onCancel restores the active occasion from its canonical list entry. The
// active occasion is deliberately not cleared on entering idle: it is the
// standing context for orders and receipts.
func (m *Module) onCancel(_ context.Context, lc domain.Lifecycle, _ any) error {
	switch lc.From {
	case domain.StateOccasionEdit:
		if active, ok := m.Active(); ok {
			m.SetActive(store.ByID[domain.Occasion](active.ID))
		}
		m.ClearFeedback()
	case domain.StateOccasionCreate:
		m.ClearActive()
		m.ClearFeedback()
	}
	return nil
}

// Load hydrates the occasion list, applying every streamed snapshot.
func (m *Module) Load(ctx context.Context) error {
	started := time.Now()

	items, err := m.deps.API.Get(ctx, domain.Query{}, func(partial []domain.Occasion) {
		m.SetItems(partial)
	})
	if err != nil {
		return fmt.Errorf("loading occasions: %w", err)
	}
	m.SetItems(items)

	if rest := m.deps.MinLoadingTime - time.Since(started); rest > 0 {
		if err := m.deps.Delay(ctx, rest); err != nil {
			return err
		}
	}
	return nil
}

// GetOrCreate loads the occasion for the given date or creates one titled
// after it. Both branches converge on the same active assignment, leaving
// the occasion the standing context for subsequent receipts.
func (m *Module) GetOrCreate(ctx context.Context, date time.Time) (domain.Occasion, error) {
	day := date.UTC().Truncate(24 * time.Hour)

	items, err := m.deps.API.Get(ctx, domain.Query{Search: day.Format("2006-01-02")}, nil)
	if err != nil {
		return domain.Occasion{}, fmt.Errorf("finding occasion: %w", err)
	}

	var occasion domain.Occasion
	if len(items) > 0 {
		occasion = items[0]
	} else {
		occasion, err = m.deps.API.Create(ctx, domain.Occasion{
			Title: day.Format("2006-01-02"),
			Date:  day,
		})
		if err != nil {
			return domain.Occasion{}, fmt.Errorf("creating occasion: %w", err)
		}
		m.AddItem(occasion)
	}

	m.SetItemInList(occasion)
	m.SetActive(store.ByItem(occasion))
	return occasion, nil
}

// --- Actions ---

// Select makes an occasion the active context and opens it for viewing.
func (m *Module) Select(ctx context.Context, id string) error {
	return m.deps.Workflow.Do(ctx, store.ByID[domain.Occasion](id), domain.TransitionSelectOccasion)
}

// Edit switches the active occasion into edit mode.
func (m *Module) Edit(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionEditOccasion)
}

// Create starts a creation flow.
func (m *Module) Create(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionCreateOccasion)
}

// Save persists the pending patch.
func (m *Module) Save(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionSaveOccasion)
}

// Delete trashes the active occasion.
func (m *Module) Delete(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionDeleteOccasion)
}

// CloseOccasion closes the active occasion for new orders.
func (m *Module) CloseOccasion(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionCloseOccasion)
}

// Reopen reopens the active occasion.
func (m *Module) Reopen(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionReopenOccasion)
}

// Close leaves the edit or view context, whichever is open.
func (m *Module) Close(ctx context.Context) error {
	return m.deps.Workflow.Do(ctx, nil, domain.TransitionCancelEdit, domain.TransitionCloseItem)
}
