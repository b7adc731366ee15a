package products_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/neomorfeo/tallyiq/internal/adapter/fsm"
	"github.com/neomorfeo/tallyiq/internal/domain"
	"github.com/neomorfeo/tallyiq/internal/module/products"
	"github.com/neomorfeo/tallyiq/internal/services"
)

// productAPI is an in-memory domain.Resource[domain.Product] recording every
// persistence call.
type productAPI struct {
	items   []domain.Product
	created []domain.Product
	updated []domain.Product
	trashed []string
	nextID  int
}

var _ domain.Resource[domain.Product] = (*productAPI)(nil)

func (a *productAPI) Get(_ context.Context, _ domain.Query, onUpdate func([]domain.Product)) ([]domain.Product, error) {
	if onUpdate != nil && len(a.items) > 1 {
		onUpdate(a.items[:1])
	}
	return a.items, nil
}

func (a *productAPI) Create(_ context.Context, item domain.Product) (domain.Product, error) {
	a.nextID++
	item.ID = fmt.Sprintf("p-%d", a.nextID)
	a.created = append(a.created, item)
	return item, nil
}

func (a *productAPI) Update(_ context.Context, item domain.Product) (domain.Product, error) {
	a.updated = append(a.updated, item)
	return item, nil
}

func (a *productAPI) Trash(_ context.Context, id string) (domain.Product, error) {
	a.trashed = append(a.trashed, id)
	return domain.Product{ID: id}, nil
}

func (a *productAPI) Untrash(_ context.Context, id string) (domain.Product, error) {
	return domain.Product{ID: id}, nil
}

var allCaps = services.CapabilitySet{
	services.CapManageCatalog: true,
	services.CapDeleteItems:   true,
}

func newModule(t *testing.T, api *productAPI, caps services.CapabilitySet) (*products.Module, domain.Workflow) {
	t.Helper()

	wf := fsm.New(domain.StateIdle, nil)
	m := products.New(products.Deps{Workflow: wf, API: api, Auth: caps})
	m.Init(context.Background())
	m.SetItems(api.items)
	return m, wf
}

func rejectionCode(t *testing.T, err error) string {
	t.Helper()
	var rej *domain.TransitionRejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected a rejection, got %v", err)
	}
	return rej.Code
}

func hasFeedback(items []domain.FeedbackItem, message string) bool {
	for _, it := range items {
		if it.Message == message {
			return true
		}
	}
	return false
}

func TestLoad_AppliesStreamedSnapshots(t *testing.T) {
	api := &productAPI{items: []domain.Product{
		{ID: "p-1", Title: "Cola", Price: 1.5, Show: true},
		{ID: "p-2", Title: "Beer", Price: 2, Show: true},
	}}
	m, _ := newModule(t, api, allCaps)
	m.SetItems(nil)

	// Get streams a one-item snapshot before returning both; the module
	// applies both through SetItems and must end on the full list.
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Len(); got != 2 {
		t.Errorf("len = %d, want 2", got)
	}
}

func TestSelect_UnknownProductRejected(t *testing.T) {
	api := &productAPI{items: []domain.Product{{ID: "p-1", Title: "Cola", Show: true}}}
	m, wf := newModule(t, api, allCaps)

	err := m.Select(context.Background(), "nope")

	if code := rejectionCode(t, err); code != "catalog.notFound" {
		t.Errorf("code = %q, want catalog.notFound", code)
	}
	if got := wf.Current(); got != domain.StateIdle {
		t.Errorf("state = %q, want idle after veto", got)
	}
}

func TestCreateFlow_SaveAppendsToList(t *testing.T) {
	api := &productAPI{}
	m, wf := newModule(t, api, allCaps)
	ctx := context.Background()

	if err := m.Create(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !wf.Is(domain.StateProductCreate) {
		t.Fatalf("state = %q, want productCreate", wf.Current())
	}
	if !m.ActiveIsNew() {
		t.Error("active item not marked new")
	}

	m.PatchActive(map[string]any{"title": "  Cola ", "price": "2.50"})

	active, _ := m.Active()
	if active.Title != "Cola" {
		t.Errorf("title = %q, want trimmed %q", active.Title, "Cola")
	}
	if active.Price != 2.5 {
		t.Errorf("price = %v, want coerced 2.5", active.Price)
	}
	if !m.Submittable() {
		t.Fatalf("not submittable, feedback: %v", m.Feedback())
	}

	if err := m.Save(ctx, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !wf.Is(domain.StateProductView) {
		t.Errorf("state = %q, want productView", wf.Current())
	}
	if len(api.created) != 1 {
		t.Fatalf("created %d products, want 1", len(api.created))
	}
	if _, ok := m.ItemByID("p-1"); !ok {
		t.Error("created product missing from list")
	}
	if active, ok := m.Active(); !ok || active.ID != "p-1" {
		t.Errorf("active = %+v, want the created product", active)
	}
}

func TestSave_CreateAnotherStaysInCreate(t *testing.T) {
	api := &productAPI{}
	m, wf := newModule(t, api, allCaps)
	ctx := context.Background()

	if err := m.Create(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	m.PatchActive(map[string]any{"title": "Cola", "price": 1.5})

	if err := m.Save(ctx, true); err != nil {
		t.Fatalf("save: %v", err)
	}

	if !wf.Is(domain.StateProductCreate) {
		t.Errorf("state = %q, want to stay in productCreate", wf.Current())
	}
	if !m.ActiveIsNew() {
		t.Error("active item after save-and-create-another is not a fresh template")
	}
	if patches := m.ActivePatches(); len(patches) != 0 {
		t.Errorf("fresh template carries patches: %v", patches)
	}
	if len(api.created) != 1 {
		t.Errorf("created %d products, want 1", len(api.created))
	}
}

func TestSave_NothingToSubmitRejected(t *testing.T) {
	api := &productAPI{}
	m, wf := newModule(t, api, allCaps)
	ctx := context.Background()

	if err := m.Create(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := m.Save(ctx, false)

	if code := rejectionCode(t, err); code != "catalog.notSubmittable" {
		t.Errorf("code = %q, want catalog.notSubmittable", code)
	}
	if !wf.Is(domain.StateProductCreate) {
		t.Errorf("state = %q, want unchanged productCreate", wf.Current())
	}
	if len(api.created) != 0 {
		t.Error("rejected save still hit the API")
	}
}

func TestPatchActive_ValidationFeedback(t *testing.T) {
	api := &productAPI{}
	m, _ := newModule(t, api, allCaps)

	if err := m.Create(context.Background()); err != nil {
		t.Fatalf("create: %v", err)
	}
	m.PatchActive(map[string]any{"title": "   ", "price": -1})

	fb := m.Feedback()
	if !hasFeedback(fb, "products.titleRequired") {
		t.Errorf("feedback %v missing products.titleRequired", fb)
	}
	if !hasFeedback(fb, "products.priceNotPositive") {
		t.Errorf("feedback %v missing products.priceNotPositive", fb)
	}
	if m.Submittable() {
		t.Error("submittable despite validation errors")
	}
}

func TestTitleUniqueness_AccentAndCaseInsensitive(t *testing.T) {
	api := &productAPI{items: []domain.Product{{ID: "p-1", Title: "Café", Price: 2, Show: true}}}
	m, _ := newModule(t, api, allCaps)
	ctx := context.Background()

	if err := m.Create(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	m.PatchActive(map[string]any{"title": " cafe", "price": 1.0})

	if fb := m.Feedback(); !hasFeedback(fb, "products.titleTaken") {
		t.Errorf("feedback %v missing products.titleTaken", fb)
	}
}

func TestTitleUniqueness_OwnTitleNotAConflict(t *testing.T) {
	api := &productAPI{items: []domain.Product{{ID: "p-1", Title: "Café", Price: 2, Show: true}}}
	m, _ := newModule(t, api, allCaps)
	ctx := context.Background()

	if err := m.Select(ctx, "p-1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := m.Edit(ctx); err != nil {
		t.Fatalf("edit: %v", err)
	}
	m.PatchActive(map[string]any{"title": "CAFÉ"})

	if fb := m.Feedback(); hasFeedback(fb, "products.titleTaken") {
		t.Errorf("product conflicts with itself: %v", fb)
	}
}

func TestEditFlow_UpdateMergesIntoList(t *testing.T) {
	api := &productAPI{items: []domain.Product{{ID: "p-1", Title: "Cola", Price: 1.5, Show: true}}}
	m, wf := newModule(t, api, allCaps)
	ctx := context.Background()

	if err := m.Select(ctx, "p-1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := m.Edit(ctx); err != nil {
		t.Fatalf("edit: %v", err)
	}
	m.PatchActive(map[string]any{"price": 2.0})

	if err := m.Save(ctx, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(api.updated) != 1 {
		t.Fatalf("updated %d products, want 1", len(api.updated))
	}
	if got, _ := m.ItemByID("p-1"); got.Price != 2.0 {
		t.Errorf("list price = %v, want 2.0", got.Price)
	}
	if !wf.Is(domain.StateProductView) {
		t.Errorf("state = %q, want productView", wf.Current())
	}
}

func TestEdit_RequiresCapability(t *testing.T) {
	api := &productAPI{items: []domain.Product{{ID: "p-1", Title: "Cola", Show: true}}}
	m, _ := newModule(t, api, services.CapabilitySet{})
	ctx := context.Background()

	if err := m.Select(ctx, "p-1"); err != nil {
		t.Fatalf("select: %v", err)
	}

	if code := rejectionCode(t, m.Edit(ctx)); code != "settings.notAllowed" {
		t.Errorf("code = %q, want settings.notAllowed", code)
	}
	if code := rejectionCode(t, m.Delete(ctx)); code != "catalog.deleteNotAllowed" {
		t.Errorf("code = %q, want catalog.deleteNotAllowed", code)
	}
}

func TestCreate_RequiresCapability(t *testing.T) {
	m, wf := newModule(t, &productAPI{}, services.CapabilitySet{})

	err := m.Create(context.Background())

	if code := rejectionCode(t, err); code != "catalog.createNotAllowed" {
		t.Errorf("code = %q, want catalog.createNotAllowed", code)
	}
	if !wf.Is(domain.StateIdle) {
		t.Errorf("state = %q, want unchanged idle", wf.Current())
	}
}

func TestDelete_RemovesFromList(t *testing.T) {
	api := &productAPI{items: []domain.Product{{ID: "p-1", Title: "Cola", Show: true}}}
	m, wf := newModule(t, api, allCaps)
	ctx := context.Background()

	if err := m.Select(ctx, "p-1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := m.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if !wf.Is(domain.StateIdle) {
		t.Errorf("state = %q, want idle", wf.Current())
	}
	if m.Len() != 0 {
		t.Error("trashed product still listed")
	}
	if _, ok := m.Active(); ok {
		t.Error("active item survived deletion")
	}
	if len(api.trashed) != 1 || api.trashed[0] != "p-1" {
		t.Errorf("trashed = %v, want [p-1]", api.trashed)
	}
}

func TestCancelEdit_RestoresCanonical(t *testing.T) {
	api := &productAPI{items: []domain.Product{{ID: "p-1", Title: "Cola", Price: 1.5, Show: true}}}
	m, wf := newModule(t, api, allCaps)
	ctx := context.Background()

	if err := m.Select(ctx, "p-1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := m.Edit(ctx); err != nil {
		t.Fatalf("edit: %v", err)
	}
	m.PatchActive(map[string]any{"title": "Changed"})

	if err := m.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !wf.Is(domain.StateProductView) {
		t.Errorf("state = %q, want productView", wf.Current())
	}
	if active, _ := m.Active(); active.Title != "Cola" {
		t.Errorf("title = %q, want restored %q", active.Title, "Cola")
	}
}

func TestEnterIdle_ClearsActive(t *testing.T) {
	api := &productAPI{items: []domain.Product{{ID: "p-1", Title: "Cola", Show: true}}}
	m, wf := newModule(t, api, allCaps)
	ctx := context.Background()

	if err := m.Select(ctx, "p-1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !wf.Is(domain.StateIdle) {
		t.Errorf("state = %q, want idle", wf.Current())
	}
	if _, ok := m.Active(); ok {
		t.Error("active item survived entering idle")
	}
}

func TestListing_FiltersHiddenAndBySearch(t *testing.T) {
	api := &productAPI{items: []domain.Product{
		{ID: "p-1", Title: "Cola", Show: true},
		{ID: "p-2", Title: "Staff Beer", Show: false},
		{ID: "p-3", Title: "Café Crème", Show: true},
	}}
	m, _ := newModule(t, api, allCaps)

	if got := m.Listing(); len(got) != 2 {
		t.Fatalf("unfiltered listing has %d items, want 2 visible", len(got))
	}

	m.Search("cafe")

	got := m.Listing()
	if len(got) != 1 || got[0].ID != "p-3" {
		t.Errorf("listing = %v, want only the accented match", got)
	}
}
