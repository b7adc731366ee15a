package orders_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neomorfeo/tallyiq/internal/adapter/fsm"
	"github.com/neomorfeo/tallyiq/internal/domain"
	"github.com/neomorfeo/tallyiq/internal/module/orders"
)

// orderAPI is an in-memory domain.Resource[domain.Order] recording every
// persistence call.
type orderAPI struct {
	items     []domain.Order
	created   []domain.Order
	updated   []domain.Order
	trashed   []string
	lastQuery domain.Query
	nextID    int
}

var _ domain.Resource[domain.Order] = (*orderAPI)(nil)

func (a *orderAPI) Get(_ context.Context, query domain.Query, onUpdate func([]domain.Order)) ([]domain.Order, error) {
	a.lastQuery = query
	if onUpdate != nil && len(a.items) > 1 {
		onUpdate(a.items[:1])
	}
	return a.items, nil
}

func (a *orderAPI) Create(_ context.Context, item domain.Order) (domain.Order, error) {
	a.nextID++
	item.ID = fmt.Sprintf("ord-%d", a.nextID)
	a.created = append(a.created, item)
	return item, nil
}

func (a *orderAPI) Update(_ context.Context, item domain.Order) (domain.Order, error) {
	a.updated = append(a.updated, item)
	return item, nil
}

func (a *orderAPI) Trash(_ context.Context, id string) (domain.Order, error) {
	a.trashed = append(a.trashed, id)
	return domain.Order{ID: id}, nil
}

func (a *orderAPI) Untrash(_ context.Context, id string) (domain.Order, error) {
	return domain.Order{ID: id}, nil
}

type consumersStub struct {
	consumers map[string]domain.Consumer
	active    *domain.Consumer
}

func (s *consumersStub) ConsumerByID(id string) (domain.Consumer, bool) {
	c, ok := s.consumers[id]
	return c, ok
}

func (s *consumersStub) ActiveConsumer() (domain.Consumer, bool) {
	if s.active == nil {
		return domain.Consumer{}, false
	}
	return *s.active, true
}

type productsStub map[string]domain.Product

func (s productsStub) ProductByID(id string) (domain.Product, bool) {
	p, ok := s[id]
	return p, ok
}

type occasionsStub struct {
	active *domain.Occasion
}

func (s *occasionsStub) ActiveOccasion() (domain.Occasion, bool) {
	if s.active == nil {
		return domain.Occasion{}, false
	}
	return *s.active, true
}

type receiptStub struct {
	lines     []domain.ReceiptLine
	editingID string
}

func (s *receiptStub) Lines() []domain.ReceiptLine { return s.lines }
func (s *receiptStub) EditingOrderID() string      { return s.editingID }

type publication struct {
	transition domain.Transition
	order      domain.Order
}

type publisherStub struct {
	published []publication
}

func (s *publisherStub) Publish(_ context.Context, t domain.Transition, o domain.Order) error {
	s.published = append(s.published, publication{transition: t, order: o})
	return nil
}

var fixedNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

type fixture struct {
	api       *orderAPI
	consumers *consumersStub
	products  productsStub
	occasions *occasionsStub
	receipt   *receiptStub
	publisher *publisherStub
	window    time.Duration
	initial   domain.State
}

func newModule(t *testing.T, fx fixture) (*orders.Module, domain.Workflow) {
	t.Helper()

	if fx.api == nil {
		fx.api = &orderAPI{}
	}
	if fx.consumers == nil {
		fx.consumers = &consumersStub{}
	}
	if fx.products == nil {
		fx.products = productsStub{}
	}
	if fx.occasions == nil {
		fx.occasions = &occasionsStub{}
	}
	if fx.receipt == nil {
		fx.receipt = &receiptStub{}
	}
	if fx.initial == "" {
		fx.initial = domain.StateIdle
	}

	wf := fsm.New(fx.initial, nil)
	deps := orders.Deps{
		Workflow:   wf,
		API:        fx.api,
		Consumers:  fx.consumers,
		Products:   fx.products,
		Occasions:  fx.occasions,
		Receipt:    fx.receipt,
		LockWindow: fx.window,
		Now:        func() time.Time { return fixedNow },
	}
	if fx.publisher != nil {
		deps.Publisher = fx.publisher
	}
	m := orders.New(deps)
	m.Init(context.Background())
	m.SetItems(fx.api.items)
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

func TestIsItemLocked(t *testing.T) {
	tests := []struct {
		name      string
		window    time.Duration
		createdAt time.Time
		want      bool
	}{
		{
			name:      "zero window never locks",
			window:    0,
			createdAt: fixedNow.Add(-100 * time.Hour),
			want:      false,
		},
		{
			name:      "inside the window",
			window:    time.Hour,
			createdAt: fixedNow.Add(-10 * time.Minute),
			want:      false,
		},
		{
			name:      "window passed",
			window:    time.Hour,
			createdAt: fixedNow.Add(-2 * time.Hour),
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newModule(t, fixture{window: tt.window})

			got := m.IsItemLocked(domain.Order{ID: "ord-1", CreatedAt: tt.createdAt})
			if got != tt.want {
				t.Errorf("IsItemLocked = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubmitReceipt_CreatesOrderAndPublishes(t *testing.T) {
	pub := &publisherStub{}
	fx := fixture{
		initial:   domain.StateReceipt,
		api:       &orderAPI{},
		consumers: &consumersStub{active: &domain.Consumer{ID: "c-1", Name: "Ada"}},
		occasions: &occasionsStub{active: &domain.Occasion{ID: "occ-1", Title: "Summer party"}},
		products: productsStub{
			"p-1": {ID: "p-1", Title: "Cola", Price: 1.5},
			"p-2": {ID: "p-2", Title: "Beer", Price: 2.5},
		},
		receipt: &receiptStub{lines: []domain.ReceiptLine{
			{ID: "p-1", Quantity: 2},
			{ID: "p-2", Quantity: 1},
		}},
		publisher: pub,
	}
	m, wf := newModule(t, fx)

	if err := wf.Do(context.Background(), nil, domain.TransitionSubmitReceipt); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(fx.api.created) != 1 {
		t.Fatalf("created %d orders, want 1", len(fx.api.created))
	}
	created := fx.api.created[0]
	if created.ConsumerID != "c-1" || created.OccasionID != "occ-1" {
		t.Errorf("order = %+v, want c-1 on occ-1", created)
	}
	if !created.CreatedAt.Equal(fixedNow) {
		t.Errorf("created at = %v, want the injected clock", created.CreatedAt)
	}
	// Unit prices are frozen from the catalog at submission time.
	if len(created.Lines) != 2 || created.Lines[0].Price != 1.5 || created.Lines[1].Price != 2.5 {
		t.Errorf("lines = %+v, want catalog prices copied", created.Lines)
	}
	if created.Total() != 5.5 {
		t.Errorf("total = %v, want 5.5", created.Total())
	}

	// The publisher saw the confirmed order before idle cleared the context.
	if len(pub.published) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.published))
	}
	if pub.published[0].transition != domain.TransitionSubmitReceipt {
		t.Errorf("transition = %q, want SUBMIT_RECEIPT", pub.published[0].transition)
	}
	if pub.published[0].order.ID != "ord-1" {
		t.Errorf("published order = %+v, want the created one", pub.published[0].order)
	}

	if !wf.Is(domain.StateIdle) {
		t.Errorf("state = %q, want idle", wf.Current())
	}
	if _, ok := m.Active(); ok {
		t.Error("active order survived entering idle")
	}
	if _, ok := m.ItemByID("ord-1"); !ok {
		t.Error("created order missing from list")
	}
}

func TestSubmitReceipt_UpdatesEditedOrder(t *testing.T) {
	existing := domain.Order{
		ID:         "ord-1",
		ConsumerID: "c-1",
		OccasionID: "occ-1",
		CreatedAt:  fixedNow.Add(-5 * time.Minute),
		Lines:      []domain.OrderLine{{ProductID: "p-1", Quantity: 1, Price: 1.5}},
	}
	fx := fixture{
		initial:   domain.StateReceipt,
		api:       &orderAPI{items: []domain.Order{existing}},
		consumers: &consumersStub{active: &domain.Consumer{ID: "c-1"}},
		occasions: &occasionsStub{active: &domain.Occasion{ID: "occ-1"}},
		products:  productsStub{"p-1": {ID: "p-1", Price: 1.5}},
		receipt: &receiptStub{
			lines:     []domain.ReceiptLine{{ID: "p-1", Quantity: 4}},
			editingID: "ord-1",
		},
	}
	m, wf := newModule(t, fx)

	if err := wf.Do(context.Background(), nil, domain.TransitionSubmitReceipt); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(fx.api.created) != 0 {
		t.Error("editing an order created a new one")
	}
	if len(fx.api.updated) != 1 {
		t.Fatalf("updated %d orders, want 1", len(fx.api.updated))
	}
	if got := fx.api.updated[0]; got.ID != "ord-1" || got.Quantity() != 4 {
		t.Errorf("updated order = %+v, want ord-1 with quantity 4", got)
	}
	if got := fx.api.updated[0].CreatedAt; !got.Equal(existing.CreatedAt) {
		t.Errorf("created at = %v, want the original %v kept on edit", got, existing.CreatedAt)
	}
	if got, _ := m.ItemByID("ord-1"); got.Quantity() != 4 {
		t.Errorf("list entry = %+v, want the confirmed update merged", got)
	}
}

func TestSubmitReceipt_MissingContextRejected(t *testing.T) {
	tests := []struct {
		name string
		fx   fixture
		code string
	}{
		{
			name: "no consumer",
			fx: fixture{
				occasions: &occasionsStub{active: &domain.Occasion{ID: "occ-1"}},
			},
			code: "receipt.noConsumer",
		},
		{
			name: "no occasion",
			fx: fixture{
				consumers: &consumersStub{active: &domain.Consumer{ID: "c-1"}},
			},
			code: "receipt.noOccasion",
		},
		{
			name: "unknown product on a line",
			fx: fixture{
				consumers: &consumersStub{active: &domain.Consumer{ID: "c-1"}},
				occasions: &occasionsStub{active: &domain.Occasion{ID: "occ-1"}},
				receipt:   &receiptStub{lines: []domain.ReceiptLine{{ID: "ghost", Quantity: 1}}},
			},
			code: "catalog.notFound",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fx.initial = domain.StateReceipt
			_, wf := newModule(t, tt.fx)

			err := wf.Do(context.Background(), nil, domain.TransitionSubmitReceipt)

			if code := rejectionCode(t, err); code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
			if !wf.Is(domain.StateReceipt) {
				t.Errorf("state = %q, want unchanged receipt", wf.Current())
			}
		})
	}
}

func TestEditAndDelete_LockedOrderRejected(t *testing.T) {
	locked := domain.Order{ID: "ord-1", ConsumerID: "c-1", CreatedAt: fixedNow.Add(-3 * time.Hour)}
	fx := fixture{
		api:    &orderAPI{items: []domain.Order{locked}},
		window: time.Hour,
	}
	m, _ := newModule(t, fx)
	ctx := context.Background()

	if err := m.Select(ctx, "ord-1"); err != nil {
		t.Fatalf("select: %v", err)
	}

	if code := rejectionCode(t, m.Edit(ctx)); code != "orders.locked" {
		t.Errorf("edit code = %q, want orders.locked", code)
	}
	if code := rejectionCode(t, m.Delete(ctx)); code != "orders.locked" {
		t.Errorf("delete code = %q, want orders.locked", code)
	}
	if len(fx.api.trashed) != 0 {
		t.Error("locked order hit the API")
	}
}

func TestDelete_RemovesUnlockedOrder(t *testing.T) {
	order := domain.Order{ID: "ord-1", ConsumerID: "c-1", CreatedAt: fixedNow.Add(-5 * time.Minute)}
	fx := fixture{
		api:    &orderAPI{items: []domain.Order{order}},
		window: time.Hour,
	}
	m, wf := newModule(t, fx)
	ctx := context.Background()

	if err := m.Select(ctx, "ord-1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := m.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if !wf.Is(domain.StateIdle) {
		t.Errorf("state = %q, want idle", wf.Current())
	}
	if m.Len() != 0 {
		t.Error("trashed order still listed")
	}
	if len(fx.api.trashed) != 1 || fx.api.trashed[0] != "ord-1" {
		t.Errorf("trashed = %v, want [ord-1]", fx.api.trashed)
	}
}

func TestListing_DecoratesOrders(t *testing.T) {
	old := domain.Order{
		ID:         "ord-1",
		ConsumerID: "c-1",
		CreatedAt:  fixedNow.Add(-2 * time.Hour),
		Lines:      []domain.OrderLine{{ProductID: "p-1", Quantity: 2, Price: 1.5}},
	}
	fresh := domain.Order{
		ID:         "ord-2",
		ConsumerID: "ghost",
		CreatedAt:  fixedNow.Add(-5 * time.Minute),
		Lines:      []domain.OrderLine{{ProductID: "p-2", Quantity: 1, Price: 4}},
	}
	fx := fixture{
		api: &orderAPI{items: []domain.Order{old, fresh}},
		consumers: &consumersStub{consumers: map[string]domain.Consumer{
			"c-1": {ID: "c-1", Name: "Ada"},
		}},
		window: time.Hour,
	}
	m, _ := newModule(t, fx)

	got := m.Listing()
	if len(got) != 2 {
		t.Fatalf("listing has %d entries, want 2", len(got))
	}

	if got[0].Consumer == nil || got[0].Consumer.Name != "Ada" {
		t.Errorf("consumer = %v, want Ada joined", got[0].Consumer)
	}
	if got[0].Total != 3 || got[0].Quantity != 2 {
		t.Errorf("totals = %v/%d, want 3/2", got[0].Total, got[0].Quantity)
	}
	if !got[0].Locked {
		t.Error("old order not marked locked")
	}

	if got[1].Consumer != nil {
		t.Errorf("unknown consumer joined to %v", got[1].Consumer)
	}
	if got[1].Locked {
		t.Error("fresh order marked locked")
	}
}

func TestOrdersForConsumer(t *testing.T) {
	fx := fixture{api: &orderAPI{items: []domain.Order{
		{ID: "ord-1", ConsumerID: "c-1"},
		{ID: "ord-2", ConsumerID: "c-2"},
		{ID: "ord-3", ConsumerID: "c-1"},
	}}}
	m, _ := newModule(t, fx)

	got := m.OrdersForConsumer("c-1")
	if len(got) != 2 || got[0].ID != "ord-1" || got[1].ID != "ord-3" {
		t.Errorf("orders = %v, want ord-1 and ord-3", got)
	}
	if m.Count() != 3 {
		t.Errorf("count = %d, want 3", m.Count())
	}
}

func TestLoad_ScopesToOccasion(t *testing.T) {
	fx := fixture{api: &orderAPI{items: []domain.Order{
		{ID: "ord-1", OccasionID: "occ-1"},
		{ID: "ord-2", OccasionID: "occ-1"},
	}}}
	m, _ := newModule(t, fx)
	m.SetItems(nil)

	if err := m.Load(context.Background(), "occ-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fx.api.lastQuery.OccasionID != "occ-1" {
		t.Errorf("query = %+v, want the occasion scope", fx.api.lastQuery)
	}
	if m.Len() != 2 {
		t.Errorf("len = %d, want 2", m.Len())
	}
}
