// Package app assembles the store engine: one workflow engine, five domain
// modules wired to each other through narrow read ports, and the bootstrap
// sequence that registers every observer exactly once.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/tallyiq/internal/adapter/fsm"
	"github.com/neomorfeo/tallyiq/internal/domain"
	"github.com/neomorfeo/tallyiq/internal/module/consumers"
	"github.com/neomorfeo/tallyiq/internal/module/occasions"
	"github.com/neomorfeo/tallyiq/internal/module/orders"
	"github.com/neomorfeo/tallyiq/internal/module/products"
	"github.com/neomorfeo/tallyiq/internal/module/receipt"
	"github.com/neomorfeo/tallyiq/internal/services"
)

// Config holds the workspace's external collaborators and tunables.
type Config struct {
	Backend   domain.Backend
	Publisher domain.OrderPublisher
	Auth      domain.Authorizer
	L10n      domain.Localizer
	Surface   domain.FeedbackSurface
	Delay     domain.DelayFunc
	Logger    *slog.Logger

	// LockWindow is how long orders stay changeable; zero disables locking.
	LockWindow time.Duration

	// MinLoadingTime keeps load flows visibly loading at least this long.
	MinLoadingTime time.Duration
}

// Workspace is the assembled state layer. Its shape is the boundary contract
// the host application relies on.
type Workspace struct {
	Workflow  domain.Workflow
	Consumers *consumers.Module
	Products  *products.Module
	Occasions *occasions.Module
	Orders    *orders.Module
	Receipt   *receipt.Module

	cfg    Config
	logger *slog.Logger
}

// NewWorkspace builds all modules against a fresh engine starting in idle.
func NewWorkspace(cfg Config) *Workspace {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.L10n == nil {
		cfg.L10n = services.NewCatalog(services.DefaultMessages)
	}
	if cfg.Delay == nil {
		cfg.Delay = services.Delay
	}

	w := &Workspace{cfg: cfg, logger: cfg.Logger}
	w.Workflow = fsm.New(domain.StateIdle, cfg.Logger)
	ports := crossPorts{w}

	w.Consumers = consumers.New(consumers.Deps{
		Workflow:       w.Workflow,
		API:            cfg.Backend.Consumers(),
		Types:          cfg.Backend.ConsumerTypes(),
		Orders:         ports,
		Auth:           cfg.Auth,
		Delay:          cfg.Delay,
		Logger:         cfg.Logger,
		MinLoadingTime: cfg.MinLoadingTime,
	})
	w.Products = products.New(products.Deps{
		Workflow:       w.Workflow,
		API:            cfg.Backend.Products(),
		Auth:           cfg.Auth,
		Delay:          cfg.Delay,
		Logger:         cfg.Logger,
		MinLoadingTime: cfg.MinLoadingTime,
	})
	w.Occasions = occasions.New(occasions.Deps{
		Workflow:       w.Workflow,
		API:            cfg.Backend.Occasions(),
		Orders:         ports,
		L10n:           cfg.L10n,
		Auth:           cfg.Auth,
		Delay:          cfg.Delay,
		Logger:         cfg.Logger,
		MinLoadingTime: cfg.MinLoadingTime,
	})
	w.Receipt = receipt.New(receipt.Deps{
		Workflow:  w.Workflow,
		Surface:   cfg.Surface,
		Products:  ports,
		Consumers: ports,
		Occasions: ports,
		Orders:    ports,
		Logger:    cfg.Logger,
	})
	w.Orders = orders.New(orders.Deps{
		Workflow:       w.Workflow,
		API:            cfg.Backend.Orders(),
		Publisher:      cfg.Publisher,
		Consumers:      ports,
		Products:       ports,
		Occasions:      ports,
		Receipt:        ports,
		Delay:          cfg.Delay,
		Logger:         cfg.Logger,
		LockWindow:     cfg.LockWindow,
		MinLoadingTime: cfg.MinLoadingTime,
	})
	return w
}

// Init registers every module's workflow observers. The order is a contract:
// consumers, products, occasions, receipt, orders. Receipt precedes orders
// so that receipt validation vetoes SUBMIT_RECEIPT before orders persists
// anything.
func (w *Workspace) Init(ctx context.Context) {
	w.Workflow.Observe(domain.BeforeHook(domain.TransitionToggleSettings), w.guardSettings)

	w.Consumers.Init(ctx)
	w.Products.Init(ctx)
	w.Occasions.Init(ctx)
	w.Receipt.Init(ctx)
	w.Orders.Init(ctx)
}

// guardSettings keeps users without the settings capability out.
func (w *Workspace) guardSettings(_ context.Context, lc domain.Lifecycle, _ any) error {
	if lc.To == domain.StateSettings && !w.cfg.Auth.UserCan(services.CapSettings) {
		return domain.Reject("settings.notAllowed")
	}
	return nil
}

// Load hydrates all catalogs, makes the occasion for the given date the
// standing context (creating it when absent) and loads its orders.
func (w *Workspace) Load(ctx context.Context, date time.Time) error {
	if err := w.Consumers.Load(ctx); err != nil {
		return fmt.Errorf("loading consumers: %w", err)
	}
	if err := w.Products.Load(ctx); err != nil {
		return fmt.Errorf("loading products: %w", err)
	}
	if err := w.Occasions.Load(ctx); err != nil {
		return fmt.Errorf("loading occasions: %w", err)
	}

	occasion, err := w.Occasions.GetOrCreate(ctx, date)
	if err != nil {
		return fmt.Errorf("resolving occasion: %w", err)
	}
	if err := w.Orders.Load(ctx, occasion.ID); err != nil {
		return fmt.Errorf("loading orders: %w", err)
	}
	return nil
}

// ToggleSettings switches between idle and the settings mode.
func (w *Workspace) ToggleSettings(ctx context.Context) error {
	return w.Workflow.Do(ctx, nil, domain.TransitionToggleSettings)
}

// crossPorts implements every module's read-port interface by delegating to
// the sibling modules, keeping cross-module coupling an explicit, testable
// surface.
type crossPorts struct {
	w *Workspace
}

func (p crossPorts) ConsumerByID(id string) (domain.Consumer, bool) {
	return p.w.Consumers.ConsumerByID(id)
}

func (p crossPorts) ActiveConsumer() (domain.Consumer, bool) {
	return p.w.Consumers.ActiveConsumer()
}

func (p crossPorts) SpentBy(id string) float64 {
	return p.w.Consumers.SpentBy(id)
}

func (p crossPorts) ProductByID(id string) (domain.Product, bool) {
	return p.w.Products.ProductByID(id)
}

func (p crossPorts) ActiveOccasion() (domain.Occasion, bool) {
	return p.w.Occasions.ActiveOccasion()
}

func (p crossPorts) OrdersForConsumer(id string) []domain.Order {
	return p.w.Orders.OrdersForConsumer(id)
}

func (p crossPorts) Count() int {
	return p.w.Orders.Count()
}

func (p crossPorts) ActiveOrder() (domain.Order, bool) {
	return p.w.Orders.ActiveOrder()
}

func (p crossPorts) Lines() []domain.ReceiptLine {
	return p.w.Receipt.Lines()
}

func (p crossPorts) EditingOrderID() string {
	return p.w.Receipt.EditingOrderID()
}
