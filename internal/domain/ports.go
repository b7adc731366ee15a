package domain

import (
	"context"
	"time"
)

// Query holds optional criteria for listing a resource.
type Query struct {
	Search         string
	ConsumerID     string
	OccasionID     string
	IncludeTrashed bool
}

// Resource defines the persistence contract for one catalog resource. Get may
// stream partial results: when onUpdate is non-nil the implementation may call
// it any number of times with growing snapshots before the final slice is
// returned. Callers must apply every streamed snapshot, not only the result.
type Resource[T Entity] interface {
	Get(ctx context.Context, query Query, onUpdate func([]T)) ([]T, error)
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, item T) (T, error)
	Trash(ctx context.Context, id string) (T, error)
	Untrash(ctx context.Context, id string) (T, error)
}

// OccasionResource extends the base contract with occasion lifecycle calls.
type OccasionResource interface {
	Resource[Occasion]
	Close(ctx context.Context, id string) (Occasion, error)
	Reopen(ctx context.Context, id string) (Occasion, error)
}

// Backend aggregates the per-resource persistence contracts. It is the full
// surface of the external REST/persistence collaborator.
type Backend interface {
	Consumers() Resource[Consumer]
	ConsumerTypes() Resource[ConsumerType]
	Products() Resource[Product]
	Occasions() OccasionResource
	Orders() Resource[Order]
}

// Workflow is the shared finite-state machine gating which mode the UI is in.
// Do dispatches whichever of the given transitions is legal from the current
// state; the returned error is either a *TransitionError (none legal), a
// *TransitionRejection (a before observer vetoed), or an observer's own error.
type Workflow interface {
	Do(ctx context.Context, payload any, transitions ...Transition) error
	Is(states ...State) bool
	Current() State
	Observe(hook string, fn Observer)
	Filter(transition Transition, fn Filter)
}

// Observer is a guard or side effect registered against a workflow hook.
// In a before hook a non-nil error vetoes the transition; in after and enter
// hooks the error is logged and otherwise ignored.
type Observer func(ctx context.Context, lc Lifecycle, payload any) error

// Filter rewrites a transition's destination state based on runtime
// conditions. Returning the empty state keeps the table destination.
type Filter func(lc Lifecycle, payload any) State

// Hook spec constructors for Workflow.Observe.
func BeforeHook(t Transition) string { return "before." + string(t) }
func AfterHook(t Transition) string  { return "after." + string(t) }
func EnterHook(s State) string       { return "enter." + string(s) }

// BeforeAnyHook observers run ahead of every transition's own before
// observers and may veto independently.
const BeforeAnyHook = "beforeAnyTransition"

// OrderPublisher defines the contract for emitting order lifecycle events.
type OrderPublisher interface {
	Publish(ctx context.Context, transition Transition, order Order) error
}

// Localizer resolves message codes to user-facing strings.
type Localizer interface {
	Get(key string) string
}

// Authorizer answers capability checks for the current user.
type Authorizer interface {
	UserCan(capability string) bool
}

// FeedbackSurface publishes feedback items to wherever the host application
// renders them.
type FeedbackSurface interface {
	Add(item FeedbackItem)
}

// DelayFunc waits at least d, honoring context cancellation. Load flows use
// it to guarantee a minimum visible loading duration.
type DelayFunc func(ctx context.Context, d time.Duration) error
