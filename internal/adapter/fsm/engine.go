// Package fsm adapts looplab/fsm into the shared workflow engine: named
// states and transitions, an asynchronous-style Do with vetoable before
// observers, after and enter side effects, and destination filters.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/tallyiq/internal/domain"
)

// Compile-time check: Engine implements domain.Workflow.
var _ domain.Workflow = (*Engine)(nil)

// events converts domain.Transitions into looplab/fsm EventDesc format.
// Transitions with the same name and destination are consolidated into a
// single EventDesc with multiple source states (e.g. CANCEL_EDIT from the
// three create states all go back to "idle").
var events = buildEvents()

func buildEvents() []loopfsm.EventDesc {
	type key struct {
		transition string
		dst        string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, r := range domain.Transitions {
		k := key{transition: string(r.Transition), dst: string(r.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(r.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.transition,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

type ruleKey struct {
	transition domain.Transition
	src        domain.State
}

// destinations resolves (transition, current state) to the table destination.
var destinations = buildDestinations()

func buildDestinations() map[ruleKey]domain.State {
	out := make(map[ruleKey]domain.State, len(domain.Transitions))
	for _, r := range domain.Transitions {
		out[ruleKey{r.Transition, r.Src}] = r.Dst
	}
	return out
}

// Engine is the workflow engine shared by all domain modules. looplab/fsm
// supplies the transition table; the engine adds the observer protocol with
// its ordering guarantees:
//
//  1. beforeAnyTransition observers, then the transition's own before
//     observers, run in registration order strictly before the state
//     changes; the first error vetoes and short-circuits the rest.
//  2. after observers run strictly after the commit and cannot veto.
//  3. enter observers run on every entry into a state regardless of the
//     causing transition, after that transition's after observers.
//     Self-transitions do not re-enter their state.
//
// Do is single-flight: a mutex serializes transitions so two concurrent
// callers can never interleave guard evaluation and commit.
type Engine struct {
	mu        sync.Mutex
	machine   *loopfsm.FSM
	logger    *slog.Logger
	observers map[string][]domain.Observer
	filters   map[domain.Transition][]domain.Filter
}

// New creates an engine starting in the given state.
func New(initial domain.State, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		machine:   loopfsm.NewFSM(string(initial), events, nil),
		logger:    logger,
		observers: make(map[string][]domain.Observer),
		filters:   make(map[domain.Transition][]domain.Filter),
	}
}

// Observe registers an observer against a hook spec: before.<T>, after.<T>,
// enter.<S> or beforeAnyTransition. Observers run in registration order.
func (e *Engine) Observe(hook string, fn domain.Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers[hook] = append(e.observers[hook], fn)
}

// Filter registers a destination rewrite for a transition. Filters run after
// the table destination is resolved and before any before observer; a filter
// returning the empty state leaves the destination unchanged.
func (e *Engine) Filter(transition domain.Transition, fn domain.Filter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters[transition] = append(e.filters[transition], fn)
}

// Current returns the current workflow state.
func (e *Engine) Current() domain.State {
	return domain.State(e.machine.Current())
}

// Is reports whether the current state is one of the given states.
func (e *Engine) Is(states ...domain.State) bool {
	current := e.machine.Current()
	for _, s := range states {
		if string(s) == current {
			return true
		}
	}
	return false
}

// Do performs whichever of the given transitions is legal from the current
// state. When several are legal the first legal one in argument order wins.
// The payload is handed unchanged to every observer.
func (e *Engine) Do(ctx context.Context, payload any, transitions ...domain.Transition) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	chosen, ok := e.pick(transitions)
	if !ok {
		requested := domain.Transition("")
		if len(transitions) > 0 {
			requested = transitions[0]
		}
		return &domain.TransitionError{Transition: requested, Current: e.Current()}
	}

	from := e.Current()
	tableDst := destinations[ruleKey{chosen, from}]
	to := tableDst
	lc := domain.Lifecycle{Transition: chosen, From: from, To: to}

	for _, f := range e.filters[chosen] {
		if d := f(lc, payload); d != "" {
			to = d
			lc.To = to
		}
	}

	// Guard phase: wildcard first, then transition-specific, short-circuit
	// on the first veto.
	for _, obs := range e.observers[domain.BeforeAnyHook] {
		if err := obs(ctx, lc, payload); err != nil {
			return err
		}
	}
	for _, obs := range e.observers[domain.BeforeHook(chosen)] {
		if err := obs(ctx, lc, payload); err != nil {
			return err
		}
	}

	if err := e.commit(ctx, chosen, tableDst, to); err != nil {
		return err
	}

	for _, obs := range e.observers[domain.AfterHook(chosen)] {
		if err := obs(ctx, lc, payload); err != nil {
			e.logger.WarnContext(ctx, "after observer failed",
				"transition", chosen, "from", from, "to", to, "error", err)
		}
	}

	if to != from {
		for _, obs := range e.observers[domain.EnterHook(to)] {
			if err := obs(ctx, lc, payload); err != nil {
				e.logger.WarnContext(ctx, "enter observer failed",
					"state", to, "transition", chosen, "error", err)
			}
		}
	}

	return nil
}

// pick returns the first transition legal from the current state.
func (e *Engine) pick(transitions []domain.Transition) (domain.Transition, bool) {
	for _, t := range transitions {
		if e.machine.Can(string(t)) {
			return t, true
		}
	}
	return "", false
}

// commit moves the machine. A filtered destination bypasses the table via
// SetState; the table path tolerates looplab's NoTransitionError, which is
// how it reports self-transitions.
func (e *Engine) commit(ctx context.Context, t domain.Transition, tableDst, to domain.State) error {
	if to != tableDst {
		e.machine.SetState(string(to))
		return nil
	}

	if err := e.machine.Event(ctx, string(t)); err != nil {
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return nil
		}
		return fmt.Errorf("committing transition %q: %w", t, err)
	}
	return nil
}
