package store

import (
	"strings"
	"sync"

	"github.com/neomorfeo/tallyiq/internal/domain"
)

// Item is the constraint list-managed types satisfy: identity plus deep copy.
type Item[T any] interface {
	domain.Entity
	Clone() T
}

// Options configures a Store.
type Options[T Item[T]] struct {
	// Fields is the ordered registry of editable fields. Patch computation
	// and the sanitize/validate pipeline run over exactly these.
	Fields []Field[T]

	// NewItem returns the template for creation flows. Defaults to the zero
	// value.
	NewItem func() T

	// Workflow is consulted by Submittable. May be nil in tests that do not
	// exercise state gating.
	Workflow domain.Workflow
}

// Store is the generic list module every domain module is built from. It owns
// one list of canonical items, one search query, one active item (an
// independent copy being viewed or edited) and one feedback channel.
//
// The active item is replaced wholesale on every patch, never mutated in
// place, and the feedback slice is re-snapshotted from the channel after
// every feedback mutation. Consumers may therefore rely on reference
// inequality to detect changes.
type Store[T Item[T]] struct {
	mu          sync.RWMutex
	all         []T
	searchQuery string
	active      *T
	activeIsNew bool
	feedback    []domain.FeedbackItem

	channel  *Channel
	fields   []Field[T]
	newItem  func() T
	workflow domain.Workflow
}

// New creates an empty store.
func New[T Item[T]](opts Options[T]) *Store[T] {
	s := &Store[T]{
		channel:  NewChannel(),
		fields:   opts.Fields,
		newItem:  opts.NewItem,
		workflow: opts.Workflow,
	}
	if s.newItem == nil {
		s.newItem = func() T { var zero T; return zero }
	}
	return s
}

// --- Getters ---

// Items returns a copy of the canonical list.
func (s *Store[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, len(s.all))
	copy(out, s.all)
	return out
}

// Len returns the number of canonical items.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.all)
}

// ItemByID finds a canonical item by id.
func (s *Store[T]) ItemByID(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.itemByID(id)
}

func (s *Store[T]) itemByID(id string) (T, bool) {
	for _, it := range s.all {
		if it.EntityID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// IsActiveItem reports whether the active item has the given id.
func (s *Store[T]) IsActiveItem(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active != nil && (*s.active).EntityID() == id
}

// Active returns a copy of the active item.
func (s *Store[T]) Active() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == nil {
		var zero T
		return zero, false
	}
	return (*s.active).Clone(), true
}

// ActiveIsNew reports whether the active item came from a creation flow.
func (s *Store[T]) ActiveIsNew() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeIsNew
}

// NewItem returns the creation template.
func (s *Store[T]) NewItem() T {
	return s.newItem()
}

// ActivePatches returns, per registered field, the active item's value where
// it differs from the canonical item (or from the creation template when the
// active item is new). Empty when there is no active item.
func (s *Store[T]) ActivePatches() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activePatches()
}

func (s *Store[T]) activePatches() map[string]any {
	patches := map[string]any{}
	if s.active == nil {
		return patches
	}

	base, found := s.itemByID((*s.active).EntityID())
	if !found || s.activeIsNew {
		base = s.newItem()
	}

	for _, f := range s.fields {
		got := f.Get(*s.active)
		want := f.Get(base)
		if !f.equal(got, want) {
			patches[f.Name] = got
		}
	}
	return patches
}

// SearchQuery returns the current search query.
func (s *Store[T]) SearchQuery() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searchQuery
}

// Feedback returns the module's current feedback snapshot.
func (s *Store[T]) Feedback() []domain.FeedbackItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.FeedbackItem, len(s.feedback))
	copy(out, s.feedback)
	return out
}

// HasFeedbackErrors reports whether any feedback item is an error.
func (s *Store[T]) HasFeedbackErrors() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasFeedbackErrors()
}

func (s *Store[T]) hasFeedbackErrors() bool {
	for _, it := range s.feedback {
		if it.IsError {
			return true
		}
	}
	return false
}

// Submittable reports whether the active item's pending patch may be
// persisted: no feedback errors, at least one patch, and the workflow in one
// of the allowed states.
func (s *Store[T]) Submittable(allowedStates ...domain.State) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.hasFeedbackErrors() {
		return false
	}
	if len(s.activePatches()) == 0 {
		return false
	}
	return s.workflow != nil && s.workflow.Is(allowedStates...)
}

// --- Mutations ---

// SetItems replaces the list wholesale. Load operations apply every streamed
// snapshot through this.
func (s *Store[T]) SetItems(items []T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.all = make([]T, len(items))
	copy(s.all, items)
}

// AddItem appends an item, provided it has an id.
func (s *Store[T]) AddItem(item T) {
	if item.EntityID() == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, item)
}

// SetItemInList replaces the list entry matching the item's id. No-op when
// the id is not present.
func (s *Store[T]) SetItemInList(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setItemInList(item)
}

func (s *Store[T]) setItemInList(item T) {
	for i, it := range s.all {
		if it.EntityID() == item.EntityID() {
			s.all[i] = item
			return
		}
	}
}

// RemoveItem deletes the list entry with the given id.
func (s *Store[T]) RemoveItem(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeItem(id)
}

func (s *Store[T]) removeItem(id string) {
	for i, it := range s.all {
		if it.EntityID() == id {
			s.all = append(s.all[:i:i], s.all[i+1:]...)
			return
		}
	}
}

// Clear empties the list.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = nil
}

// SetSearchQuery stores the trimmed query.
func (s *Store[T]) SetSearchQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchQuery = strings.TrimSpace(q)
}

// Search is the action form of SetSearchQuery.
func (s *Store[T]) Search(q string) {
	s.SetSearchQuery(q)
}

// SetActive resolves the payload to a list item by id when possible, falls
// back to the carried item otherwise, and clears the active item when the
// payload resolves to nothing. The stored value is always an independent
// copy taken at this moment.
func (s *Store[T]) SetActive(p Payload[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeIsNew = false
	if it, ok := s.itemByID(p.ID()); ok {
		c := it.Clone()
		s.active = &c
		return
	}
	if it, ok := p.Item(); ok {
		c := it.Clone()
		s.active = &c
		return
	}
	s.active = nil
}

// SetNewActive stores the item as the active one without resolving against
// the list. Creation flows use it with the module's template.
func (s *Store[T]) SetNewActive(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := item.Clone()
	s.active = &c
	s.activeIsNew = true
}

// ClearActive drops the active item.
func (s *Store[T]) ClearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = nil
	s.activeIsNew = false
}

// --- Feedback ---

// AddFeedback forwards to the channel and re-snapshots module state.
func (s *Store[T]) AddFeedback(item domain.FeedbackItem) int {
	idx := s.channel.Add(item)
	s.resnapshotFeedback()
	return idx
}

// RemoveFeedback removes by id and re-snapshots.
func (s *Store[T]) RemoveFeedback(id string) {
	s.channel.Remove(id)
	s.resnapshotFeedback()
}

// RemoveFeedbackAt removes by index and re-snapshots.
func (s *Store[T]) RemoveFeedbackAt(index int) {
	s.channel.RemoveAt(index)
	s.resnapshotFeedback()
}

// ClearFeedback empties the channel and re-snapshots. Idempotent.
func (s *Store[T]) ClearFeedback() {
	s.channel.Clear()
	s.resnapshotFeedback()
}

// OnFeedback subscribes listeners to the module's feedback channel.
func (s *Store[T]) OnFeedback(listeners ...Listener) {
	s.channel.On(listeners...)
}

func (s *Store[T]) resnapshotFeedback() {
	snap := s.channel.List()
	s.mu.Lock()
	s.feedback = snap
	s.mu.Unlock()
}

// --- Actions ---

// SetActiveItemInList merges a server-confirmed item into the list, then
// makes it the active item.
func (s *Store[T]) SetActiveItemInList(item T) {
	s.SetItemInList(item)
	s.SetActive(ByItem(item))
}

// RemoveActiveItemFromList removes a server-confirmed deletion from the list
// and clears the active item.
func (s *Store[T]) RemoveActiveItemFromList(p Payload[T]) {
	s.RemoveItem(p.ID())
	s.ClearActive()
}

// PatchActive runs the edit cycle: merge the incoming partial payload into
// the current active item, sanitize every registered field, validate the
// sanitized result (replacing the module's previous validation feedback) and
// assign the outcome as the new active value by full replacement. No-op when
// there is no active item.
func (s *Store[T]) PatchActive(patch map[string]any) {
	s.mu.Lock()

	if s.active == nil {
		s.mu.Unlock()
		return
	}

	merged := (*s.active).Clone()
	for _, f := range s.fields {
		raw, patched := patch[f.Name]
		if !patched {
			raw = f.Get(merged)
		}
		f.Set(&merged, f.sanitize(raw))
	}

	var verdict []domain.FeedbackItem
	for _, f := range s.fields {
		if f.Validate == nil {
			continue
		}
		verdict = append(verdict, f.Validate(Validation[T]{
			Value: f.Get(merged),
			Item:  merged,
			All:   s.all,
			IsNew: s.activeIsNew,
		})...)
	}

	s.active = &merged
	s.mu.Unlock()

	s.channel.ReplaceValidation(verdict)
	s.resnapshotFeedback()
}
