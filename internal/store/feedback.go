// Package store implements the workflow-coordinated list store engine: a
// generic list module factory with an active-item edit lifecycle, a
// sanitize→validate→feedback pipeline, and the feedback channel backing it.
package store

import (
	"sync"

	"github.com/google/uuid"

	"github.com/neomorfeo/tallyiq/internal/domain"
)

// Listener receives a fresh snapshot of the channel after every mutation.
type Listener func(items []domain.FeedbackItem)

// Channel is the ordered, mutable list of user-facing messages owned by one
// module. It is the single source of truth for that module's feedback; the
// module re-snapshots its own state from it after every mutation so that
// reference-based change detection fires.
type Channel struct {
	mu        sync.Mutex
	items     []domain.FeedbackItem
	listeners []Listener
}

// NewChannel creates an empty feedback channel.
func NewChannel() *Channel {
	return &Channel{}
}

// Add appends an item and returns its index. Items without an ID get one
// assigned.
func (c *Channel) Add(item domain.FeedbackItem) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	c.items = append(c.items, item)
	c.notify()
	return len(c.items) - 1
}

// Remove deletes the item with the given ID. It reports whether an item was
// removed.
func (c *Channel) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, it := range c.items {
		if it.ID == id {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			c.notify()
			return true
		}
	}
	return false
}

// RemoveAt deletes the item at the given index. Out-of-range indexes are a
// no-op.
func (c *Channel) RemoveAt(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.items) {
		return false
	}
	c.items = append(c.items[:index:index], c.items[index+1:]...)
	c.notify()
	return true
}

// Clear removes all items. Clearing an empty channel is a no-op and raises
// no notification noise beyond the snapshot.
func (c *Channel) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	c.notify()
}

// ReplaceValidation swaps out all field-scoped items for the given set,
// leaving list-scoped items (empty Field) untouched. PatchActive uses it so
// each patch replaces the previous validation verdict instead of piling up.
func (c *Channel) ReplaceValidation(items []domain.FeedbackItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.items[:0:0]
	for _, it := range c.items {
		if it.Field == "" {
			kept = append(kept, it)
		}
	}
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		kept = append(kept, it)
	}
	c.items = kept
	c.notify()
}

// HasErrors reports whether any item is an error.
func (c *Channel) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, it := range c.items {
		if it.IsError {
			return true
		}
	}
	return false
}

// List returns a fresh copy of the items.
func (c *Channel) List() []domain.FeedbackItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshot()
}

// On subscribes listeners to channel mutations. Each listener immediately
// receives the current snapshot.
func (c *Channel) On(listeners ...Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners = append(c.listeners, listeners...)
	snap := c.snapshot()
	for _, l := range listeners {
		l(snap)
	}
}

// notify pushes a fresh snapshot to every listener. Caller holds the lock.
func (c *Channel) notify() {
	snap := c.snapshot()
	for _, l := range c.listeners {
		l(snap)
	}
}

func (c *Channel) snapshot() []domain.FeedbackItem {
	out := make([]domain.FeedbackItem, len(c.items))
	copy(out, c.items)
	return out
}
