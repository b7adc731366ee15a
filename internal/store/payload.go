package store

// Payload normalizes the "just the id or the whole item" parameter shape
// every mutation and action accepts. Construct one with ByID or ByItem.
type Payload[T Item[T]] struct {
	id   string
	item *T
}

// ByID builds a payload carrying only an identifier.
func ByID[T Item[T]](id string) Payload[T] {
	return Payload[T]{id: id}
}

// ByItem builds a payload carrying a full item.
func ByItem[T Item[T]](item T) Payload[T] {
	return Payload[T]{item: &item}
}

// ID returns the identifier, from the item when one is carried.
func (p Payload[T]) ID() string {
	if p.item != nil {
		return (*p.item).EntityID()
	}
	return p.id
}

// Item returns the carried item, if any.
func (p Payload[T]) Item() (T, bool) {
	if p.item == nil {
		var zero T
		return zero, false
	}
	return *p.item, true
}

// IsZero reports whether the payload carries neither an id nor an item.
func (p Payload[T]) IsZero() bool {
	return p.item == nil && p.id == ""
}
