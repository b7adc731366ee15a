package domain

import "time"

// Entity is implemented by every list-managed domain type. Clone must return
// a structurally independent copy: mutating the clone never mutates the
// original, including slice and map fields.
type Entity interface {
	EntityID() string
}

// Consumer is a person who can be billed for orders.
type Consumer struct {
	ID            string
	Name          string
	TypeID        string
	IBAN          string
	Show          bool
	SpendingLimit float64 // euros per occasion; 0 means no limit
}

func (c Consumer) EntityID() string { return c.ID }

// Clone returns an independent copy.
func (c Consumer) Clone() Consumer { return c }

// ConsumerType categorizes consumers (e.g. member, guest).
type ConsumerType struct {
	ID   string
	Name string
}

func (t ConsumerType) EntityID() string { return t.ID }

// Clone returns an independent copy.
func (t ConsumerType) Clone() ConsumerType { return t }

// Product is a sellable catalog item.
type Product struct {
	ID    string
	Title string
	Price float64 // euros, must be positive to be saved
	Show  bool
}

func (p Product) EntityID() string { return p.ID }

// Clone returns an independent copy.
func (p Product) Clone() Product { return p }

// Occasion is an event orders are attached to. A closed occasion no longer
// accepts orders.
type Occasion struct {
	ID     string
	Title  string
	Date   time.Time
	Closed bool
}

func (o Occasion) EntityID() string { return o.ID }

// Clone returns an independent copy.
func (o Occasion) Clone() Occasion { return o }
