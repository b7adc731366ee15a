package domain

import "time"

// OrderLine is one product position on a persisted order. Price is the unit
// price at the moment the order was placed, so later product edits do not
// change historical totals.
type OrderLine struct {
	ProductID string
	Quantity  int
	Price     float64
}

// Order is a persisted receipt: a consumer's product lines for one occasion.
type Order struct {
	ID         string
	ConsumerID string
	OccasionID string
	CreatedAt  time.Time
	Lines      []OrderLine
}

func (o Order) EntityID() string { return o.ID }

// Clone returns an independent copy, including the lines slice.
func (o Order) Clone() Order {
	out := o
	out.Lines = make([]OrderLine, len(o.Lines))
	copy(out.Lines, o.Lines)
	return out
}

// Total is the sum of quantity times unit price over all lines.
func (o Order) Total() float64 {
	var sum float64
	for _, l := range o.Lines {
		sum += float64(l.Quantity) * l.Price
	}
	return sum
}

// Quantity is the total number of units on the order.
func (o Order) Quantity() int {
	var n int
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// ReceiptLine is one product position on the receipt being composed. Receipt
// lines are ephemeral: they are never persisted on their own, only converted
// into order lines on submission. The ID is the product ID.
type ReceiptLine struct {
	ID       string
	Quantity int
}

func (l ReceiptLine) EntityID() string { return l.ID }

// Clone returns an independent copy.
func (l ReceiptLine) Clone() ReceiptLine { return l }
