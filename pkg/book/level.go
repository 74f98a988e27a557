package book

import "github.com/shopspring/decimal"

// PriceLevel holds the FIFO queue of resting orders at one price.
// The queue is kept in ascending sequence order; every order in it has
// Remaining > 0. Empty levels are removed from their side by the book.
type PriceLevel struct {
	Price decimal.Decimal
	queue []*Order
}

func NewPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{Price: price}
}

func (l *PriceLevel) Len() int { return len(l.queue) }

// Append adds an order at the tail. Orders arrive in sequence order, so the
// queue stays sorted; an out-of-order sequence is placed by insertion to keep
// startup rebuilds independent of scan order.
func (l *PriceLevel) Append(o *Order) {
	n := len(l.queue)
	if n == 0 || l.queue[n-1].Sequence < o.Sequence {
		l.queue = append(l.queue, o)
		return
	}
	i := n
	for i > 0 && l.queue[i-1].Sequence > o.Sequence {
		i--
	}
	l.queue = append(l.queue, nil)
	copy(l.queue[i+1:], l.queue[i:])
	l.queue[i] = o
}

// Front returns the oldest order at this level.
func (l *PriceLevel) Front() *Order {
	if len(l.queue) == 0 {
		return nil
	}
	return l.queue[0]
}

// PopFront removes and returns the oldest order.
func (l *PriceLevel) PopFront() *Order {
	if len(l.queue) == 0 {
		return nil
	}
	o := l.queue[0]
	l.queue = l.queue[1:]
	return o
}

// Remove deletes the order with the given id, preserving FIFO order of the
// rest. Returns false if the order is not at this level.
func (l *PriceLevel) Remove(id string) bool {
	for i, o := range l.queue {
		if o.ID == id {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return true
		}
	}
	return false
}

// TotalQuantity sums the remaining quantity across the queue.
func (l *PriceLevel) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.queue {
		total = total.Add(o.Remaining)
	}
	return total
}

// Orders returns the queue in match order. The slice is a copy; the orders
// are not.
func (l *PriceLevel) Orders() []*Order {
	out := make([]*Order, len(l.queue))
	copy(out, l.queue)
	return out
}
