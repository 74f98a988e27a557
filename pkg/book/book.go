package book

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateOrder = errors.New("order id already in book")
	ErrZeroRemaining  = errors.New("order has no remaining quantity")
)

// OrderBook holds the two sides of one market plus an id index for O(log n)
// cancellation. It is a pure data structure: escrow and settlement are the
// caller's concern.
type OrderBook struct {
	market string
	bids   *bookSide
	asks   *bookSide
	orders map[string]*Order
}

func New(market string) *OrderBook {
	return &OrderBook{
		market: market,
		bids:   newBookSide(Bid),
		asks:   newBookSide(Ask),
		orders: make(map[string]*Order),
	}
}

func (b *OrderBook) Market() string { return b.market }

func (b *OrderBook) sideOf(s Side) *bookSide {
	if s == Bid {
		return b.bids
	}
	return b.asks
}

// BestPrice returns the most aggressive resting price on the side, or false
// when the side is empty.
func (b *OrderBook) BestPrice(s Side) (decimal.Decimal, bool) {
	lvl, ok := b.sideOf(s).best()
	if !ok {
		return decimal.Zero, false
	}
	return lvl.Price, true
}

// Insert places a resting order at the tail of its price level, creating the
// level if absent.
func (b *OrderBook) Insert(o *Order) error {
	if _, exists := b.orders[o.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
	}
	if !o.Remaining.IsPositive() {
		return fmt.Errorf("%w: %s", ErrZeroRemaining, o.ID)
	}
	b.sideOf(o.Side).insert(o)
	b.orders[o.ID] = o
	return nil
}

// Remove deletes an order from its level, dropping the level if it drains.
// Used for cancellation and full-fill cleanup.
func (b *OrderBook) Remove(id string) (*Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	if !b.sideOf(o.Side).remove(o) {
		return nil, false
	}
	delete(b.orders, id)
	return o, true
}

// Lookup returns the resting order with the given id.
func (b *OrderBook) Lookup(id string) (*Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// PeekFront returns the oldest order at the best level of the side without
// removing it. This is the next maker under price-time priority.
func (b *OrderBook) PeekFront(s Side) (*Order, bool) {
	lvl, ok := b.sideOf(s).best()
	if !ok {
		return nil, false
	}
	return lvl.Front(), true
}

// PopFront removes the oldest order at the best level, dropping the level if
// it drains. Used by the matching loop once a maker is fully consumed.
func (b *OrderBook) PopFront(s Side) (*Order, bool) {
	side := b.sideOf(s)
	lvl, ok := side.best()
	if !ok {
		return nil, false
	}
	o := lvl.PopFront()
	if o == nil {
		return nil, false
	}
	side.dropIfEmpty(lvl)
	delete(b.orders, o.ID)
	return o, true
}

// Crossed reports whether the persisted book crosses: best bid >= best ask.
// The invariant is that this never holds after an operation completes.
func (b *OrderBook) Crossed() bool {
	bid, okB := b.BestPrice(Bid)
	ask, okA := b.BestPrice(Ask)
	return okB && okA && bid.GreaterThanOrEqual(ask)
}

// SideOrders returns one side in match order: best price first, FIFO within a
// level.
func (b *OrderBook) SideOrders(s Side) []*Order {
	var out []*Order
	b.sideOf(s).walk(func(lvl *PriceLevel) bool {
		out = append(out, lvl.Orders()...)
		return true
	})
	return out
}

// Levels returns aggregated (price, total quantity) rows for one side,
// best-first. Used by the book snapshot query and the websocket feed.
func (b *OrderBook) Levels(s Side) []LevelSnapshot {
	var out []LevelSnapshot
	b.sideOf(s).walk(func(lvl *PriceLevel) bool {
		out = append(out, LevelSnapshot{Price: lvl.Price, Quantity: lvl.TotalQuantity()})
		return true
	})
	return out
}

// LevelSnapshot is an aggregated view row of one price level.
type LevelSnapshot struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Len returns the number of resting orders across both sides.
func (b *OrderBook) Len() int { return len(b.orders) }
