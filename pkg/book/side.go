package book

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/shopspring/decimal"
)

// bookSide is the ordered price-level store for one side of one market.
// Levels live in a red-black tree keyed by price, with the comparator chosen
// so that the tree minimum is always the most aggressive price: descending
// for bids, ascending for asks. Iteration therefore walks best-first.
type bookSide struct {
	side   Side
	levels *treemap.Map
}

func newBookSide(side Side) *bookSide {
	cmp := func(a, b interface{}) int {
		c := a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
		if side == Bid {
			return -c
		}
		return c
	}
	return &bookSide{side: side, levels: treemap.NewWith(cmp)}
}

func (s *bookSide) empty() bool { return s.levels.Empty() }

// best returns the most aggressive level: the highest bid or lowest ask.
func (s *bookSide) best() (*PriceLevel, bool) {
	_, v := s.levels.Min()
	if v == nil {
		return nil, false
	}
	return v.(*PriceLevel), true
}

func (s *bookSide) level(price decimal.Decimal) (*PriceLevel, bool) {
	v, ok := s.levels.Get(price)
	if !ok {
		return nil, false
	}
	return v.(*PriceLevel), true
}

func (s *bookSide) insert(o *Order) {
	lvl, ok := s.level(o.Price)
	if !ok {
		lvl = NewPriceLevel(o.Price)
		s.levels.Put(o.Price, lvl)
	}
	lvl.Append(o)
}

// dropIfEmpty removes the level from the tree once its queue drains.
func (s *bookSide) dropIfEmpty(lvl *PriceLevel) {
	if lvl.Len() == 0 {
		s.levels.Remove(lvl.Price)
	}
}

func (s *bookSide) remove(o *Order) bool {
	lvl, ok := s.level(o.Price)
	if !ok {
		return false
	}
	if !lvl.Remove(o.ID) {
		return false
	}
	s.dropIfEmpty(lvl)
	return true
}

// walk visits levels best-first until fn returns false.
func (s *bookSide) walk(fn func(*PriceLevel) bool) {
	it := s.levels.Iterator()
	for it.Next() {
		if !fn(it.Value().(*PriceLevel)) {
			return
		}
	}
}
