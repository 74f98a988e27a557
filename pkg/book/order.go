package book

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type Side int8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "buy"
	case Ask:
		return "sell"
	default:
		return "unknown"
	}
}

func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// ParseSide accepts the wire-level side strings.
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy":
		return Bid, nil
	case "sell":
		return Ask, nil
	default:
		return 0, fmt.Errorf("invalid side %q", s)
	}
}

// Order is a resting or incoming order. Price is zero for market orders.
// Sequence is a venue-wide monotonic counter; it breaks ties between orders
// resting at the same price (earlier sequence matches first).
type Order struct {
	ID        string          `json:"id"`
	Market    string          `json:"market"`
	Side      Side            `json:"side"`
	Owner     common.Address  `json:"owner"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Remaining decimal.Decimal `json:"remaining"`
	Sequence  uint64          `json:"sequence"`
}

func (o *Order) IsFilled() bool { return !o.Remaining.IsPositive() }

// Marketable reports whether the order can trade against the given opposite
// price. A zero price marks a market order, which trades at any price.
func (o *Order) Marketable(oppositePrice decimal.Decimal) bool {
	if o.Price.IsZero() {
		return true
	}
	if o.Side == Bid {
		return o.Price.GreaterThanOrEqual(oppositePrice)
	}
	return o.Price.LessThanOrEqual(oppositePrice)
}
