package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Market is one tradable base/quote pair with its precision parameters.
// Prices must be multiples of TickSize and quantities multiples of LotSize,
// which keeps every escrow product (price*quantity) an exact decimal.
type Market struct {
	ID          string
	Base        string
	Quote       string
	TickSize    decimal.Decimal
	LotSize     decimal.Decimal
	MinNotional decimal.Decimal
}

// MarketID is the canonical "BASE/QUOTE" identifier.
func MarketID(base, quote string) string {
	return base + "/" + quote
}

func New(base, quote string, tick, lot, minNotional decimal.Decimal) (*Market, error) {
	if base == "" || quote == "" {
		return nil, fmt.Errorf("base and quote assets are required")
	}
	if base == quote {
		return nil, fmt.Errorf("base and quote must differ: %s", base)
	}
	if !tick.IsPositive() {
		return nil, fmt.Errorf("tick size must be positive: %s", tick)
	}
	if !lot.IsPositive() {
		return nil, fmt.Errorf("lot size must be positive: %s", lot)
	}
	if minNotional.IsNegative() {
		return nil, fmt.Errorf("min notional must not be negative: %s", minNotional)
	}
	return &Market{
		ID:          MarketID(base, quote),
		Base:        base,
		Quote:       quote,
		TickSize:    tick,
		LotSize:     lot,
		MinNotional: minNotional,
	}, nil
}

// ValidatePrice checks a limit price against the market's tick size.
func (m *Market) ValidatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("price must be positive: %s", price)
	}
	if !price.Mod(m.TickSize).IsZero() {
		return fmt.Errorf("price %s is not a multiple of tick size %s", price, m.TickSize)
	}
	return nil
}

// ValidateQuantity checks an order quantity against the market's lot size.
func (m *Market) ValidateQuantity(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("quantity must be positive: %s", qty)
	}
	if !qty.Mod(m.LotSize).IsZero() {
		return fmt.Errorf("quantity %s is not a multiple of lot size %s", qty, m.LotSize)
	}
	return nil
}

// ValidateNotional rejects dust orders below the market minimum.
func (m *Market) ValidateNotional(price, qty decimal.Decimal) error {
	notional := price.Mul(qty)
	if notional.LessThan(m.MinNotional) {
		return fmt.Errorf("notional %s below market minimum %s", notional, m.MinNotional)
	}
	return nil
}

// AffordableQuantity returns the largest lot-multiple quantity a quote
// budget can buy at the given price. The division truncates, rounding in the
// engine's favor: the buyer is never allowed to under-deposit by a rounding
// step.
func (m *Market) AffordableQuantity(budget, price decimal.Decimal) decimal.Decimal {
	lotCost := price.Mul(m.LotSize)
	lots, _ := budget.QuoRem(lotCost, 0)
	return lots.Mul(m.LotSize)
}
