package venue

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/openlob/openlob/params"
	"github.com/openlob/openlob/pkg/book"
	"github.com/openlob/openlob/pkg/engine"
)

// Funds is the deposit a caller supplies with an order: the asset and amount
// the venue pulls into custody before matching.
type Funds struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

type PlaceLimitRequest struct {
	Owner    common.Address
	Market   string
	Side     string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Funds    Funds
}

type PlaceMarketRequest struct {
	Owner    common.Address
	Market   string
	Side     string
	Quantity decimal.Decimal
	// Funds is the full deposit: for a sell, exactly Quantity of base; for a
	// buy, the quote budget the order may spend.
	Funds Funds
}

// PlaceOrderResult reports the fills an order produced, whether a remainder
// rests, and what was refunded. A market order that exhausts liquidity keeps
// Remaining > 0 and gets its unspent deposit back in Refund; this is a
// partial fill, not an error.
type PlaceOrderResult struct {
	OrderID   string          `json:"order_id"`
	Market    string          `json:"market"`
	Side      string          `json:"side"`
	Fills     []engine.Trade  `json:"fills"`
	Filled    decimal.Decimal `json:"filled"`
	Remaining decimal.Decimal `json:"remaining"`
	Rested    bool            `json:"rested"`
	Refund    Funds           `json:"refund"`
}

type CancelResult struct {
	OrderID  string `json:"order_id"`
	Refunded Funds  `json:"refunded"`
}

// UpdateConfigRequest is the authority-only config mutation: flip the halt
// flag and/or register new markets.
type UpdateConfigRequest struct {
	Halted     *bool                 `json:"halted,omitempty"`
	AddMarkets []params.MarketConfig `json:"add_markets,omitempty"`
}

type ConfigView struct {
	Authority string                `json:"authority"`
	Halted    bool                  `json:"halted"`
	Markets   []params.MarketConfig `json:"markets"`
}

// MarketOrders is one market's resting orders for a side query, in match
// order (best price first, FIFO within price).
type MarketOrders struct {
	Market string        `json:"market"`
	Orders []*book.Order `json:"orders"`
}

// BookSnapshot is the aggregated two-sided view of one market.
type BookSnapshot struct {
	Market string               `json:"market"`
	Bids   []book.LevelSnapshot `json:"bids"`
	Asks   []book.LevelSnapshot `json:"asks"`
}

// Update is the payload delivered to the registered UpdateHandler after a
// committed operation touches a market's book. It carries everything a feed
// needs, so the handler never has to call back into the venue. Trades may be
// empty (a resting insert or a cancel).
type Update struct {
	Market string
	Trades []engine.Trade
	Book   BookSnapshot
}
