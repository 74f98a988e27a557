// Package engine implements the matching algorithm: an incoming order walks
// the opposite side of the book in price-time priority, producing trades at
// the maker's price, settling escrow as it goes, and leaving either a resting
// remainder (limit) or a refund (market).
package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlob/openlob/pkg/book"
	"github.com/openlob/openlob/pkg/escrow"
	"github.com/openlob/openlob/pkg/market"
	"github.com/openlob/openlob/pkg/util"
)

// ErrInvariant marks engine-fatal conditions: escrow underflow or a crossed
// book persisting. These never occur in correct operation; a surfacing
// ErrInvariant is a bug, not a caller error.
var ErrInvariant = errors.New("matching invariant violated")

type Kind int8

const (
	Limit Kind = iota
	Market
)

// Trade is one fill produced by matching. Trades are ephemeral engine
// output; the venue persists and broadcasts them.
type Trade struct {
	ID           string          `json:"id"`
	Market       string          `json:"market"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	MakerOrderID string          `json:"maker_order_id"`
	MakerOwner   string          `json:"maker_owner"`
	TakerOwner   string          `json:"taker_owner"`
	TakerSide    book.Side       `json:"taker_side"`
	Timestamp    int64           `json:"timestamp"` // unix milliseconds
}

// Result describes what matching did with one incoming order.
type Result struct {
	Trades []Trade
	// Filled is the base quantity matched.
	Filled decimal.Decimal
	// Rested is true when a limit remainder was inserted into the book.
	Rested bool
	// Refund is the portion of the taker's pulled funds returned: the
	// unspent budget of a market order plus any price improvement a limit
	// bid received.
	Refund decimal.Decimal
}

type Engine struct {
	ledger *escrow.Ledger
	bank   escrow.Bank
	clock  util.Clock
}

func New(ledger *escrow.Ledger, bank escrow.Bank, clock util.Clock) *Engine {
	return &Engine{ledger: ledger, bank: bank, clock: clock}
}

// Match runs the incoming order against the book. The taker's funds (quote
// for a bid, base for an ask) must already be pulled into venue custody;
// Match spends them on fills, retains what a resting remainder needs, and
// refunds the rest. All mutations here are infallible short of invariant
// violations, so a caller that validates and pulls before calling Match gets
// all-or-nothing behavior for free.
func (e *Engine) Match(mkt *market.Market, ob *book.OrderBook, taker *book.Order, kind Kind, funds decimal.Decimal) (*Result, error) {
	res := &Result{Filled: decimal.Zero, Refund: decimal.Zero}
	opposite := taker.Side.Opposite()
	fundsLeft := funds
	now := e.clock.Now().UnixMilli()

	for taker.Remaining.IsPositive() {
		maker, ok := ob.PeekFront(opposite)
		if !ok {
			break
		}
		if !taker.Marketable(maker.Price) {
			break
		}

		qty := decimal.Min(taker.Remaining, maker.Remaining)
		if kind == Market && taker.Side == book.Bid {
			// A market buy is bounded by its quote budget at the
			// maker's price, truncated to the lot step.
			affordable := mkt.AffordableQuantity(fundsLeft, maker.Price)
			if affordable.LessThan(qty) {
				qty = affordable
			}
			if !qty.IsPositive() {
				break
			}
		}
		cost := maker.Price.Mul(qty)

		// Trade at the maker's price: the maker keeps price priority,
		// the taker gets no price improvement beyond its own limit.
		if taker.Side == book.Bid {
			// Maker ask escrowed base; taker pays quote from its
			// pulled funds.
			if err := e.ledger.ReleaseTo(maker.ID, taker.Owner, qty); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
			}
			e.bank.Push(maker.Owner, mkt.Quote, cost)
			fundsLeft = fundsLeft.Sub(cost)
		} else {
			// Maker bid escrowed quote; taker pays base.
			if err := e.ledger.ReleaseTo(maker.ID, taker.Owner, cost); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
			}
			e.bank.Push(maker.Owner, mkt.Base, qty)
			fundsLeft = fundsLeft.Sub(qty)
		}

		taker.Remaining = taker.Remaining.Sub(qty)
		maker.Remaining = maker.Remaining.Sub(qty)
		res.Filled = res.Filled.Add(qty)
		res.Trades = append(res.Trades, Trade{
			ID:           uuid.NewString(),
			Market:       mkt.ID,
			Price:        maker.Price,
			Quantity:     qty,
			MakerOrderID: maker.ID,
			MakerOwner:   maker.Owner.Hex(),
			TakerOwner:   taker.Owner.Hex(),
			TakerSide:    taker.Side,
			Timestamp:    now,
		})

		if maker.IsFilled() {
			ob.PopFront(opposite)
		}
	}

	retained := decimal.Zero
	if kind == Limit && taker.Remaining.IsPositive() {
		// The remainder rests with an escrow sized to it.
		asset := mkt.Base
		retained = taker.Remaining
		if taker.Side == book.Bid {
			asset = mkt.Quote
			retained = taker.Remaining.Mul(taker.Price)
		}
		if err := e.ledger.Retain(taker.ID, taker.Owner, asset, retained); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		if err := ob.Insert(taker); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		res.Rested = true
	}

	// Refund whatever the fills and the resting escrow did not consume:
	// the unspent market-order budget, or the price improvement a limit
	// bid received by filling below its limit.
	leftover := fundsLeft.Sub(retained)
	if leftover.IsNegative() {
		return nil, fmt.Errorf("%w: taker funds overspent by %s", ErrInvariant, leftover.Neg())
	}
	if leftover.IsPositive() {
		asset := mkt.Base
		if taker.Side == book.Bid {
			asset = mkt.Quote
		}
		e.bank.Push(taker.Owner, asset, leftover)
		res.Refund = leftover
	}

	if ob.Crossed() {
		return nil, fmt.Errorf("%w: book crossed after matching", ErrInvariant)
	}
	return res, nil
}
