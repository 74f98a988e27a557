package api

import (
	"github.com/shopspring/decimal"

	"github.com/openlob/openlob/pkg/book"
	"github.com/openlob/openlob/pkg/venue"
)

// ==============================
// REST request types
// ==============================

// PlaceOrderRequest is the payload for POST /api/v1/orders.
// Type is "limit" or "market"; Price is required for limit orders.
type PlaceOrderRequest struct {
	Owner    string          `json:"owner"`
	Market   string          `json:"market"`
	Side     string          `json:"side"`
	Type     string          `json:"type"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Funds    venue.Funds     `json:"funds"`
}

type CancelOrderRequest struct {
	Owner   string `json:"owner"`
	OrderID string `json:"orderId"`
}

type UpdateConfigRequest struct {
	Caller string `json:"caller"`
	venue.UpdateConfigRequest
}

type TransferRequest struct {
	Owner  string          `json:"owner"`
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// ==============================
// REST response types
// ==============================

type MarketInfo struct {
	ID          string          `json:"id"`
	BaseAsset   string          `json:"baseAsset"`
	QuoteAsset  string          `json:"quoteAsset"`
	TickSize    decimal.Decimal `json:"tickSize"`
	LotSize     decimal.Decimal `json:"lotSize"`
	MinNotional decimal.Decimal `json:"minNotional"`
}

type OrderbookSnapshot struct {
	Market    string               `json:"market"`
	Bids      []book.LevelSnapshot `json:"bids"` // best (highest) first
	Asks      []book.LevelSnapshot `json:"asks"` // best (lowest) first
	Timestamp int64                `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket message types
// ==============================

// WSSubscribeRequest is sent by a client to manage channel subscriptions,
// e.g. {"op":"subscribe","channels":["trades:ATOM/USDC","book:ATOM/USDC"]}.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`
	Channels []string `json:"channels"`
}

type BookUpdate struct {
	Type      string               `json:"type"` // "book"
	Market    string               `json:"market"`
	Bids      []book.LevelSnapshot `json:"bids"`
	Asks      []book.LevelSnapshot `json:"asks"`
	Timestamp int64                `json:"timestamp"`
}

type TradeUpdate struct {
	Type      string          `json:"type"` // "trade"
	Market    string          `json:"market"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	TakerSide string          `json:"takerSide"`
	Timestamp int64           `json:"timestamp"`
}
