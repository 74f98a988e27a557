package venue

import "errors"

// Validation errors are detected before any state mutation; a rejected call
// has no side effects.
var (
	ErrInvalidSide     = errors.New("invalid side")
	ErrZeroPrice       = errors.New("price must be greater than zero")
	ErrZeroQuantity    = errors.New("quantity must be greater than zero")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidNotional = errors.New("order notional too small")
	ErrIncorrectAsset  = errors.New("asset deposited does not match the market side")
	ErrInvalidQuantity = errors.New("deposited amount does not match the order")
	ErrMarketNotFound  = errors.New("market not found")
	ErrHalted          = errors.New("trading is halted")
)

// Authorization errors gate cancellation and config updates.
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrOrderNotFound = errors.New("order not found")
)
