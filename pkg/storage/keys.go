package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//   bal:<address>:<asset>          → balance (decimal string)
//   ord:<market>:<orderID>         → resting order (json)
//   esc:<orderID>                  → escrow record (json)
//   trade:<market>:<timestamp>:<id> → trade (json)
//   venue                          → venue state (halted flag, markets)
//   seq                            → order sequence counter (8-byte BE)
const (
	prefixBalance = "bal:"
	prefixOrder   = "ord:"
	prefixEscrow  = "esc:"
	prefixTrade   = "trade:"
)

func balanceKey(owner common.Address, asset string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, owner.Hex(), asset))
}

func balancePrefix() []byte { return []byte(prefixBalance) }

func orderKey(market, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOrder, market, orderID))
}

func orderPrefix() []byte { return []byte(prefixOrder) }

func escrowKey(orderID string) []byte {
	return []byte(prefixEscrow + orderID)
}

func escrowPrefix() []byte { return []byte(prefixEscrow) }

// tradeKey zero-pads the timestamp so lexicographic order is time order.
func tradeKey(market string, timestamp int64, tradeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTrade, market, timestamp, tradeID))
}

func tradePrefix(market string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, market))
}

func venueStateKey() []byte { return []byte("venue") }
func sequenceKey() []byte   { return []byte("seq") }

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
