// Package storage persists venue state in pebble: balances, resting orders,
// escrow records, trades, and the sequence counter. Each external call
// stages its writes in one batch and commits it at the end, so a call either
// fully applies or leaves the store untouched.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/openlob/openlob/params"
	"github.com/openlob/openlob/pkg/book"
	"github.com/openlob/openlob/pkg/engine"
	"github.com/openlob/openlob/pkg/escrow"
)

type Store struct {
	db *pebble.DB
}

func NewStore(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// VenueState is the durable runtime configuration: the halt flag and the
// markets registered so far (config-declared plus authority-added).
type VenueState struct {
	Halted  bool                  `json:"halted"`
	Markets []params.MarketConfig `json:"markets"`
}

// BalanceRecord is one persisted (owner, asset, amount) row.
type BalanceRecord struct {
	Owner  common.Address
	Asset  string
	Amount decimal.Decimal
}

// ============================================================
// Batched writes
// ============================================================

// Batch stages the writes of one call. Nothing reaches the store until
// Commit.
type Batch struct {
	b *pebble.Batch
}

func (s *Store) NewBatch() *Batch {
	return &Batch{b: s.db.NewBatch()}
}

// Commit applies the batch synchronously.
func (s *Store) Commit(batch *Batch) error {
	if err := batch.b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Discard drops a batch without applying it.
func (batch *Batch) Discard() {
	_ = batch.b.Close()
}

func (batch *Batch) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	return batch.b.Set(key, data, nil)
}

func (batch *Batch) SaveOrder(o *book.Order) error {
	return batch.setJSON(orderKey(o.Market, o.ID), o)
}

func (batch *Batch) DeleteOrder(market, orderID string) error {
	return batch.b.Delete(orderKey(market, orderID), nil)
}

func (batch *Batch) SaveEscrow(rec escrow.Record) error {
	return batch.setJSON(escrowKey(rec.OrderID), rec)
}

func (batch *Batch) DeleteEscrow(orderID string) error {
	return batch.b.Delete(escrowKey(orderID), nil)
}

func (batch *Batch) SaveTrade(t engine.Trade) error {
	return batch.setJSON(tradeKey(t.Market, t.Timestamp, t.ID), t)
}

func (batch *Batch) SaveBalance(owner common.Address, asset string, amount decimal.Decimal) error {
	return batch.b.Set(balanceKey(owner, asset), []byte(amount.String()), nil)
}

func (batch *Batch) SaveSequence(seq uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return batch.b.Set(sequenceKey(), buf[:], nil)
}

func (batch *Batch) SaveVenueState(st VenueState) error {
	return batch.setJSON(venueStateKey(), st)
}

// ============================================================
// Reads
// ============================================================

func (s *Store) getJSON(key []byte, v any) (bool, error) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return true, nil
}

// LoadOrders scans every persisted resting order, grouped by market. Used at
// startup to rebuild the in-memory books.
func (s *Store) LoadOrders() (map[string][]*book.Order, error) {
	prefix := orderPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	orders := make(map[string][]*book.Order)
	for iter.First(); iter.Valid(); iter.Next() {
		var o book.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("unmarshal order %s: %w", iter.Key(), err)
		}
		orders[o.Market] = append(orders[o.Market], &o)
	}
	return orders, iter.Error()
}

// LoadEscrows scans every persisted escrow record.
func (s *Store) LoadEscrows() ([]escrow.Record, error) {
	prefix := escrowPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var recs []escrow.Record
	for iter.First(); iter.Valid(); iter.Next() {
		var rec escrow.Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal escrow %s: %w", iter.Key(), err)
		}
		recs = append(recs, rec)
	}
	return recs, iter.Error()
}

// LoadBalances scans every persisted balance row.
func (s *Store) LoadBalances() ([]BalanceRecord, error) {
	prefix := balancePrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var recs []BalanceRecord
	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key())
		parts := strings.SplitN(strings.TrimPrefix(key, prefixBalance), ":", 2)
		if len(parts) != 2 || !common.IsHexAddress(parts[0]) {
			return nil, fmt.Errorf("malformed balance key %s", key)
		}
		amount, err := decimal.NewFromString(string(iter.Value()))
		if err != nil {
			return nil, fmt.Errorf("parse balance %s: %w", key, err)
		}
		recs = append(recs, BalanceRecord{
			Owner:  common.HexToAddress(parts[0]),
			Asset:  parts[1],
			Amount: amount,
		})
	}
	return recs, iter.Error()
}

// LoadRecentTrades returns the most recent trades for a market, newest
// first.
func (s *Store) LoadRecentTrades(market string, limit int) ([]engine.Trade, error) {
	prefix := tradePrefix(market)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var trades []engine.Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t engine.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("unmarshal trade %s: %w", iter.Key(), err)
		}
		trades = append(trades, t)
	}
	return trades, iter.Error()
}

// LoadSequence returns the persisted order sequence counter.
func (s *Store) LoadSequence() (uint64, error) {
	data, closer, err := s.db.Get(sequenceKey())
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(data) != 8 {
		return 0, fmt.Errorf("malformed sequence value (%d bytes)", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// LoadVenueState returns the persisted venue state, or false if the store is
// fresh.
func (s *Store) LoadVenueState() (VenueState, bool, error) {
	var st VenueState
	ok, err := s.getJSON(venueStateKey(), &st)
	return st, ok, err
}
