package storage

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/openlob/openlob/params"
	"github.com/openlob/openlob/pkg/book"
	"github.com/openlob/openlob/pkg/engine"
	"github.com/openlob/openlob/pkg/escrow"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var owner = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOrdersRoundTrip(t *testing.T) {
	s := newStore(t)
	orders := []*book.Order{
		{ID: "o1", Market: "ATOM/USDC", Side: book.Bid, Owner: owner, Price: dec("1.50"), Quantity: dec("10"), Remaining: dec("4"), Sequence: 1},
		{ID: "o2", Market: "ATOM/USDC", Side: book.Ask, Owner: owner, Price: dec("2.00"), Quantity: dec("5"), Remaining: dec("5"), Sequence: 2},
		{ID: "o3", Market: "OSMO/USDC", Side: book.Bid, Owner: owner, Price: dec("0.10"), Quantity: dec("1"), Remaining: dec("1"), Sequence: 3},
	}

	batch := s.NewBatch()
	for _, o := range orders {
		if err := batch.SaveOrder(o); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Commit(batch); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadOrders()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded["ATOM/USDC"]) != 2 || len(loaded["OSMO/USDC"]) != 1 {
		t.Fatalf("loaded = %+v, want 2+1 grouped by market", loaded)
	}
	for _, o := range loaded["ATOM/USDC"] {
		if o.ID == "o1" {
			if o.Side != book.Bid || !o.Remaining.Equal(dec("4")) || o.Sequence != 1 {
				t.Errorf("o1 round trip = %+v", o)
			}
		}
	}

	// Delete one and rescan.
	batch = s.NewBatch()
	if err := batch.DeleteOrder("ATOM/USDC", "o1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(batch); err != nil {
		t.Fatal(err)
	}
	loaded, err = s.LoadOrders()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded["ATOM/USDC"]) != 1 || loaded["ATOM/USDC"][0].ID != "o2" {
		t.Errorf("after delete = %+v, want only o2", loaded["ATOM/USDC"])
	}
}

func TestEscrowRoundTrip(t *testing.T) {
	s := newStore(t)
	rec := escrow.Record{OrderID: "o1", Owner: owner, Asset: "USDC", Amount: dec("12.5")}

	batch := s.NewBatch()
	if err := batch.SaveEscrow(rec); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(batch); err != nil {
		t.Fatal(err)
	}

	recs, err := s.LoadEscrows()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].OrderID != "o1" || !recs[0].Amount.Equal(dec("12.5")) {
		t.Fatalf("escrows = %+v", recs)
	}

	batch = s.NewBatch()
	if err := batch.DeleteEscrow("o1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(batch); err != nil {
		t.Fatal(err)
	}
	recs, err = s.LoadEscrows()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("escrows after delete = %+v, want none", recs)
	}
}

func TestBalancesRoundTrip(t *testing.T) {
	s := newStore(t)
	batch := s.NewBatch()
	if err := batch.SaveBalance(owner, "USDC", dec("100.25")); err != nil {
		t.Fatal(err)
	}
	if err := batch.SaveBalance(owner, "ATOM", dec("3")); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(batch); err != nil {
		t.Fatal(err)
	}

	recs, err := s.LoadBalances()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("balances = %+v, want 2", recs)
	}
	byAsset := map[string]decimal.Decimal{}
	for _, r := range recs {
		if r.Owner != owner {
			t.Errorf("owner = %s, want %s", r.Owner.Hex(), owner.Hex())
		}
		byAsset[r.Asset] = r.Amount
	}
	if !byAsset["USDC"].Equal(dec("100.25")) || !byAsset["ATOM"].Equal(dec("3")) {
		t.Errorf("amounts = %+v", byAsset)
	}
}

func TestRecentTradesNewestFirst(t *testing.T) {
	s := newStore(t)
	batch := s.NewBatch()
	for i, ts := range []int64{1000, 2000, 3000} {
		tr := engine.Trade{
			ID:       string(rune('a' + i)),
			Market:   "ATOM/USDC",
			Price:    dec("1.00"),
			Quantity:  dec("1"),
			Timestamp: ts,
		}
		if err := batch.SaveTrade(tr); err != nil {
			t.Fatal(err)
		}
	}
	if err := batch.SaveTrade(engine.Trade{ID: "x", Market: "OSMO/USDC", Price: dec("1"), Quantity: dec("1"), Timestamp: 1500}); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(batch); err != nil {
		t.Fatal(err)
	}

	trades, err := s.LoadRecentTrades("ATOM/USDC", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %+v, want 2", trades)
	}
	if trades[0].Timestamp != 3000 || trades[1].Timestamp != 2000 {
		t.Errorf("order = %d,%d, want 3000,2000", trades[0].Timestamp, trades[1].Timestamp)
	}

	all, err := s.LoadRecentTrades("ATOM/USDC", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all trades = %d, want 3 (no cross-market leak)", len(all))
	}
}

func TestSequenceRoundTrip(t *testing.T) {
	s := newStore(t)
	if seq, err := s.LoadSequence(); err != nil || seq != 0 {
		t.Fatalf("fresh sequence = %d, %v, want 0", seq, err)
	}
	batch := s.NewBatch()
	if err := batch.SaveSequence(42); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(batch); err != nil {
		t.Fatal(err)
	}
	if seq, err := s.LoadSequence(); err != nil || seq != 42 {
		t.Fatalf("sequence = %d, %v, want 42", seq, err)
	}
}

func TestVenueStateRoundTrip(t *testing.T) {
	s := newStore(t)
	if _, found, err := s.LoadVenueState(); err != nil || found {
		t.Fatalf("fresh store: found=%v err=%v, want absent", found, err)
	}

	st := VenueState{
		Halted: true,
		Markets: []params.MarketConfig{{
			Base: "ATOM", Quote: "USDC",
			TickSize: dec("0.01"), LotSize: dec("0.01"), MinNotional: dec("1"),
		}},
	}
	batch := s.NewBatch()
	if err := batch.SaveVenueState(st); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(batch); err != nil {
		t.Fatal(err)
	}

	got, found, err := s.LoadVenueState()
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if !got.Halted || len(got.Markets) != 1 || !got.Markets[0].TickSize.Equal(dec("0.01")) {
		t.Errorf("state = %+v", got)
	}
}

func TestDiscardedBatchLeavesNoTrace(t *testing.T) {
	s := newStore(t)
	batch := s.NewBatch()
	if err := batch.SaveSequence(7); err != nil {
		t.Fatal(err)
	}
	if err := batch.SaveBalance(owner, "USDC", dec("1")); err != nil {
		t.Fatal(err)
	}
	batch.Discard()

	if seq, err := s.LoadSequence(); err != nil || seq != 0 {
		t.Errorf("sequence = %d, %v, want 0 after discard", seq, err)
	}
	recs, err := s.LoadBalances()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("balances = %+v, want none after discard", recs)
	}
}
