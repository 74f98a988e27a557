package book

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func newOrder(id string, side Side, price, qty string, seq uint64) *Order {
	return &Order{
		ID:        id,
		Market:    "ATOM/USDC",
		Side:      side,
		Owner:     owner,
		Price:     dec(price),
		Quantity:  dec(qty),
		Remaining: dec(qty),
		Sequence:  seq,
	}
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"buy", Bid, false},
		{"sell", Ask, false},
		{"", 0, true},
		{"BUY", 0, true},
		{"hold", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSide(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSide(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseSide(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBestPriceOrdering(t *testing.T) {
	b := New("ATOM/USDC")

	if _, ok := b.BestPrice(Bid); ok {
		t.Fatal("empty book should have no best bid")
	}

	for i, o := range []*Order{
		newOrder("b1", Bid, "9.50", "1", 1),
		newOrder("b2", Bid, "10.00", "1", 2),
		newOrder("b3", Bid, "9.75", "1", 3),
		newOrder("a1", Ask, "11.00", "1", 4),
		newOrder("a2", Ask, "10.50", "1", 5),
		newOrder("a3", Ask, "12.00", "1", 6),
	} {
		if err := b.Insert(o); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	bid, _ := b.BestPrice(Bid)
	if !bid.Equal(dec("10.00")) {
		t.Errorf("best bid = %s, want 10.00", bid)
	}
	ask, _ := b.BestPrice(Ask)
	if !ask.Equal(dec("10.50")) {
		t.Errorf("best ask = %s, want 10.50", ask)
	}
	if b.Crossed() {
		t.Error("book should not be crossed")
	}

	// Removing the best bid promotes the next price down.
	if _, ok := b.Remove("b2"); !ok {
		t.Fatal("remove b2 failed")
	}
	bid, _ = b.BestPrice(Bid)
	if !bid.Equal(dec("9.75")) {
		t.Errorf("best bid after remove = %s, want 9.75", bid)
	}
}

func TestFIFOWithinLevel(t *testing.T) {
	b := New("ATOM/USDC")
	for _, o := range []*Order{
		newOrder("first", Ask, "10.00", "1", 1),
		newOrder("second", Ask, "10.00", "2", 2),
		newOrder("third", Ask, "10.00", "3", 3),
	} {
		if err := b.Insert(o); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"first", "second", "third"}
	for _, id := range want {
		front, ok := b.PeekFront(Ask)
		if !ok || front.ID != id {
			t.Fatalf("front = %v, want %s", front, id)
		}
		b.PopFront(Ask)
	}
	if _, ok := b.BestPrice(Ask); ok {
		t.Error("ask side should be empty after popping all orders")
	}
}

func TestFIFOSurvivesMidQueueRemoval(t *testing.T) {
	b := New("ATOM/USDC")
	for i, id := range []string{"o1", "o2", "o3", "o4"} {
		if err := b.Insert(newOrder(id, Bid, "5.00", "1", uint64(i+1))); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok := b.Remove("o2"); !ok {
		t.Fatal("remove o2 failed")
	}

	var got []string
	for {
		o, ok := b.PopFront(Bid)
		if !ok {
			break
		}
		got = append(got, o.ID)
	}
	want := []string{"o1", "o3", "o4"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestInsertRejectsDuplicatesAndEmpty(t *testing.T) {
	b := New("ATOM/USDC")
	o := newOrder("dup", Bid, "1.00", "1", 1)
	if err := b.Insert(o); err != nil {
		t.Fatal(err)
	}
	if err := b.Insert(newOrder("dup", Bid, "2.00", "1", 2)); err == nil {
		t.Error("duplicate id should be rejected")
	}
	empty := newOrder("empty", Ask, "1.00", "1", 3)
	empty.Remaining = decimal.Zero
	if err := b.Insert(empty); err == nil {
		t.Error("zero remaining should be rejected")
	}
}

func TestRemoveUnknown(t *testing.T) {
	b := New("ATOM/USDC")
	if _, ok := b.Remove("missing"); ok {
		t.Error("removing an unknown id should fail")
	}
}

func TestLevelsAggregation(t *testing.T) {
	b := New("ATOM/USDC")
	for i, o := range []*Order{
		newOrder("a1", Ask, "10.00", "1", 1),
		newOrder("a2", Ask, "10.00", "2", 2),
		newOrder("a3", Ask, "11.00", "5", 3),
	} {
		if err := b.Insert(o); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	levels := b.Levels(Ask)
	if len(levels) != 2 {
		t.Fatalf("levels = %d, want 2", len(levels))
	}
	if !levels[0].Price.Equal(dec("10.00")) || !levels[0].Quantity.Equal(dec("3")) {
		t.Errorf("best level = %s@%s, want 3@10.00", levels[0].Quantity, levels[0].Price)
	}
	if !levels[1].Price.Equal(dec("11.00")) || !levels[1].Quantity.Equal(dec("5")) {
		t.Errorf("second level = %s@%s, want 5@11.00", levels[1].Quantity, levels[1].Price)
	}
}

func TestSideOrdersMatchOrder(t *testing.T) {
	b := New("ATOM/USDC")
	for _, o := range []*Order{
		newOrder("low", Bid, "9.00", "1", 1),
		newOrder("high-old", Bid, "10.00", "1", 2),
		newOrder("high-new", Bid, "10.00", "1", 3),
	} {
		if err := b.Insert(o); err != nil {
			t.Fatal(err)
		}
	}
	got := b.SideOrders(Bid)
	want := []string{"high-old", "high-new", "low"}
	if len(got) != len(want) {
		t.Fatalf("got %d orders, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("order %d = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestAppendOutOfSequencePlacesBySequence(t *testing.T) {
	// Startup rebuilds may insert in arbitrary order; the level queue must
	// still come out in sequence order.
	lvl := NewPriceLevel(dec("10.00"))
	lvl.Append(newOrder("late", Ask, "10.00", "1", 9))
	lvl.Append(newOrder("early", Ask, "10.00", "1", 3))
	lvl.Append(newOrder("mid", Ask, "10.00", "1", 5))

	want := []string{"early", "mid", "late"}
	for i, o := range lvl.Orders() {
		if o.ID != want[i] {
			t.Fatalf("queue position %d = %s, want %s", i, o.ID, want[i])
		}
	}
}

func TestMarketable(t *testing.T) {
	tests := []struct {
		name     string
		side     Side
		price    string
		opposite string
		want     bool
	}{
		{"bid above ask", Bid, "10.00", "9.00", true},
		{"bid equal ask", Bid, "10.00", "10.00", true},
		{"bid below ask", Bid, "10.00", "11.00", false},
		{"ask below bid", Ask, "9.00", "10.00", true},
		{"ask equal bid", Ask, "10.00", "10.00", true},
		{"ask above bid", Ask, "11.00", "10.00", false},
	}
	for _, tt := range tests {
		o := &Order{Side: tt.side, Price: dec(tt.price)}
		if got := o.Marketable(dec(tt.opposite)); got != tt.want {
			t.Errorf("%s: marketable = %v, want %v", tt.name, got, tt.want)
		}
	}

	market := &Order{Side: Bid, Price: decimal.Zero}
	if !market.Marketable(dec("999")) {
		t.Error("market order should be marketable at any price")
	}
}
