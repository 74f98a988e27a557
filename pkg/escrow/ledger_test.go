package escrow

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/openlob/openlob/pkg/bank"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func newFundedLedger(t *testing.T) (*Ledger, *bank.Keeper) {
	t.Helper()
	k := bank.NewKeeper()
	if err := k.Deposit(alice, "USDC", dec("100")); err != nil {
		t.Fatal(err)
	}
	return NewLedger(k), k
}

func TestLockPullsFunds(t *testing.T) {
	l, k := newFundedLedger(t)
	if err := l.Lock("o1", alice, "USDC", dec("40")); err != nil {
		t.Fatal(err)
	}
	if got := k.Balance(alice, "USDC"); !got.Equal(dec("60")) {
		t.Errorf("balance = %s, want 60", got)
	}
	rec, ok := l.Get("o1")
	if !ok || !rec.Amount.Equal(dec("40")) {
		t.Errorf("record = %+v, want amount 40", rec)
	}
	if err := l.Lock("o1", alice, "USDC", dec("1")); err == nil {
		t.Error("double lock on one order id should fail")
	}
}

func TestLockInsufficientFundsRecordsNothing(t *testing.T) {
	l, _ := newFundedLedger(t)
	err := l.Lock("o1", alice, "USDC", dec("1000"))
	if !errors.Is(err, bank.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if _, ok := l.Get("o1"); ok {
		t.Error("failed lock must not leave a record")
	}
}

func TestReleaseToDecrementsAndDeletesAtZero(t *testing.T) {
	l, k := newFundedLedger(t)
	if err := l.Lock("o1", alice, "USDC", dec("40")); err != nil {
		t.Fatal(err)
	}
	if err := l.ReleaseTo("o1", bob, dec("15")); err != nil {
		t.Fatal(err)
	}
	if got := k.Balance(bob, "USDC"); !got.Equal(dec("15")) {
		t.Errorf("bob balance = %s, want 15", got)
	}
	rec, ok := l.Get("o1")
	if !ok || !rec.Amount.Equal(dec("25")) {
		t.Errorf("record after partial release = %+v, want 25", rec)
	}
	if err := l.ReleaseTo("o1", bob, dec("25")); err != nil {
		t.Fatal(err)
	}
	if _, ok := l.Get("o1"); ok {
		t.Error("record should be deleted at zero")
	}
}

func TestReleaseOverdrawnIsInvariantError(t *testing.T) {
	l, k := newFundedLedger(t)
	if err := l.Lock("o1", alice, "USDC", dec("40")); err != nil {
		t.Fatal(err)
	}
	err := l.ReleaseTo("o1", bob, dec("40.01"))
	if !errors.Is(err, ErrOverdrawn) {
		t.Fatalf("err = %v, want ErrOverdrawn", err)
	}
	// Nothing moves on an overdrawn release.
	if got := k.Balance(bob, "USDC"); !got.IsZero() {
		t.Errorf("bob balance = %s, want 0", got)
	}
	rec, _ := l.Get("o1")
	if !rec.Amount.Equal(dec("40")) {
		t.Errorf("record = %s, want 40", rec.Amount)
	}
}

func TestRefundReleasesExactlyOnce(t *testing.T) {
	l, k := newFundedLedger(t)
	if err := l.Lock("o1", alice, "USDC", dec("40")); err != nil {
		t.Fatal(err)
	}
	rec, err := l.Refund("o1")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Amount.Equal(dec("40")) {
		t.Errorf("refunded = %s, want 40", rec.Amount)
	}
	if got := k.Balance(alice, "USDC"); !got.Equal(dec("100")) {
		t.Errorf("alice balance = %s, want 100", got)
	}
	if _, err := l.Refund("o1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second refund err = %v, want ErrNotFound", err)
	}
}

func TestRetainRecordsWithoutPull(t *testing.T) {
	l, k := newFundedLedger(t)
	if err := l.Retain("o1", alice, "USDC", dec("30")); err != nil {
		t.Fatal(err)
	}
	if got := k.Balance(alice, "USDC"); !got.Equal(dec("100")) {
		t.Errorf("retain must not touch the bank, balance = %s", got)
	}
	rec, ok := l.Get("o1")
	if !ok || !rec.Amount.Equal(dec("30")) {
		t.Errorf("record = %+v, want 30", rec)
	}
}

func TestTotalLiability(t *testing.T) {
	l, _ := newFundedLedger(t)
	if err := l.Lock("o1", alice, "USDC", dec("10")); err != nil {
		t.Fatal(err)
	}
	if err := l.Lock("o2", alice, "USDC", dec("25")); err != nil {
		t.Fatal(err)
	}
	if err := l.Retain("o3", bob, "ATOM", dec("5")); err != nil {
		t.Fatal(err)
	}
	if got := l.TotalLiability("USDC"); !got.Equal(dec("35")) {
		t.Errorf("USDC liability = %s, want 35", got)
	}
	if got := l.TotalLiability("ATOM"); !got.Equal(dec("5")) {
		t.Errorf("ATOM liability = %s, want 5", got)
	}
}
