// Package escrow records, per resting order, the asset and amount the venue
// holds in custody for it. A record is created atomically with its order and
// destroyed atomically with it: either settlement transfers the funds out or
// cancellation refunds them, exactly once.
package escrow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	// ErrOverdrawn means a release exceeded the recorded escrow. This is an
	// engine invariant violation, never a caller error.
	ErrOverdrawn = errors.New("escrow overdrawn")

	ErrNotFound = errors.New("escrow record not found")
)

// Bank is the funds collaborator the ledger settles through.
type Bank interface {
	Pull(owner common.Address, asset string, amount decimal.Decimal) error
	Push(recipient common.Address, asset string, amount decimal.Decimal)
}

// Record is the custody entry for one resting order. For a bid the amount is
// remaining*limit in the quote asset; for an ask it is remaining in the base
// asset.
type Record struct {
	OrderID string          `json:"order_id"`
	Owner   common.Address  `json:"owner"`
	Asset   string          `json:"asset"`
	Amount  decimal.Decimal `json:"amount"`
}

type Ledger struct {
	mu      sync.RWMutex
	bank    Bank
	records map[string]Record
}

func NewLedger(bank Bank) *Ledger {
	return &Ledger{bank: bank, records: make(map[string]Record)}
}

// Lock pulls amount from the owner and records it against the order. Nothing
// is recorded if the pull fails.
func (l *Ledger) Lock(orderID string, owner common.Address, asset string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[orderID]; exists {
		return fmt.Errorf("escrow already locked for order %s", orderID)
	}
	if err := l.bank.Pull(owner, asset, amount); err != nil {
		return err
	}
	l.records[orderID] = Record{OrderID: orderID, Owner: owner, Asset: asset, Amount: amount}
	return nil
}

// Retain records custody for funds the venue already pulled (a taker
// remainder coming to rest). No bank movement happens.
func (l *Ledger) Retain(orderID string, owner common.Address, asset string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[orderID]; exists {
		return fmt.Errorf("escrow already locked for order %s", orderID)
	}
	l.records[orderID] = Record{OrderID: orderID, Owner: owner, Asset: asset, Amount: amount}
	return nil
}

// ReleaseTo pays amount of the order's escrow to the recipient, decrementing
// the record and deleting it at zero. An amount above the record is an
// invariant violation and leaves the ledger untouched.
func (l *Ledger) ReleaseTo(orderID string, recipient common.Address, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if amount.GreaterThan(rec.Amount) {
		return fmt.Errorf("%w: order %s holds %s %s, release %s", ErrOverdrawn, orderID, rec.Amount, rec.Asset, amount)
	}
	l.bank.Push(recipient, rec.Asset, amount)
	rec.Amount = rec.Amount.Sub(amount)
	if rec.Amount.IsZero() {
		delete(l.records, orderID)
	} else {
		l.records[orderID] = rec
	}
	return nil
}

// Refund releases the full remaining escrow back to the order's owner and
// deletes the record. Used by cancellation.
func (l *Ledger) Refund(orderID string) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[orderID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	l.bank.Push(rec.Owner, rec.Asset, rec.Amount)
	delete(l.records, orderID)
	return rec, nil
}

// Get returns the current record for an order.
func (l *Ledger) Get(orderID string) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[orderID]
	return rec, ok
}

// TotalLiability sums the recorded escrow for one asset: the amount the
// engine is liable to pay out.
func (l *Ledger) TotalLiability(asset string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for _, rec := range l.records {
		if rec.Asset == asset {
			total = total.Add(rec.Amount)
		}
	}
	return total
}

// Restore reinstates a persisted record. Startup rebuild only.
func (l *Ledger) Restore(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.OrderID] = rec
}
