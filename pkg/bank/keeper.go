// Package bank is the funds collaborator: it tracks the free balance each
// owner holds at the venue and moves amounts in and out of venue custody.
// Funds locked against an order are pulled out of the owner's balance here
// and accounted for by the escrow ledger until settlement or refund.
package bank

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

type Keeper struct {
	mu       sync.RWMutex
	balances map[common.Address]map[string]decimal.Decimal
}

func NewKeeper() *Keeper {
	return &Keeper{balances: make(map[common.Address]map[string]decimal.Decimal)}
}

func (k *Keeper) account(owner common.Address) map[string]decimal.Decimal {
	acc, ok := k.balances[owner]
	if !ok {
		acc = make(map[string]decimal.Decimal)
		k.balances[owner] = acc
	}
	return acc
}

// Deposit credits an owner's free balance.
func (k *Keeper) Deposit(owner common.Address, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("deposit amount must be positive: %s", amount)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	acc := k.account(owner)
	acc[asset] = acc[asset].Add(amount)
	return nil
}

// Withdraw debits an owner's free balance.
func (k *Keeper) Withdraw(owner common.Address, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("withdraw amount must be positive: %s", amount)
	}
	return k.Pull(owner, asset, amount)
}

// Pull moves amount out of the owner's balance into venue custody. Fails with
// ErrInsufficientFunds when the balance cannot cover it; nothing is debited
// on failure.
func (k *Keeper) Pull(owner common.Address, asset string, amount decimal.Decimal) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	acc := k.account(owner)
	have := acc[asset]
	if have.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s %s, need %s", ErrInsufficientFunds, owner.Hex(), have, asset, amount)
	}
	acc[asset] = have.Sub(amount)
	return nil
}

// Push pays amount from venue custody to the recipient. Crediting cannot
// fail; the escrow ledger guarantees custody covers every push.
func (k *Keeper) Push(recipient common.Address, asset string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	acc := k.account(recipient)
	acc[asset] = acc[asset].Add(amount)
}

// Balance returns the owner's free balance of one asset.
func (k *Keeper) Balance(owner common.Address, asset string) decimal.Decimal {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.balances[owner][asset]
}

// Balances returns a copy of all of the owner's balances.
func (k *Keeper) Balances(owner common.Address) map[string]decimal.Decimal {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(k.balances[owner]))
	for asset, amt := range k.balances[owner] {
		out[asset] = amt
	}
	return out
}

// Restore sets a balance directly. Startup rebuild only.
func (k *Keeper) Restore(owner common.Address, asset string, amount decimal.Decimal) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.account(owner)[asset] = amount
}
