// Package ledger is the in-process asset layer: per-token balances and
// allowances with a journal that lets a caller revert every change made
// since a snapshot.
//
// Accounts may register a receive hook that runs after they are credited.
// A failing hook reverts the transfer that triggered it. Hooks run without
// the ledger lock held, so they may call back into the ledger or into any
// component built on top of it.
package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/xsettle/types"
)

// ReceiveHook is invoked after account receives amount of token from from.
type ReceiveHook func(token, from common.Address, amount *big.Int) error

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

type Ledger struct {
	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*big.Int
	supply     map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	hooks      map[common.Address]ReceiveHook

	journal   []func()
	snapshots int
}

func New() *Ledger {
	return &Ledger{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		supply:     make(map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		hooks:      make(map[common.Address]ReceiveHook),
	}
}

// BalanceOf returns a copy of account's balance of token.
func (l *Ledger) BalanceOf(token, account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(token, account))
}

// TotalSupply returns the minted amount of token.
func (l *Ledger) TotalSupply(token common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.supply[token]; ok {
		return new(big.Int).Set(s)
	}
	return new(big.Int)
}

// Allowance returns what spender may still move out of owner's token balance.
func (l *Ledger) Allowance(token, owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.allowances[allowanceKey{token, owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// SetReceiveHook installs hook for account; a nil hook removes it.
func (l *Ledger) SetReceiveHook(account common.Address, hook ReceiveHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hook == nil {
		delete(l.hooks, account)
		return
	}
	l.hooks[account] = hook
}

// Mint creates amount of token in to's balance. It is the entry point for
// funds released by a bridge token pool and for genesis balances.
func (l *Ledger) Mint(token, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	snap := l.snapshotLocked()
	l.addSupplyLocked(token, amount)
	l.creditLocked(token, to, amount)
	hook := l.hooks[to]
	l.mu.Unlock()

	return l.finish(snap, hook, token, common.Address{}, amount)
}

// Transfer moves amount of token from from to to.
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	if l.balanceLocked(token, from).Cmp(amount) < 0 {
		bal := new(big.Int).Set(l.balanceLocked(token, from))
		l.mu.Unlock()
		return types.Errorf(types.CodeInsufficientBalance,
			"%s holds %s of %s, needs %s", from.Hex(), bal, token.Hex(), amount)
	}
	snap := l.snapshotLocked()
	l.debitLocked(token, from, amount)
	l.creditLocked(token, to, amount)
	hook := l.hooks[to]
	l.mu.Unlock()

	return l.finish(snap, hook, token, from, amount)
}

// TransferFrom moves amount of token from from to to on behalf of spender,
// consuming spender's allowance.
func (l *Ledger) TransferFrom(token, spender, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	key := allowanceKey{token, from, spender}
	allowance, ok := l.allowances[key]
	if !ok || allowance.Cmp(amount) < 0 {
		l.mu.Unlock()
		return types.Errorf(types.CodeInsufficientAllowance,
			"%s may not move %s of %s from %s", spender.Hex(), amount, token.Hex(), from.Hex())
	}
	if l.balanceLocked(token, from).Cmp(amount) < 0 {
		l.mu.Unlock()
		return types.Errorf(types.CodeInsufficientBalance,
			"%s holds less than %s of %s", from.Hex(), amount, token.Hex())
	}
	snap := l.snapshotLocked()
	l.setAllowanceLocked(key, new(big.Int).Sub(allowance, amount))
	l.debitLocked(token, from, amount)
	l.creditLocked(token, to, amount)
	hook := l.hooks[to]
	l.mu.Unlock()

	return l.finish(snap, hook, token, from, amount)
}

// Approve sets spender's allowance over owner's token balance to amount,
// replacing whatever was approved before.
func (l *Ledger) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.setAllowanceLocked(allowanceKey{token, owner, spender}, new(big.Int).Set(amount))
	return nil
}

// finish runs the receive hook, if any, and reverts to snap when it fails
// or panics.
func (l *Ledger) finish(snap int, hook ReceiveHook, token, from common.Address, amount *big.Int) (err error) {
	if hook == nil {
		l.Release(snap)
		return nil
	}

	done := false
	defer func() {
		if !done {
			l.RevertToSnapshot(snap)
		}
	}()
	if err = hook(token, from, new(big.Int).Set(amount)); err != nil {
		return err
	}
	done = true
	l.Release(snap)
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return types.Errorf(types.CodeInvalidAmount, "amount must be a non-negative integer")
	}
	return nil
}

func (l *Ledger) balanceLocked(token, account common.Address) *big.Int {
	if byAcct, ok := l.balances[token]; ok {
		if b, ok := byAcct[account]; ok {
			return b
		}
	}
	return new(big.Int)
}

func (l *Ledger) setBalanceLocked(token, account common.Address, v *big.Int) {
	byAcct, ok := l.balances[token]
	if !ok {
		byAcct = make(map[common.Address]*big.Int)
		l.balances[token] = byAcct
	}

	prev, had := byAcct[account]
	l.record(func() {
		if had {
			byAcct[account] = prev
		} else {
			delete(byAcct, account)
		}
	})
	byAcct[account] = v
}

func (l *Ledger) creditLocked(token, account common.Address, amount *big.Int) {
	l.setBalanceLocked(token, account, new(big.Int).Add(l.balanceLocked(token, account), amount))
}

func (l *Ledger) debitLocked(token, account common.Address, amount *big.Int) {
	l.setBalanceLocked(token, account, new(big.Int).Sub(l.balanceLocked(token, account), amount))
}

func (l *Ledger) addSupplyLocked(token common.Address, amount *big.Int) {
	prev, had := l.supply[token]
	l.record(func() {
		if had {
			l.supply[token] = prev
		} else {
			delete(l.supply, token)
		}
	})
	if !had {
		prev = new(big.Int)
	}
	l.supply[token] = new(big.Int).Add(prev, amount)
}

func (l *Ledger) setAllowanceLocked(key allowanceKey, v *big.Int) {
	prev, had := l.allowances[key]
	l.record(func() {
		if had {
			l.allowances[key] = prev
		} else {
			delete(l.allowances, key)
		}
	})
	l.allowances[key] = v
}
