// Package vault implements the custody vault: the only account that holds
// pooled funds while a swap is in progress.
//
// Fund-moving calls are restricted to authorized spenders and the vault's
// admins. Every mutating entry point runs under an in-flight marker; a
// nested call into the vault while one is running, including one made from
// a ledger receive hook, fails with a types.ErrReentrantCall-coded error and
// moves nothing.
package vault

import (
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/xsettle/access"
	"github.com/vitwit/xsettle/events"
	"github.com/vitwit/xsettle/logger"
	"github.com/vitwit/xsettle/types"
)

// Assets is the slice of the asset layer the vault moves funds through.
type Assets interface {
	BalanceOf(token, account common.Address) *big.Int
	Transfer(token, from, to common.Address, amount *big.Int) error
	TransferFrom(token, spender, from, to common.Address, amount *big.Int) error
	Approve(token, owner, spender common.Address, amount *big.Int) error
}

type Vault struct {
	address common.Address
	assets  Assets
	policy  access.Policy
	emitter events.Emitter
	logger  logger.Logger

	mu         sync.RWMutex
	authorized map[common.Address]bool

	entered atomic.Bool
}

type Option func(*Vault)

func WithEmitter(e events.Emitter) Option {
	return func(v *Vault) {
		v.emitter = e
	}
}

func WithLogger(l logger.Logger) Option {
	return func(v *Vault) {
		v.logger = l
	}
}

// New creates a vault whose holdings live under address in assets.
func New(address common.Address, assets Assets, policy access.Policy, opts ...Option) *Vault {
	v := &Vault{
		address:    address,
		assets:     assets,
		policy:     policy,
		emitter:    events.Discard{},
		logger:     logger.NoopLogger{},
		authorized: make(map[common.Address]bool),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Address is the account holding the vault's funds.
func (v *Vault) Address() common.Address {
	return v.address
}

// Balance returns the vault's holdings of token.
func (v *Vault) Balance(token common.Address) *big.Int {
	return v.assets.BalanceOf(token, v.address)
}

// IsAuthorized reports whether account may move funds through the vault.
// Admins are always authorized.
func (v *Vault) IsAuthorized(account common.Address) bool {
	if v.policy.Authorize(account) == nil {
		return true
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.authorized[account]
}

// SetAuthorizedSpender adds or removes spender from the authorization list.
func (v *Vault) SetAuthorizedSpender(caller, spender common.Address, allowed bool) error {
	return v.guard(func() error {
		if err := v.policy.Authorize(caller); err != nil {
			return err
		}

		v.mu.Lock()
		if allowed {
			v.authorized[spender] = true
		} else {
			delete(v.authorized, spender)
		}
		v.mu.Unlock()

		v.emitter.Emit(events.New(events.KindSpenderAuthorizationSet, events.Attrs{
			"spender": spender,
			"allowed": allowed,
		}))
		return nil
	})
}

// PullTokens moves amount of token from from into custody. from must have
// approved the vault for at least amount.
func (v *Vault) PullTokens(caller, token, from common.Address, amount *big.Int) error {
	return v.guard(func() error {
		if err := v.requireAuthorized(caller); err != nil {
			return err
		}
		if err := v.assets.TransferFrom(token, v.address, from, v.address, amount); err != nil {
			return err
		}

		v.emitter.Emit(events.New(events.KindDeposit, events.Attrs{
			"token":  token,
			"from":   from,
			"amount": new(big.Int).Set(amount),
			"caller": caller,
		}))
		v.logger.Debug("vault deposit", map[string]any{"token": token.Hex(), "from": from.Hex(), "amount": amount})
		return nil
	})
}

// PushTokens moves amount of token out of custody to to.
func (v *Vault) PushTokens(caller, token, to common.Address, amount *big.Int) error {
	return v.guard(func() error {
		if err := v.requireAuthorized(caller); err != nil {
			return err
		}
		if err := v.assets.Transfer(token, v.address, to, amount); err != nil {
			return err
		}

		v.emitter.Emit(events.New(events.KindWithdrawal, events.Attrs{
			"token":  token,
			"to":     to,
			"amount": new(big.Int).Set(amount),
			"caller": caller,
		}))
		v.logger.Debug("vault withdrawal", map[string]any{"token": token.Hex(), "to": to.Hex(), "amount": amount})
		return nil
	})
}

// ApproveToken sets spender's allowance over the vault's token holdings to
// amount, replacing any previous allowance.
func (v *Vault) ApproveToken(caller, token, spender common.Address, amount *big.Int) error {
	return v.guard(func() error {
		if err := v.requireAuthorized(caller); err != nil {
			return err
		}
		if err := v.assets.Approve(token, v.address, spender, amount); err != nil {
			return err
		}

		v.emitter.Emit(events.New(events.KindTokenApproval, events.Attrs{
			"token":   token,
			"spender": spender,
			"amount":  new(big.Int).Set(amount),
		}))
		return nil
	})
}

// EmergencyWithdraw lets an admin move stuck funds out of custody. It does
// not consult the spender list.
func (v *Vault) EmergencyWithdraw(caller, token, to common.Address, amount *big.Int) error {
	return v.guard(func() error {
		if err := v.policy.Authorize(caller); err != nil {
			return err
		}
		if err := v.assets.Transfer(token, v.address, to, amount); err != nil {
			return err
		}

		v.emitter.Emit(events.New(events.KindEmergencyWithdrawal, events.Attrs{
			"token":  token,
			"to":     to,
			"amount": new(big.Int).Set(amount),
			"caller": caller,
		}))
		v.logger.Warn("vault emergency withdrawal", map[string]any{
			"token":  token.Hex(),
			"to":     to.Hex(),
			"amount": amount,
			"caller": caller.Hex(),
		})
		return nil
	})
}

func (v *Vault) requireAuthorized(caller common.Address) error {
	if !v.IsAuthorized(caller) {
		return types.Errorf(types.CodeUnauthorized, "%s is not an authorized vault spender", caller.Hex())
	}
	return nil
}

// guard runs fn with the in-flight marker set.
func (v *Vault) guard(fn func() error) error {
	if !v.entered.CompareAndSwap(false, true) {
		return types.Errorf(types.CodeReentrantCall, "vault call already in flight")
	}
	defer v.entered.Store(false)
	return fn()
}
