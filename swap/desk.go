package swap

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/vitwit/xsettle/logger"
	"github.com/vitwit/xsettle/types"
)

// Custody is the vault surface the desk draws input funds from.
type Custody interface {
	Address() common.Address
	PushTokens(caller, token, to common.Address, amount *big.Int) error
}

// Assets is the asset layer the desk pays output from.
type Assets interface {
	BalanceOf(token, account common.Address) *big.Int
	Transfer(token, from, to common.Address, amount *big.Int) error
}

type pair struct {
	in, out common.Address
}

// Desk quotes fixed rates and settles out of its own treasury account. It
// must be an authorized spender of the vault it draws from.
type Desk struct {
	address common.Address
	vault   Custody
	assets  Assets
	logger  logger.Logger

	mu    sync.RWMutex
	rates map[pair]decimal.Decimal
}

var _ Swapper = (*Desk)(nil)

func NewDesk(address common.Address, vault Custody, assets Assets, log logger.Logger) *Desk {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Desk{
		address: address,
		vault:   vault,
		assets:  assets,
		logger:  log,
		rates:   make(map[pair]decimal.Decimal),
	}
}

func (d *Desk) Address() common.Address {
	return d.address
}

// SetRate quotes rate units of out per unit of in.
func (d *Desk) SetRate(in, out common.Address, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return types.Errorf(types.CodeConfigError, "rate %s for %s/%s must be positive", rate, in.Hex(), out.Hex())
	}
	d.mu.Lock()
	d.rates[pair{in, out}] = rate
	d.mu.Unlock()
	return nil
}

// Quote returns the output for amountIn, rounded down.
func (d *Desk) Quote(in, out common.Address, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, types.Errorf(types.CodeInvalidAmount, "amount in must be a non-negative integer")
	}

	d.mu.RLock()
	rate, ok := d.rates[pair{in, out}]
	d.mu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.CodeSwapFailed, "no rate for %s -> %s", in.Hex(), out.Hex())
	}

	return decimal.NewFromBigInt(amountIn, 0).Mul(rate).Floor().BigInt(), nil
}

// SwapFromVaultHoldings implements Swapper.
func (d *Desk) SwapFromVaultHoldings(
	ctx context.Context,
	in, out common.Address,
	amountIn, minOut *big.Int,
	recipient common.Address,
) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.Wrap(types.CodeSwapFailed, err, "swap cancelled")
	}

	amountOut, err := d.Quote(in, out, amountIn)
	if err != nil {
		return nil, err
	}
	if minOut != nil && amountOut.Cmp(minOut) < 0 {
		return nil, types.Errorf(types.CodeInsufficientOutput, "quote %s below minimum %s", amountOut, minOut)
	}
	if treasury := d.assets.BalanceOf(out, d.address); treasury.Cmp(amountOut) < 0 {
		return nil, types.Errorf(types.CodeSwapFailed, "treasury holds %s of %s, needs %s", treasury, out.Hex(), amountOut)
	}

	if err := d.vault.PushTokens(d.address, in, d.address, amountIn); err != nil {
		return nil, types.Wrap(types.CodeSwapFailed, err, "failed to draw input from vault")
	}
	if err := d.assets.Transfer(out, d.address, recipient, amountOut); err != nil {
		// hand the input back so the swap has no effect
		if rbErr := d.assets.Transfer(in, d.address, d.vault.Address(), amountIn); rbErr != nil {
			d.logger.Error("swap refund failed", map[string]any{"token": in.Hex(), "amount": amountIn, "error": rbErr})
		}
		return nil, types.Wrap(types.CodeSwapFailed, err, "failed to deliver output")
	}

	d.logger.Info("swap executed", map[string]any{
		"in":         in.Hex(),
		"out":        out.Hex(),
		"amount_in":  amountIn,
		"amount_out": amountOut,
		"recipient":  recipient.Hex(),
	})
	return amountOut, nil
}
