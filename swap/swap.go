// Package swap defines the swap collaborator the settlement engine relies on
// and a fixed-rate quote desk implementation of it.
package swap

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Swapper exchanges tokens held by the custody vault. It must either deliver
// at least minOut of out to recipient and return the delivered amount, or
// fail without delivering anything.
type Swapper interface {
	Address() common.Address
	SwapFromVaultHoldings(
		ctx context.Context,
		in, out common.Address,
		amountIn, minOut *big.Int,
		recipient common.Address,
	) (*big.Int, error)
}
