package ledger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/xsettle/types"
)

var (
	tokenT = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenU = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	spendr = common.HexToAddress("0x0000000000000000000000000000000000005e11")
)

func TestLedger_MintAndTransfer(t *testing.T) {
	l := New()

	require.NoError(t, l.Mint(tokenT, alice, big.NewInt(100)))
	require.NoError(t, l.Transfer(tokenT, alice, bob, big.NewInt(30)))

	assert.Equal(t, int64(70), l.BalanceOf(tokenT, alice).Int64())
	assert.Equal(t, int64(30), l.BalanceOf(tokenT, bob).Int64())
	assert.Equal(t, int64(100), l.TotalSupply(tokenT).Int64())
	assert.Equal(t, int64(0), l.BalanceOf(tokenU, alice).Int64())
	assert.Equal(t, int64(0), l.TotalSupply(tokenU).Int64())
}

func TestLedger_TransferInsufficientBalance(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tokenT, alice, big.NewInt(10)))

	err := l.Transfer(tokenT, alice, bob, big.NewInt(11))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInsufficientBalance))
	assert.Equal(t, int64(10), l.BalanceOf(tokenT, alice).Int64())
}

func TestLedger_InvalidAmounts(t *testing.T) {
	l := New()

	for _, amt := range []*big.Int{nil, big.NewInt(-1)} {
		assert.ErrorIs(t, l.Mint(tokenT, alice, amt), types.ErrInvalidAmount)
		assert.ErrorIs(t, l.Transfer(tokenT, alice, bob, amt), types.ErrInvalidAmount)
		assert.ErrorIs(t, l.Approve(tokenT, alice, bob, amt), types.ErrInvalidAmount)
		assert.ErrorIs(t, l.TransferFrom(tokenT, spendr, alice, bob, amt), types.ErrInvalidAmount)
	}
}

func TestLedger_ApproveReplacesAndTransferFromConsumes(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tokenT, alice, big.NewInt(100)))

	require.NoError(t, l.Approve(tokenT, alice, spendr, big.NewInt(50)))
	require.NoError(t, l.Approve(tokenT, alice, spendr, big.NewInt(20)))
	assert.Equal(t, int64(20), l.Allowance(tokenT, alice, spendr).Int64(), "approve replaces")

	err := l.TransferFrom(tokenT, spendr, alice, bob, big.NewInt(21))
	assert.ErrorIs(t, err, types.ErrInsufficientAllowance)

	require.NoError(t, l.TransferFrom(tokenT, spendr, alice, bob, big.NewInt(15)))
	assert.Equal(t, int64(5), l.Allowance(tokenT, alice, spendr).Int64())
	assert.Equal(t, int64(15), l.BalanceOf(tokenT, bob).Int64())
}

func TestLedger_TransferFromInsufficientBalance(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tokenT, alice, big.NewInt(5)))
	require.NoError(t, l.Approve(tokenT, alice, spendr, big.NewInt(50)))

	err := l.TransferFrom(tokenT, spendr, alice, bob, big.NewInt(10))
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)
	assert.Equal(t, int64(50), l.Allowance(tokenT, alice, spendr).Int64())
}

func TestLedger_SnapshotRevert(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tokenT, alice, big.NewInt(100)))

	snap := l.Snapshot()
	require.NoError(t, l.Transfer(tokenT, alice, bob, big.NewInt(40)))
	require.NoError(t, l.Mint(tokenU, bob, big.NewInt(7)))
	require.NoError(t, l.Approve(tokenT, bob, spendr, big.NewInt(3)))
	l.RevertToSnapshot(snap)

	assert.Equal(t, int64(100), l.BalanceOf(tokenT, alice).Int64())
	assert.Equal(t, int64(0), l.BalanceOf(tokenT, bob).Int64())
	assert.Equal(t, int64(0), l.BalanceOf(tokenU, bob).Int64())
	assert.Equal(t, int64(0), l.TotalSupply(tokenU).Int64())
	assert.Equal(t, int64(0), l.Allowance(tokenT, bob, spendr).Int64())
	assert.Nil(t, l.journal)
}

func TestLedger_ReleaseKeepsChanges(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tokenT, alice, big.NewInt(100)))

	snap := l.Snapshot()
	require.NoError(t, l.Transfer(tokenT, alice, bob, big.NewInt(40)))
	l.Release(snap)

	assert.Equal(t, int64(40), l.BalanceOf(tokenT, bob).Int64())
	assert.Nil(t, l.journal)
}

func TestLedger_NestedSnapshots(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tokenT, alice, big.NewInt(100)))

	outer := l.Snapshot()
	require.NoError(t, l.Transfer(tokenT, alice, bob, big.NewInt(10)))

	inner := l.Snapshot()
	require.NoError(t, l.Transfer(tokenT, alice, bob, big.NewInt(20)))
	l.RevertToSnapshot(inner)
	assert.Equal(t, int64(10), l.BalanceOf(tokenT, bob).Int64())

	l.RevertToSnapshot(outer)
	assert.Equal(t, int64(0), l.BalanceOf(tokenT, bob).Int64())
	assert.Equal(t, int64(100), l.BalanceOf(tokenT, alice).Int64())
}

func TestLedger_ReceiveHook(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tokenT, alice, big.NewInt(100)))

	var seen []*big.Int
	l.SetReceiveHook(bob, func(token, from common.Address, amount *big.Int) error {
		assert.Equal(t, tokenT, token)
		assert.Equal(t, alice, from)
		seen = append(seen, amount)
		return nil
	})

	require.NoError(t, l.Transfer(tokenT, alice, bob, big.NewInt(1)))
	require.Len(t, seen, 1)
	assert.Equal(t, int64(1), seen[0].Int64())

	l.SetReceiveHook(bob, nil)
	require.NoError(t, l.Transfer(tokenT, alice, bob, big.NewInt(1)))
	assert.Len(t, seen, 1)
}

func TestLedger_FailingHookRevertsTransfer(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tokenT, alice, big.NewInt(100)))
	require.NoError(t, l.Approve(tokenT, alice, spendr, big.NewInt(100)))

	boom := errors.New("rejected")
	l.SetReceiveHook(bob, func(common.Address, common.Address, *big.Int) error {
		// the hook sees the credited balance and may re-enter the ledger
		assert.Equal(t, int64(60), l.BalanceOf(tokenT, bob).Int64())
		return boom
	})

	err := l.TransferFrom(tokenT, spendr, alice, bob, big.NewInt(60))
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, int64(100), l.BalanceOf(tokenT, alice).Int64())
	assert.Equal(t, int64(0), l.BalanceOf(tokenT, bob).Int64())
	assert.Equal(t, int64(100), l.Allowance(tokenT, alice, spendr).Int64())

	err = l.Mint(tokenT, bob, big.NewInt(60))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(100), l.TotalSupply(tokenT).Int64())
}

func TestLedger_PanickingHookRevertsTransfer(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(tokenT, alice, big.NewInt(100)))
	l.SetReceiveHook(bob, func(common.Address, common.Address, *big.Int) error {
		panic("hook exploded")
	})

	outer := l.Snapshot()
	assert.PanicsWithValue(t, "hook exploded", func() {
		_ = l.Transfer(tokenT, alice, bob, big.NewInt(40))
	})
	assert.Equal(t, int64(100), l.BalanceOf(tokenT, alice).Int64())
	assert.Equal(t, int64(0), l.BalanceOf(tokenT, bob).Int64())

	l.Release(outer)
	assert.Zero(t, l.snapshots)
	assert.Empty(t, l.journal)
}
