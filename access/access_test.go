package access

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/xsettle/types"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

func TestSingleOwner_Authorize(t *testing.T) {
	p := NewSingleOwner(alice)

	require.NoError(t, p.Authorize(alice))

	err := p.Authorize(bob)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnauthorized))
}

func TestSingleOwner_ZeroOwnerAuthorizesNobody(t *testing.T) {
	p := NewSingleOwner(common.Address{})

	assert.Error(t, p.Authorize(common.Address{}))
}

func TestSingleOwner_TransferOwnership(t *testing.T) {
	p := NewSingleOwner(alice)

	require.Error(t, p.TransferOwnership(bob, bob))
	require.Error(t, p.TransferOwnership(alice, common.Address{}))
	require.NoError(t, p.TransferOwnership(alice, bob))

	assert.Equal(t, bob, p.Owner())
	assert.Error(t, p.Authorize(alice))
	assert.NoError(t, p.Authorize(bob))
}

func TestAdminSet_GrantRevoke(t *testing.T) {
	p := NewAdminSet(alice, common.Address{})

	assert.NoError(t, p.Authorize(alice))
	assert.Error(t, p.Authorize(bob))
	assert.Len(t, p.Members(), 1)

	require.Error(t, p.Grant(bob, carol), "non-admin cannot grant")
	require.NoError(t, p.Grant(alice, bob))
	assert.NoError(t, p.Authorize(bob))

	require.NoError(t, p.Revoke(bob, alice))
	assert.Error(t, p.Authorize(alice))

	err := p.Revoke(bob, bob)
	require.Error(t, err)
	assert.Equal(t, types.CodeConfigError, types.CodeOf(err))

	assert.NoError(t, p.Revoke(bob, carol), "revoking a non-member is a no-op")
}
