package settlement

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/xsettle/access"
	"github.com/vitwit/xsettle/codec"
	"github.com/vitwit/xsettle/events"
	"github.com/vitwit/xsettle/ledger"
	"github.com/vitwit/xsettle/trust"
	"github.com/vitwit/xsettle/types"
	"github.com/vitwit/xsettle/vault"
)

var (
	admin     = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	engineAcc = common.HexToAddress("0x000000000000000000000000000000000000ec01")
	vaultAcc  = common.HexToAddress("0x000000000000000000000000000000000000fa17")
	deskAcc   = common.HexToAddress("0x000000000000000000000000000000000000de5c")
	router    = common.HexToAddress("0x0000000000000000000000000000000000000707")
	recipient = common.HexToAddress("0x0000000000000000000000000000000000000e0e")
	remote    = common.HexToAddress("0x00000000000000000000000000000000005e4de7")
	tokenT    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenU    = common.HexToAddress("0x00000000000000000000000000000000000000a2")

	senderS = codec.SenderFingerprint(remote)
)

const (
	chainTrusted types.ChainSelector = 7
	chainUnknown types.ChainSelector = 9
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) FinalizeIncomingPayment(ctx context.Context, id types.PaymentID, to, token common.Address, amount *big.Int) error {
	return m.Called(ctx, id, to, token, amount).Error(0)
}

type mockSwapper struct {
	mock.Mock
}

func (m *mockSwapper) Address() common.Address {
	return deskAcc
}

func (m *mockSwapper) SwapFromVaultHoldings(
	ctx context.Context,
	in, out common.Address,
	amountIn, minOut *big.Int,
	to common.Address,
) (*big.Int, error) {
	args := m.Called(ctx, in, out, amountIn, minOut, to)
	var got *big.Int
	if v := args.Get(0); v != nil {
		got = v.(*big.Int)
	}
	return got, args.Error(1)
}

// countingRecorder tallies metric calls by name and code.
type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: make(map[string]int)}
}

func (c *countingRecorder) IncCounter(name string, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := name
	if code := labels["code"]; code != "" {
		key += "/" + code
	}
	c.counts[key]++
}

func (c *countingRecorder) ObserveLatency(name string, _ time.Duration, _ map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts["latency/"+name]++
}

func (c *countingRecorder) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

type fixture struct {
	ledger   *ledger.Ledger
	registry *trust.Registry
	vault    *vault.Vault
	engine   *Engine
	journal  *events.Journal
	events   *events.Recorder
	gateway  *mockGateway
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	policy := access.NewSingleOwner(admin)
	rec := events.NewRecorder()
	journal := events.NewJournal(rec)
	l := ledger.New()

	registry := trust.NewRegistry(policy, journal)
	require.NoError(t, registry.SetTrustedSender(admin, chainTrusted, senderS))

	v := vault.New(vaultAcc, l, policy, vault.WithEmitter(journal))
	require.NoError(t, v.SetAuthorizedSpender(admin, engineAcc, true))

	gw := &mockGateway{}
	opts = append([]Option{WithEmitter(journal), WithGateway(gw)}, opts...)
	engine := NewEngine(engineAcc, registry, l, v, policy, opts...)

	rec.Reset()
	return &fixture{
		ledger:   l,
		registry: registry,
		vault:    v,
		engine:   engine,
		journal:  journal,
		events:   rec,
		gateway:  gw,
	}
}

func (f *fixture) balance(token, account common.Address) int64 {
	return f.ledger.BalanceOf(token, account).Int64()
}

func amountOf(n int64) any {
	return mock.MatchedBy(func(a *big.Int) bool {
		return a != nil && a.Cmp(big.NewInt(n)) == 0
	})
}

func paymentID(n int64) types.PaymentID {
	return types.PaymentID(common.BigToHash(big.NewInt(n)))
}

func legacyIntent(id int64, dest common.Address, minOut int64) types.PaymentIntent {
	return types.PaymentIntent{
		PaymentID:           paymentID(id),
		DestinationToken:    dest,
		Recipient:           recipient,
		MinAcceptableOutput: big.NewInt(minOut),
	}
}

func extendedIntent(id int64, dest, source common.Address, minOut int64) types.PaymentIntent {
	intent := legacyIntent(id, dest, minOut)
	intent.SourceToken = &source
	return intent
}

func delivered(token common.Address, amount int64) []types.TokenAmount {
	return []types.TokenAmount{{Token: token, Amount: big.NewInt(amount)}}
}
