package settlement

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/xsettle/codec"
	"github.com/vitwit/xsettle/events"
	"github.com/vitwit/xsettle/metrics"
	"github.com/vitwit/xsettle/swap"
	"github.com/vitwit/xsettle/types"
)

type receiverFixture struct {
	*fixture
	receiver *Receiver
	metrics  *countingRecorder
	desk     *swap.Desk
}

// newReceiverFixture wires a receiver with the ledger as token pool and a
// desk quoting 0.98 U per T out of a 1000 U treasury.
func newReceiverFixture(t *testing.T) *receiverFixture {
	t.Helper()

	f := newFixture(t)
	desk := swap.NewDesk(deskAcc, f.vault, f.ledger, nil)
	require.NoError(t, desk.SetRate(tokenT, tokenU, decimal.RequireFromString("0.98")))
	require.NoError(t, f.vault.SetAuthorizedSpender(admin, deskAcc, true))
	require.NoError(t, f.ledger.Mint(tokenU, deskAcc, big.NewInt(1000)))
	require.NoError(t, f.engine.SetSwapper(admin, desk))
	f.events.Reset()

	rec := newCountingRecorder()
	r := NewReceiver(f.engine, f.ledger, f.journal,
		WithRouter(router),
		WithTokenPool(f.ledger),
		WithReceiverMetrics(rec),
	)
	return &receiverFixture{fixture: f, receiver: r, metrics: rec, desk: desk}
}

func message(t *testing.T, chain types.ChainSelector, intent types.PaymentIntent, funds []types.TokenAmount) types.Message {
	t.Helper()
	data, err := codec.Encode(intent)
	require.NoError(t, err)
	return types.Message{
		MessageID:      common.BytesToHash(intent.PaymentID[:]),
		SourceChain:    chain,
		Sender:         senderS,
		Data:           data,
		DeliveredFunds: funds,
	}
}

func TestReceiver_ScenarioA_DirectTransfer(t *testing.T) {
	f := newReceiverFixture(t)
	f.gateway.On("FinalizeIncomingPayment", mock.Anything, paymentID(1), recipient, tokenT, amountOf(100)).Return(nil).Once()

	msg := message(t, chainTrusted, legacyIntent(1, tokenT, 0), delivered(tokenT, 100))
	require.Len(t, msg.Data, codec.LegacyLength)

	record, err := f.receiver.ProcessMessage(context.Background(), router, msg)
	require.NoError(t, err)

	assert.Equal(t, types.SettlementRecord{
		PaymentID:     paymentID(1),
		Recipient:     recipient,
		SettledToken:  tokenT,
		SettledAmount: record.SettledAmount,
		Swapped:       false,
	}, *record)
	assert.Equal(t, int64(100), record.SettledAmount.Int64())
	assert.Equal(t, int64(100), f.balance(tokenT, recipient))
	assert.Equal(t, int64(0), f.balance(tokenT, vaultAcc))

	assert.Equal(t, []events.Kind{events.KindPaymentSettled}, f.events.Kinds())
	f.gateway.AssertExpectations(t)

	assert.Equal(t, 1, f.metrics.count(metrics.MessagesReceived))
	assert.Equal(t, 1, f.metrics.count(metrics.MessagesSettled))
}

func TestReceiver_ScenarioB_Swap(t *testing.T) {
	f := newReceiverFixture(t)
	f.gateway.On("FinalizeIncomingPayment", mock.Anything, paymentID(2), recipient, tokenU, amountOf(98)).Return(nil).Once()

	msg := message(t, chainTrusted, extendedIntent(2, tokenU, tokenT, 95), delivered(tokenT, 100))
	require.Len(t, msg.Data, codec.ExtendedLength)

	record, err := f.receiver.ProcessMessage(context.Background(), router, msg)
	require.NoError(t, err)

	assert.True(t, record.Swapped)
	assert.Equal(t, tokenU, record.SettledToken)
	assert.Equal(t, int64(98), record.SettledAmount.Int64())

	assert.Equal(t, int64(98), f.balance(tokenU, recipient))
	assert.Equal(t, int64(0), f.balance(tokenT, vaultAcc))
	assert.Equal(t, int64(100), f.balance(tokenT, deskAcc))
	assert.Equal(t, int64(0), f.balance(tokenT, engineAcc))

	assert.Equal(t, []events.Kind{events.KindDeposit, events.KindWithdrawal, events.KindPaymentSettled}, f.events.Kinds())
	evs := f.events.Events()
	for i := 1; i < len(evs); i++ {
		assert.Equal(t, evs[i-1].Seq+1, evs[i].Seq, "committed events are numbered without gaps")
	}
	f.gateway.AssertExpectations(t)
}

func TestReceiver_ScenarioC_UntrustedChainBeforeDecode(t *testing.T) {
	f := newReceiverFixture(t)

	msg := types.Message{
		SourceChain:    chainUnknown,
		Sender:         senderS,
		Data:           []byte{0x01, 0x02, 0x03},
		DeliveredFunds: delivered(tokenT, 100),
	}
	_, err := f.receiver.ProcessMessage(context.Background(), router, msg)

	assert.ErrorIs(t, err, types.ErrUntrustedSourceChain)
	assert.NotErrorIs(t, err, types.ErrMalformedPayload)
	assert.Zero(t, f.ledger.TotalSupply(tokenT).Sign())
	assert.Empty(t, f.events.Events())
	f.gateway.AssertNotCalled(t, "FinalizeIncomingPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	assert.Equal(t, 1, f.metrics.count(metrics.MessagesRejected+"/"+string(types.CodeUntrustedSourceChain)))
}

func TestReceiver_RejectsForeignRouter(t *testing.T) {
	f := newReceiverFixture(t)

	msg := message(t, chainTrusted, legacyIntent(1, tokenT, 0), delivered(tokenT, 100))
	_, err := f.receiver.ProcessMessage(context.Background(), recipient, msg)

	assert.ErrorIs(t, err, types.ErrInvalidRouter)
	assert.Zero(t, f.ledger.TotalSupply(tokenT).Sign())
}

func TestReceiver_MalformedPayload(t *testing.T) {
	f := newReceiverFixture(t)

	msg := message(t, chainTrusted, legacyIntent(1, tokenT, 0), delivered(tokenT, 100))
	msg.Data = append(msg.Data, 0x00)

	_, err := f.receiver.ProcessMessage(context.Background(), router, msg)
	assert.ErrorIs(t, err, types.ErrMalformedPayload)
	assert.Zero(t, f.ledger.TotalSupply(tokenT).Sign())
}

func TestReceiver_FailedUnitLeavesNoTrace(t *testing.T) {
	cases := []struct {
		name   string
		intent types.PaymentIntent
		setup  func(f *receiverFixture)
		want   error
	}{
		{
			name:   "gateway rejects direct transfer",
			intent: legacyIntent(1, tokenT, 0),
			setup: func(f *receiverFixture) {
				f.gateway.On("FinalizeIncomingPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(errors.New("duplicate")).Once()
			},
			want: types.ErrGatewayFailed,
		},
		{
			name:   "gateway rejects after swap",
			intent: extendedIntent(2, tokenU, tokenT, 95),
			setup: func(f *receiverFixture) {
				f.gateway.On("FinalizeIncomingPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(errors.New("down")).Once()
			},
			want: types.ErrGatewayFailed,
		},
		{
			name:   "desk quote below minimum",
			intent: extendedIntent(2, tokenU, tokenT, 99),
			want:   types.ErrSwapFailed,
		},
		{
			name:   "swapper removed",
			intent: extendedIntent(2, tokenU, tokenT, 95),
			setup: func(f *receiverFixture) {
				require.NoError(t, f.engine.SetSwapper(admin, nil))
				f.events.Reset()
			},
			want: types.ErrSwapNotConfigured,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newReceiverFixture(t)
			if tc.setup != nil {
				tc.setup(f)
			}

			msg := message(t, chainTrusted, tc.intent, delivered(tokenT, 100))
			_, err := f.receiver.ProcessMessage(context.Background(), router, msg)
			assert.ErrorIs(t, err, tc.want)

			assert.Zero(t, f.ledger.TotalSupply(tokenT).Sign())
			assert.Equal(t, int64(0), f.balance(tokenT, engineAcc))
			assert.Equal(t, int64(0), f.balance(tokenT, vaultAcc))
			assert.Equal(t, int64(0), f.balance(tokenT, deskAcc))
			assert.Equal(t, int64(0), f.balance(tokenU, recipient))
			assert.Equal(t, int64(1000), f.balance(tokenU, deskAcc))
			assert.Zero(t, f.ledger.Allowance(tokenT, engineAcc, vaultAcc).Sign())
			assert.Empty(t, f.events.Events())
			assert.Zero(t, f.journal.Pending())
		})
	}
}

func TestReceiver_PanickingGatewayRollsBackUnit(t *testing.T) {
	f := newReceiverFixture(t)
	f.gateway.On("FinalizeIncomingPayment", mock.Anything, paymentID(1), recipient, tokenT, amountOf(100)).
		Panic("gateway crashed").Once()
	f.gateway.On("FinalizeIncomingPayment", mock.Anything, paymentID(2), recipient, tokenT, amountOf(50)).
		Return(nil).Once()

	first := message(t, chainTrusted, legacyIntent(1, tokenT, 0), delivered(tokenT, 100))
	assert.PanicsWithValue(t, "gateway crashed", func() {
		_, _ = f.receiver.ProcessMessage(context.Background(), router, first)
	})

	assert.Zero(t, f.ledger.TotalSupply(tokenT).Sign())
	assert.Equal(t, int64(0), f.balance(tokenT, recipient))
	assert.Equal(t, int64(0), f.balance(tokenT, engineAcc))
	assert.Empty(t, f.events.Events())
	assert.Zero(t, f.journal.Pending())

	second := message(t, chainTrusted, legacyIntent(2, tokenT, 0), delivered(tokenT, 50))
	_, err := f.receiver.ProcessMessage(context.Background(), router, second)
	require.NoError(t, err)
	assert.Equal(t, int64(50), f.balance(tokenT, recipient))
	assert.Equal(t, int64(50), f.ledger.TotalSupply(tokenT).Int64())
	f.gateway.AssertExpectations(t)
}

func TestReceiver_ReplaysAreNotSuppressed(t *testing.T) {
	f := newReceiverFixture(t)
	f.gateway.On("FinalizeIncomingPayment", mock.Anything, paymentID(1), recipient, tokenT, amountOf(100)).Return(nil).Twice()

	msg := message(t, chainTrusted, legacyIntent(1, tokenT, 0), delivered(tokenT, 100))
	for i := 0; i < 2; i++ {
		_, err := f.receiver.ProcessMessage(context.Background(), router, msg)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(200), f.balance(tokenT, recipient))
	f.gateway.AssertExpectations(t)
}

func TestReceiver_WithoutRouterAcceptsAnyCaller(t *testing.T) {
	f := newFixture(t)
	r := NewReceiver(f.engine, f.ledger, f.journal, WithTokenPool(f.ledger))
	f.gateway.On("FinalizeIncomingPayment", mock.Anything, paymentID(1), recipient, tokenT, amountOf(1)).Return(nil).Once()

	_, err := r.ProcessMessage(context.Background(), common.Address{}, message(t, chainTrusted, legacyIntent(1, tokenT, 0), delivered(tokenT, 1)))
	require.NoError(t, err)
}

func TestReceiver_ExclusiveWaitsForOpenUnit(t *testing.T) {
	type view struct {
		pending int
		paid    int64
	}

	f := newReceiverFixture(t)
	seen := make(chan view, 1)
	f.gateway.On("FinalizeIncomingPayment", mock.Anything, paymentID(1), recipient, tokenT, amountOf(100)).
		Run(func(mock.Arguments) {
			// the unit is still open here
			go func() {
				_ = f.receiver.Exclusive(func() error {
					seen <- view{pending: f.journal.Pending(), paid: f.balance(tokenT, recipient)}
					return nil
				})
			}()
		}).
		Return(nil).Once()

	msg := message(t, chainTrusted, legacyIntent(1, tokenT, 0), delivered(tokenT, 100))
	_, err := f.receiver.ProcessMessage(context.Background(), router, msg)
	require.NoError(t, err)

	assert.Equal(t, view{pending: 0, paid: 100}, <-seen)

	denied := errors.New("denied")
	assert.ErrorIs(t, f.receiver.Exclusive(func() error { return denied }), denied)
}
