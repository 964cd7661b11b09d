// Package settlement turns authenticated, decoded payment instructions into
// fund movements.
//
// Engine settles a single intent against the funds delivered with it: a
// direct transfer when the delivered token is the one the recipient wants,
// a custody deposit followed by a swap otherwise. Receiver wraps the engine
// in a unit of work so that a message either settles completely or leaves
// no trace.
package settlement

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/xsettle/access"
	"github.com/vitwit/xsettle/events"
	"github.com/vitwit/xsettle/gateway"
	"github.com/vitwit/xsettle/logger"
	"github.com/vitwit/xsettle/metrics"
	"github.com/vitwit/xsettle/swap"
	"github.com/vitwit/xsettle/trust"
	"github.com/vitwit/xsettle/types"
)

// Assets is the asset layer the engine's own account lives in.
type Assets interface {
	Transfer(token, from, to common.Address, amount *big.Int) error
	Approve(token, owner, spender common.Address, amount *big.Int) error
}

// Custody is the vault surface used on the swap path.
type Custody interface {
	Address() common.Address
	PullTokens(caller, token, from common.Address, amount *big.Int) error
}

// Engine holds delivered funds under its own account until it settles them.
type Engine struct {
	address common.Address
	checker trust.Checker
	assets  Assets
	vault   Custody
	policy  access.Policy

	emitter events.Emitter
	logger  logger.Logger
	metrics metrics.Recorder

	mu      sync.RWMutex
	swapper swap.Swapper
	gateway gateway.Gateway
}

type Option func(*Engine)

// WithEmitter sets the emitter PaymentSettled and the admin events go to.
func WithEmitter(e events.Emitter) Option {
	return func(en *Engine) {
		en.emitter = e
	}
}

func WithLogger(l logger.Logger) Option {
	return func(en *Engine) {
		en.logger = l
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(en *Engine) {
		en.metrics = m
	}
}

// WithSwapper installs the initial swap collaborator.
func WithSwapper(s swap.Swapper) Option {
	return func(en *Engine) {
		en.swapper = s
	}
}

// WithGateway installs the initial gateway.
func WithGateway(g gateway.Gateway) Option {
	return func(en *Engine) {
		en.gateway = g
	}
}

// NewEngine creates an engine whose account is address. The engine must be
// an authorized spender of vault for swaps to succeed.
func NewEngine(
	address common.Address,
	checker trust.Checker,
	assets Assets,
	vault Custody,
	policy access.Policy,
	opts ...Option,
) *Engine {
	e := &Engine{
		address: address,
		checker: checker,
		assets:  assets,
		vault:   vault,
		policy:  policy,
		emitter: events.Discard{},
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Address is the account delivered funds are credited to.
func (e *Engine) Address() common.Address {
	return e.address
}

// Checker returns the trust view the engine authenticates against.
func (e *Engine) Checker() trust.Checker {
	return e.checker
}

// SetSwapper replaces the swap collaborator. A nil swapper disables the
// swap path.
func (e *Engine) SetSwapper(caller common.Address, s swap.Swapper) error {
	if err := e.policy.Authorize(caller); err != nil {
		return err
	}

	e.mu.Lock()
	e.swapper = s
	e.mu.Unlock()

	var addr common.Address
	if s != nil {
		addr = s.Address()
	}
	e.emitter.Emit(events.New(events.KindSwapperUpdated, events.Attrs{"swapper": addr}))
	e.logger.Info("swapper updated", map[string]any{"swapper": addr.Hex(), "caller": caller.Hex()})
	return nil
}

// SetGateway replaces the gateway collaborator.
func (e *Engine) SetGateway(caller common.Address, g gateway.Gateway) error {
	if err := e.policy.Authorize(caller); err != nil {
		return err
	}

	e.mu.Lock()
	e.gateway = g
	e.mu.Unlock()

	e.emitter.Emit(events.New(events.KindGatewayUpdated, events.Attrs{"configured": g != nil}))
	e.logger.Info("gateway updated", map[string]any{"configured": g != nil, "caller": caller.Hex()})
	return nil
}

// Settle delivers the funds received from sender on chain according to
// intent. Only the first entry of funds is considered.
//
// Settle does not undo partial fund movements when a later step fails; run
// it through a Receiver to get all-or-nothing behaviour.
func (e *Engine) Settle(
	ctx context.Context,
	chain types.ChainSelector,
	sender []byte,
	intent types.PaymentIntent,
	funds []types.TokenAmount,
) (*types.SettlementRecord, error) {
	if err := e.checker.Check(chain, sender); err != nil {
		return nil, err
	}
	if len(funds) == 0 {
		return nil, types.Errorf(types.CodeNoFundsDelivered, "message for payment %s carried no funds", intent.PaymentID.Hex())
	}

	received := funds[0]
	if received.Amount == nil || received.Amount.Sign() < 0 {
		return nil, types.Errorf(types.CodeInvalidAmount, "delivered amount must be a non-negative integer")
	}
	if source := intent.EffectiveSourceToken(); source != received.Token {
		return nil, types.Errorf(types.CodeTokenMismatch,
			"payment %s expects %s, received %s", intent.PaymentID.Hex(), source.Hex(), received.Token.Hex())
	}

	e.mu.RLock()
	gw, sw := e.gateway, e.swapper
	e.mu.RUnlock()

	if gw == nil {
		return nil, types.Errorf(types.CodeGatewayNotConfigured, "no gateway configured")
	}
	swapNeeded := received.Token != intent.DestinationToken
	if swapNeeded && sw == nil {
		return nil, types.Errorf(types.CodeSwapNotConfigured,
			"payment %s needs a %s -> %s swap and no swapper is configured",
			intent.PaymentID.Hex(), received.Token.Hex(), intent.DestinationToken.Hex())
	}

	var (
		record *types.SettlementRecord
		err    error
	)
	if swapNeeded {
		record, err = e.settleSwap(ctx, sw, intent, received)
	} else {
		record, err = e.settleDirect(intent, received)
	}
	if err != nil {
		return nil, err
	}

	if err := gw.FinalizeIncomingPayment(ctx, record.PaymentID, record.Recipient, record.SettledToken, record.SettledAmount); err != nil {
		return nil, types.Wrap(types.CodeGatewayFailed, err, "gateway rejected payment %s", record.PaymentID.Hex())
	}

	minOut := intent.MinOutput()
	e.emitter.Emit(events.New(events.KindPaymentSettled, events.Attrs{
		"payment_id":     record.PaymentID.Hex(),
		"recipient":      record.Recipient,
		"token":          record.SettledToken,
		"amount":         new(big.Int).Set(record.SettledAmount),
		"swapped":        record.Swapped,
		"min_output":     new(big.Int).Set(minOut),
		"source_chain":   uint64(chain),
		"received_token": received.Token,
	}))
	e.logger.Info("payment settled", map[string]any{
		"payment_id": record.PaymentID.Hex(),
		"recipient":  record.Recipient.Hex(),
		"token":      record.SettledToken.Hex(),
		"amount":     record.SettledAmount,
		"swapped":    record.Swapped,
	})
	return record, nil
}

func (e *Engine) settleDirect(intent types.PaymentIntent, received types.TokenAmount) (*types.SettlementRecord, error) {
	if err := e.assets.Transfer(received.Token, e.address, intent.Recipient, received.Amount); err != nil {
		return nil, err
	}
	return &types.SettlementRecord{
		PaymentID:     intent.PaymentID,
		Recipient:     intent.Recipient,
		SettledToken:  received.Token,
		SettledAmount: new(big.Int).Set(received.Amount),
		Swapped:       false,
	}, nil
}

// settleSwap deposits the received funds into custody and only then asks
// the swapper to convert them.
func (e *Engine) settleSwap(
	ctx context.Context,
	sw swap.Swapper,
	intent types.PaymentIntent,
	received types.TokenAmount,
) (*types.SettlementRecord, error) {
	minOut := intent.MinOutput()

	if err := e.assets.Approve(received.Token, e.address, e.vault.Address(), received.Amount); err != nil {
		return nil, err
	}
	if err := e.vault.PullTokens(e.address, received.Token, e.address, received.Amount); err != nil {
		return nil, err
	}

	out, err := sw.SwapFromVaultHoldings(ctx, received.Token, intent.DestinationToken, received.Amount, minOut, intent.Recipient)
	if err != nil {
		return nil, types.Wrap(types.CodeSwapFailed, err, "swap for payment %s failed", intent.PaymentID.Hex())
	}
	if out == nil || out.Cmp(minOut) < 0 {
		return nil, types.Errorf(types.CodeSlippageExceeded,
			"swap for payment %s returned %v, minimum is %s", intent.PaymentID.Hex(), out, minOut)
	}
	e.metrics.IncCounter(metrics.SwapsExecuted, map[string]string{})

	return &types.SettlementRecord{
		PaymentID:     intent.PaymentID,
		Recipient:     intent.Recipient,
		SettledToken:  intent.DestinationToken,
		SettledAmount: new(big.Int).Set(out),
		Swapped:       true,
	}, nil
}
