package settlement

import (
	"context"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/xsettle/codec"
	"github.com/vitwit/xsettle/events"
	"github.com/vitwit/xsettle/logger"
	"github.com/vitwit/xsettle/metrics"
	"github.com/vitwit/xsettle/types"
)

// State is the journaled asset layer a unit of work runs against.
type State interface {
	Snapshot() int
	RevertToSnapshot(id int)
	Release(id int)
}

// TokenPool releases bridged funds on the destination side.
type TokenPool interface {
	Mint(token, to common.Address, amount *big.Int) error
}

// Receiver is the entry point for inbound messages. Each message is handled
// as one unit of work: either it settles and its events are published, or
// every balance change it made is reverted and its events are dropped.
type Receiver struct {
	engine  *Engine
	state   State
	journal *events.Journal

	router  *common.Address
	pool    TokenPool
	logger  logger.Logger
	metrics metrics.Recorder

	mu sync.Mutex
}

type ReceiverOption func(*Receiver)

// WithRouter restricts delivery to router.
func WithRouter(router common.Address) ReceiverOption {
	return func(r *Receiver) {
		r.router = &router
	}
}

// WithTokenPool credits the delivered funds to the engine account at the
// start of every unit. Without a pool the transport is expected to have
// credited them already.
func WithTokenPool(p TokenPool) ReceiverOption {
	return func(r *Receiver) {
		r.pool = p
	}
}

func WithReceiverLogger(l logger.Logger) ReceiverOption {
	return func(r *Receiver) {
		r.logger = l
	}
}

func WithReceiverMetrics(m metrics.Recorder) ReceiverOption {
	return func(r *Receiver) {
		r.metrics = m
	}
}

// NewReceiver wraps engine. journal must be the emitter the engine and the
// vault publish through, otherwise their events escape the unit of work.
func NewReceiver(engine *Engine, state State, journal *events.Journal, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		engine:  engine,
		state:   state,
		journal: journal,
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.journal == nil {
		r.journal = events.NewJournal(nil)
	}
	return r
}

// Engine returns the wrapped engine.
func (r *Receiver) Engine() *Engine {
	return r.engine
}

// ProcessMessage authenticates, decodes and settles msg delivered by caller.
func (r *Receiver) ProcessMessage(ctx context.Context, caller common.Address, msg types.Message) (*types.SettlementRecord, error) {
	start := time.Now()
	labels := map[string]string{metrics.LabelChain: strconv.FormatUint(uint64(msg.SourceChain), 10)}
	r.metrics.IncCounter(metrics.MessagesReceived, labels)

	record, err := r.process(ctx, caller, msg)
	r.metrics.ObserveLatency(metrics.ProcessingLatency, time.Since(start), labels)

	if err != nil {
		code := types.CodeOf(err)
		r.metrics.IncCounter(metrics.MessagesRejected, map[string]string{
			metrics.LabelChain: labels[metrics.LabelChain],
			metrics.LabelCode:  string(code),
		})
		r.logger.Warn("message rejected", map[string]any{
			"message_id":   msg.MessageID.Hex(),
			"source_chain": uint64(msg.SourceChain),
			"code":         string(code),
			"error":        err,
		})
		return nil, err
	}

	r.metrics.IncCounter(metrics.MessagesSettled, labels)
	r.logger.Debug("message settled", map[string]any{
		"message_id": msg.MessageID.Hex(),
		"payment_id": record.PaymentID.Hex(),
		"elapsed":    time.Since(start),
	})
	return record, nil
}

// Exclusive runs fn while no unit of work is open.
func (r *Receiver) Exclusive(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

func (r *Receiver) process(ctx context.Context, caller common.Address, msg types.Message) (*types.SettlementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.router != nil && caller != *r.router {
		return nil, types.Errorf(types.CodeInvalidRouter, "%s is not the router", caller.Hex())
	}
	// authenticate before looking at the payload
	if err := r.engine.Checker().Check(msg.SourceChain, msg.Sender); err != nil {
		return nil, err
	}
	intent, err := codec.Decode(msg.Data)
	if err != nil {
		return nil, err
	}

	if err := r.journal.Begin(); err != nil {
		return nil, types.Wrap(types.CodeConfigError, err, "event journal is shared with another receiver")
	}
	snap := r.state.Snapshot()

	// the unit is closed on every exit, panics included
	committed := false
	defer func() {
		if !committed {
			r.state.RevertToSnapshot(snap)
			r.journal.Discard()
		}
	}()

	record, err := r.settle(ctx, msg, intent)
	if err != nil {
		return nil, err
	}

	committed = true
	r.state.Release(snap)
	r.journal.Commit()
	return record, nil
}

func (r *Receiver) settle(ctx context.Context, msg types.Message, intent types.PaymentIntent) (*types.SettlementRecord, error) {
	if r.pool != nil {
		for _, f := range msg.DeliveredFunds {
			if err := r.pool.Mint(f.Token, r.engine.Address(), f.Amount); err != nil {
				return nil, err
			}
		}
	}
	return r.engine.Settle(ctx, msg.SourceChain, msg.Sender, intent, msg.DeliveredFunds)
}
