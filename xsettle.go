// Package xsettle assembles the cross-chain settlement receiver: trust
// registry, payload codec, custody vault, settlement engine and the
// gateway and swap collaborators, all wired from a config.Config.
package xsettle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/vitwit/xsettle/access"
	"github.com/vitwit/xsettle/config"
	"github.com/vitwit/xsettle/events"
	"github.com/vitwit/xsettle/gateway"
	"github.com/vitwit/xsettle/ledger"
	"github.com/vitwit/xsettle/logger"
	"github.com/vitwit/xsettle/metrics"
	"github.com/vitwit/xsettle/settlement"
	"github.com/vitwit/xsettle/swap"
	"github.com/vitwit/xsettle/trust"
	"github.com/vitwit/xsettle/types"
	"github.com/vitwit/xsettle/utils"
	"github.com/vitwit/xsettle/vault"
)

// Settler is a fully wired receiver.
//
// The ledger, vault and trust registry returned by its accessors are shared
// with the unit of work of ProcessMessage. Calls on them that may run
// concurrently with ProcessMessage must go through Admin.
type Settler struct {
	cfg *config.Config

	logger  logger.Logger
	metrics metrics.Recorder
	emitter events.Emitter
	gateway gateway.Gateway
	swapper swap.Swapper

	ledger   *ledger.Ledger
	policy   *access.AdminSet
	journal  *events.Journal
	trust    *trust.Registry
	vault    *vault.Vault
	engine   *settlement.Engine
	receiver *settlement.Receiver
	desk     *swap.Desk
	store    *gateway.Store
	tokens   *utils.TokenBook

	closers []io.Closer
}

// New builds a Settler from cfg. Genesis balances, trust seeds, vault
// spenders and desk rates are applied before it is returned.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Settler, error) {
	if cfg == nil {
		return nil, types.Errorf(types.CodeConfigError, "nil config")
	}

	s := &Settler{
		cfg:     cfg,
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		tokens:  cfg.TokenBook(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ledger == nil {
		s.ledger = ledger.New()
	}

	sink := events.Emitter(eventLog{log: logger.With(s.logger, map[string]any{"component": "events"}), tokens: s.tokens})
	if s.emitter != nil {
		sink = events.Fanout{sink, s.emitter}
	}
	s.journal = events.NewJournal(sink)

	if err := s.build(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Settler) build(ctx context.Context) error {
	cfg := s.cfg

	admins := make([]common.Address, 0, len(cfg.Receiver.Admins))
	for _, a := range cfg.Receiver.Admins {
		admins = append(admins, utils.HexAddress(a))
	}
	if len(admins) == 0 {
		return types.Errorf(types.CodeConfigError, "at least one admin is required")
	}
	admin := admins[0]
	s.policy = access.NewAdminSet(admins...)

	for _, g := range cfg.Genesis {
		token := utils.HexAddress(g.Token)
		amount, err := s.tokens.Parse(token, g.Amount)
		if err != nil {
			return types.Wrap(types.CodeConfigError, err, "genesis balance of %s", g.Account)
		}
		if err := s.ledger.Mint(token, utils.HexAddress(g.Account), amount); err != nil {
			return err
		}
	}

	s.trust = trust.NewRegistry(s.policy, s.journal)
	for _, seed := range cfg.Trust {
		fp, err := utils.ParseFingerprint(seed.Sender)
		if err != nil {
			return types.Wrap(types.CodeConfigError, err, "trust seed for chain %d", seed.Chain)
		}
		chain := types.ChainSelector(seed.Chain)
		if err := s.trust.SetTrustedSender(admin, chain, fp); err != nil {
			return err
		}
		if seed.Disabled {
			if err := s.trust.SetSourceChainAllowed(admin, chain, false); err != nil {
				return err
			}
		}
	}

	account := utils.HexAddress(cfg.Receiver.Account)
	s.vault = vault.New(utils.HexAddress(cfg.Receiver.Vault), s.ledger, s.policy,
		vault.WithEmitter(s.journal),
		vault.WithLogger(logger.With(s.logger, map[string]any{"component": "vault"})),
	)
	spenders := []common.Address{account}
	for _, sp := range cfg.Receiver.Spenders {
		spenders = append(spenders, utils.HexAddress(sp))
	}

	if s.swapper == nil && cfg.Swap.Desk != "" {
		desk, err := s.newDesk()
		if err != nil {
			return err
		}
		s.desk = desk
		s.swapper = desk
	}
	if s.swapper != nil {
		spenders = append(spenders, s.swapper.Address())
	}
	for _, sp := range spenders {
		if err := s.vault.SetAuthorizedSpender(admin, sp, true); err != nil {
			return err
		}
	}

	if s.gateway == nil {
		gw, err := s.newGateway(ctx)
		if err != nil {
			return err
		}
		s.gateway = gw
	}

	engineOpts := []settlement.Option{
		settlement.WithEmitter(s.journal),
		settlement.WithLogger(logger.With(s.logger, map[string]any{"component": "engine"})),
		settlement.WithMetrics(s.metrics),
		settlement.WithGateway(s.gateway),
	}
	if s.swapper != nil {
		engineOpts = append(engineOpts, settlement.WithSwapper(s.swapper))
	}
	s.engine = settlement.NewEngine(account, s.trust, s.ledger, s.vault, s.policy, engineOpts...)

	receiverOpts := []settlement.ReceiverOption{
		settlement.WithReceiverLogger(logger.With(s.logger, map[string]any{"component": "receiver"})),
		settlement.WithReceiverMetrics(s.metrics),
	}
	if cfg.Receiver.Router != "" {
		receiverOpts = append(receiverOpts, settlement.WithRouter(utils.HexAddress(cfg.Receiver.Router)))
	}
	if cfg.Receiver.TokenPool {
		receiverOpts = append(receiverOpts, settlement.WithTokenPool(s.ledger))
	}
	s.receiver = settlement.NewReceiver(s.engine, s.ledger, s.journal, receiverOpts...)

	s.logger.Info("settler ready", map[string]any{
		"account":  account.Hex(),
		"vault":    s.vault.Address().Hex(),
		"gateway":  cfg.Gateway.Kind,
		"swapper":  s.swapper != nil,
		"chains":   len(cfg.Trust),
		"spenders": len(spenders),
	})
	return nil
}

func (s *Settler) newDesk() (*swap.Desk, error) {
	desk := swap.NewDesk(utils.HexAddress(s.cfg.Swap.Desk), s.vault, s.ledger,
		logger.With(s.logger, map[string]any{"component": "desk"}))
	for _, r := range s.cfg.Swap.Rates {
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil {
			return nil, types.Wrap(types.CodeConfigError, err, "swap rate %s -> %s", r.In, r.Out)
		}
		if err := desk.SetRate(utils.HexAddress(r.In), utils.HexAddress(r.Out), rate); err != nil {
			return nil, err
		}
	}
	return desk, nil
}

func (s *Settler) newGateway(ctx context.Context) (gateway.Gateway, error) {
	gc := s.cfg.Gateway
	log := logger.With(s.logger, map[string]any{"component": "gateway"})

	switch gc.Kind {
	case "", "nop":
		return gateway.Nop{}, nil
	case "webhook":
		return gateway.NewWebhook(gc.URL, gc.Path, gc.Timeout.Std(),
			gateway.WithBearerToken(gc.Token),
			gateway.WithWebhookLogger(log),
		), nil
	case string(gateway.DialectSQLite), string(gateway.DialectPostgres):
		store, err := gateway.OpenStore(ctx, gateway.Dialect(gc.Kind), gc.DSN, log)
		if err != nil {
			return nil, types.Wrap(types.CodeConfigError, err, "failed to open gateway store")
		}
		s.store = store
		s.closers = append(s.closers, store)
		return store, nil
	default:
		return nil, types.Errorf(types.CodeConfigError, "unknown gateway kind %q", gc.Kind)
	}
}

// ProcessMessage settles msg delivered by caller as one unit of work.
func (s *Settler) ProcessMessage(ctx context.Context, caller common.Address, msg types.Message) (*types.SettlementRecord, error) {
	return s.receiver.ProcessMessage(ctx, caller, msg)
}

// Admin runs fn between units of work, so its changes are never recorded
// into, or rolled back with, a message being settled.
func (s *Settler) Admin(fn func() error) error {
	return s.receiver.Exclusive(fn)
}

func (s *Settler) Receiver() *settlement.Receiver { return s.receiver }
func (s *Settler) Engine() *settlement.Engine     { return s.engine }
func (s *Settler) Trust() *trust.Registry         { return s.trust }
func (s *Settler) Vault() *vault.Vault            { return s.vault }
func (s *Settler) Ledger() *ledger.Ledger         { return s.ledger }
func (s *Settler) Policy() *access.AdminSet       { return s.policy }
func (s *Settler) Tokens() *utils.TokenBook       { return s.tokens }

// Desk is the configured swap desk, nil when none is configured or a
// swapper was supplied through WithSwapper.
func (s *Settler) Desk() *swap.Desk { return s.desk }

// Store is the SQL gateway, nil for other gateway kinds.
func (s *Settler) Store() *gateway.Store { return s.store }

// Close releases the gateway store, if any.
func (s *Settler) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("error closing settler: %w", err)
	}
	return nil
}

// eventLog logs committed events, rendering settled amounts with the token
// book.
type eventLog struct {
	log    logger.Logger
	tokens *utils.TokenBook
}

func (e eventLog) Emit(ev events.Event) {
	events.LogSink{Log: e.log}.Emit(ev)

	if ev.Kind != events.KindPaymentSettled {
		return
	}
	token, _ := ev.Attrs["token"].(common.Address)
	amount, _ := ev.Attrs["amount"].(*big.Int)
	e.log.Info("payment delivered", map[string]any{
		"payment_id": ev.Attrs["payment_id"],
		"recipient":  ev.Attrs["recipient"],
		"amount":     e.tokens.Format(token, amount),
	})
}

// Version information
const Version = "0.3.0"

// GetVersion returns version information
func GetVersion() map[string]any {
	return map[string]any{
		"library_version":  Version,
		"payload_shapes":   []string{"legacy", "extended"},
		"gateway_kinds":    []string{"nop", "webhook", "sqlite3", "postgres"},
		"supported_chains": "any EVM-addressed chain with a trust entry",
	}
}
