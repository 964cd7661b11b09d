package xsettle

import (
	"github.com/vitwit/xsettle/events"
	"github.com/vitwit/xsettle/gateway"
	"github.com/vitwit/xsettle/ledger"
	"github.com/vitwit/xsettle/logger"
	"github.com/vitwit/xsettle/metrics"
	"github.com/vitwit/xsettle/swap"
)

type Option func(*Settler)

func WithLogger(l logger.Logger) Option {
	return func(s *Settler) {
		s.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Settler) {
		s.metrics = r
	}
}

// WithGateway overrides the gateway built from configuration.
func WithGateway(g gateway.Gateway) Option {
	return func(s *Settler) {
		s.gateway = g
	}
}

// WithSwapper overrides the swap desk built from configuration.
func WithSwapper(sw swap.Swapper) Option {
	return func(s *Settler) {
		s.swapper = sw
	}
}

// WithEmitter receives every committed event in addition to the log sink.
func WithEmitter(e events.Emitter) Option {
	return func(s *Settler) {
		s.emitter = e
	}
}

// WithLedger runs against an existing ledger instead of a fresh one.
func WithLedger(l *ledger.Ledger) Option {
	return func(s *Settler) {
		s.ledger = l
	}
}
