// Package api exposes the receiver over HTTP for relays that bridge the
// transport to this service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitwit/xsettle/gateway"
	"github.com/vitwit/xsettle/logger"
	"github.com/vitwit/xsettle/types"
	"github.com/vitwit/xsettle/utils"
)

const maxBodyBytes = 1 << 20

// Processor settles inbound messages.
type Processor interface {
	ProcessMessage(ctx context.Context, caller common.Address, msg types.Message) (*types.SettlementRecord, error)
}

// PaymentLookup reads finalized payments back.
type PaymentLookup interface {
	Lookup(ctx context.Context, paymentID types.PaymentID) (*gateway.Finalized, error)
}

type handler struct {
	processor Processor
	lookup    PaymentLookup
	auth      *Authenticator
	gatherer  prometheus.Gatherer
	metrics   string
	timeout   time.Duration
	logger    logger.Logger
}

type Option func(*handler)

// WithAuth requires relay bearer tokens. Without it every request is
// processed as the zero address, which only works when no router is set.
func WithAuth(a *Authenticator) Option {
	return func(h *handler) {
		h.auth = a
	}
}

func WithLookup(l PaymentLookup) Option {
	return func(h *handler) {
		h.lookup = l
	}
}

// WithMetrics serves g at path.
func WithMetrics(g prometheus.Gatherer, path string) Option {
	return func(h *handler) {
		h.gatherer = g
		h.metrics = path
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(h *handler) {
		h.timeout = d
	}
}

func WithLogger(l logger.Logger) Option {
	return func(h *handler) {
		h.logger = l
	}
}

// NewRouter builds the HTTP routes around p.
func NewRouter(p Processor, opts ...Option) http.Handler {
	h := &handler{
		processor: p,
		timeout:   10 * time.Second,
		logger:    logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.gatherer != nil {
		r.Handle(h.metrics, promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if h.auth != nil {
			r.Use(h.auth.middleware)
		}
		r.Use(middleware.Timeout(h.timeout))

		r.Post("/v1/messages", h.postMessage)
		if h.lookup != nil {
			r.Get("/v1/payments/{paymentID}", h.getPayment)
		}
	})
	return r
}

func (h *handler) postMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, types.Wrap(types.CodeInvalidMessage, err, "failed to read body"))
		return
	}

	var req MessageRequest
	if err := utils.DecodeStrict(body, &req); err != nil {
		writeError(w, types.Wrap(types.CodeInvalidMessage, err, "invalid message"))
		return
	}

	caller, _ := CallerFromContext(r.Context())
	record, err := h.processor.ProcessMessage(r.Context(), caller, req.toMessage())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettlementResponse(record))
}

func (h *handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, types.Wrap(types.CodeInvalidMessage, err, "invalid payment id"))
		return
	}

	p, err := h.lookup.Lookup(r.Context(), id)
	if errors.Is(err, gateway.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Message: "payment not found"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentResponse{
		PaymentID:   p.PaymentID.Hex(),
		Recipient:   p.Recipient,
		Token:       p.Token,
		Amount:      p.Amount.String(),
		FinalizedAt: p.FinalizedAt.UTC().Format(time.RFC3339),
	})
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"elapsed":    time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

// StatusFor maps an error to the HTTP status reported for it.
func StatusFor(err error) int {
	code := types.CodeOf(err)
	if code == "" {
		return http.StatusInternalServerError
	}

	switch code.Class() {
	case types.ClassTrust:
		return http.StatusForbidden
	case types.ClassMalformed:
		if code == types.CodeInvalidMessage {
			return http.StatusBadRequest
		}
		return http.StatusUnprocessableEntity
	case types.ClassConfig:
		return http.StatusServiceUnavailable
	case types.ClassResource:
		return http.StatusConflict
	case types.ClassAccess:
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := types.CodeOf(err)
	var class types.ErrorClass
	if code != "" {
		class = code.Class()
	}
	writeJSON(w, StatusFor(err), ErrorResponse{Code: code, Class: class, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
