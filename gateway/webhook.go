package gateway

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/vitwit/xsettle/logger"
	"github.com/vitwit/xsettle/types"
)

// FinalizeRequest is the JSON body posted to the webhook.
type FinalizeRequest struct {
	PaymentID string `json:"paymentId"`
	Recipient string `json:"recipient"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
}

// Webhook finalizes payments by POSTing them to an HTTP endpoint. Any
// non-2xx answer is a failure; 409 Conflict means the gateway has already
// finalized the payment.
type Webhook struct {
	client *resty.Client
	path   string
	logger logger.Logger
}

var _ Gateway = (*Webhook)(nil)

type WebhookOption func(*Webhook)

// WithBearerToken authenticates every request with token.
func WithBearerToken(token string) WebhookOption {
	return func(w *Webhook) {
		if token != "" {
			w.client.SetAuthToken(token)
		}
	}
}

func WithWebhookLogger(l logger.Logger) WebhookOption {
	return func(w *Webhook) {
		w.logger = l
	}
}

// NewWebhook posts to baseURL+path.
func NewWebhook(baseURL, path string, timeout time.Duration, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		path:   path,
		logger: logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Webhook) FinalizeIncomingPayment(ctx context.Context, paymentID types.PaymentID, recipient, token common.Address, amount *big.Int) error {
	body := FinalizeRequest{
		PaymentID: paymentID.Hex(),
		Recipient: recipient.Hex(),
		Token:     token.Hex(),
		Amount:    amount.String(),
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(w.path)
	if err != nil {
		w.logger.Error("gateway webhook unreachable", map[string]any{"payment_id": body.PaymentID, "error": err})
		return fmt.Errorf("gateway webhook: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusConflict:
		return types.Errorf(types.CodeDuplicatePayment, "payment %s already finalized", body.PaymentID)
	case resp.IsError():
		w.logger.Warn("gateway webhook rejected payment", map[string]any{
			"payment_id": body.PaymentID,
			"status":     resp.StatusCode(),
		})
		return fmt.Errorf("gateway webhook responded %d: %s", resp.StatusCode(), resp.String())
	}

	w.logger.Debug("gateway webhook accepted payment", map[string]any{"payment_id": body.PaymentID})
	return nil
}
