package stripe

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"
)

// Client wraps the processor SDK for the retrieval calls reconciliation
// needs. Every call gets its own timeout so one slow remote lookup cannot
// stall the whole run.
type Client struct {
	api     *client.API
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a processor client. A zero timeout defaults to 20s.
func NewClient(secretKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	api := &client.API{}
	api.Init(secretKey, nil)

	return &Client{
		api:     api,
		timeout: timeout,
		logger:  logger,
	}
}

// RetrievePaymentIntent fetches the live payment intent by id.
func (c *Client) RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	return c.api.PaymentIntents.Get(id, params)
}

// RetrieveSubscription fetches the live subscription by id.
func (c *Client) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	return c.api.Subscriptions.Get(id, params)
}
