package http

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v79/webhook"
	domainerrors "github.com/telacare/payment-service/internal/domain/errors"
	"github.com/telacare/payment-service/internal/domain/model"
	"github.com/telacare/payment-service/internal/metrics"
	"github.com/telacare/payment-service/internal/webhook"
	"go.uber.org/zap"
)

const testSecret = "whsec_handler_test"

type mockWebhookEventRepository struct {
	mock.Mock
}

func (m *mockWebhookEventRepository) SaveReceipt(ctx context.Context, eventID, eventType string, livemode bool, data json.RawMessage) (bool, error) {
	args := m.Called(ctx, eventID, eventType, livemode, data)
	return args.Bool(0), args.Error(1)
}

func (m *mockWebhookEventRepository) MarkProcessed(ctx context.Context, eventID string, status model.WebhookStatus) error {
	args := m.Called(ctx, eventID, status)
	return args.Error(0)
}

func (m *mockWebhookEventRepository) MarkFailed(ctx context.Context, eventID string, procErr error) error {
	args := m.Called(ctx, eventID, procErr)
	return args.Error(0)
}

func (m *mockWebhookEventRepository) ListRecent(ctx context.Context, limit int) ([]*model.WebhookEvent, error) {
	args := m.Called(ctx, limit)
	if events := args.Get(0); events != nil {
		return events.([]*model.WebhookEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func signBody(body []byte) string {
	now := time.Now()
	sig := stripewebhook.ComputeSignature(now, body, testSecret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func deliver(h *WebhookHandler, body []byte, sigHeader string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(body)))
	if sigHeader != "" {
		req.Header.Set("Stripe-Signature", sigHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = h.HandleWebhook(c)
	return rec
}

func eventBody(eventType string) []byte {
	return []byte(`{"id":"evt_h1","type":"` + eventType + `","created":1770000000,"livemode":false,"data":{"object":{"id":"pi_1"}}}`)
}

func newHandler(receipts *mockWebhookEventRepository, register func(d *webhook.Dispatcher)) *WebhookHandler {
	verifier := webhook.NewVerifier(testSecret, webhook.DefaultTolerance)
	dispatcher := webhook.NewDispatcher(zap.NewNop())
	if register != nil {
		register(dispatcher)
	}
	return NewWebhookHandler(zap.NewNop(), verifier, dispatcher, receipts, metrics.New())
}

func TestHandleWebhook(t *testing.T) {
	t.Run("applied event acknowledges with 200", func(t *testing.T) {
		receipts := new(mockWebhookEventRepository)
		h := newHandler(receipts, func(d *webhook.Dispatcher) {
			d.Register(webhook.EventPaymentIntentSucceeded, func(ctx context.Context, evt *webhook.Event) error {
				return nil
			})
		})

		body := eventBody("payment_intent.succeeded")
		receipts.On("SaveReceipt", mock.Anything, "evt_h1", "payment_intent.succeeded", false, mock.Anything).Return(true, nil)
		receipts.On("MarkProcessed", mock.Anything, "evt_h1", model.WebhookStatusCompleted).Return(nil)

		rec := deliver(h, body, signBody(body))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		receipts.AssertExpectations(t)
	})

	t.Run("missing signature header is a 400 with the reason", func(t *testing.T) {
		receipts := new(mockWebhookEventRepository)
		h := newHandler(receipts, nil)

		rec := deliver(h, eventBody("payment_intent.succeeded"), "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"missing_header"}`, rec.Body.String())
		receipts.AssertNotCalled(t, "SaveReceipt",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("forged signature is a 400 and nothing is stored", func(t *testing.T) {
		receipts := new(mockWebhookEventRepository)
		h := newHandler(receipts, nil)

		body := eventBody("payment_intent.succeeded")
		now := time.Now()
		forged := stripewebhook.ComputeSignature(now, body, "whsec_wrong")
		header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(forged))

		rec := deliver(h, body, header)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"signature_mismatch"}`, rec.Body.String())
		receipts.AssertNotCalled(t, "SaveReceipt",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown event type is acknowledged and recorded as ignored", func(t *testing.T) {
		receipts := new(mockWebhookEventRepository)
		h := newHandler(receipts, nil)

		body := eventBody("invoice.finalized")
		receipts.On("SaveReceipt", mock.Anything, "evt_h1", "invoice.finalized", false, mock.Anything).Return(true, nil)
		receipts.On("MarkProcessed", mock.Anything, "evt_h1", model.WebhookStatusIgnored).Return(nil)

		rec := deliver(h, body, signBody(body))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		receipts.AssertExpectations(t)
	})

	t.Run("already applied is a 200, not an error", func(t *testing.T) {
		receipts := new(mockWebhookEventRepository)
		h := newHandler(receipts, func(d *webhook.Dispatcher) {
			d.Register(webhook.EventPaymentIntentSucceeded, func(ctx context.Context, evt *webhook.Event) error {
				return domainerrors.ErrAlreadyApplied
			})
		})

		body := eventBody("payment_intent.succeeded")
		receipts.On("SaveReceipt", mock.Anything, "evt_h1", mock.Anything, false, mock.Anything).Return(false, nil)
		receipts.On("MarkProcessed", mock.Anything, "evt_h1", model.WebhookStatusCompleted).Return(nil)

		rec := deliver(h, body, signBody(body))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("non-retryable apply failure is a 400", func(t *testing.T) {
		receipts := new(mockWebhookEventRepository)
		h := newHandler(receipts, func(d *webhook.Dispatcher) {
			d.Register(webhook.EventPaymentIntentSucceeded, func(ctx context.Context, evt *webhook.Event) error {
				return domainerrors.NewAmountMismatch(evt.ID, "ord_1", 5000, 4000)
			})
		})

		body := eventBody("payment_intent.succeeded")
		receipts.On("SaveReceipt", mock.Anything, "evt_h1", mock.Anything, false, mock.Anything).Return(true, nil)
		receipts.On("MarkFailed", mock.Anything, "evt_h1", mock.Anything).Return(nil)

		rec := deliver(h, body, signBody(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		receipts.AssertExpectations(t)
	})

	t.Run("retryable apply failure is a 500 so the processor redelivers", func(t *testing.T) {
		receipts := new(mockWebhookEventRepository)
		h := newHandler(receipts, func(d *webhook.Dispatcher) {
			d.Register(webhook.EventPaymentIntentSucceeded, func(ctx context.Context, evt *webhook.Event) error {
				return domainerrors.NewStoreUnavailable(evt.ID, errors.New("connection reset"))
			})
		})

		body := eventBody("payment_intent.succeeded")
		receipts.On("SaveReceipt", mock.Anything, "evt_h1", mock.Anything, false, mock.Anything).Return(true, nil)
		receipts.On("MarkFailed", mock.Anything, "evt_h1", mock.Anything).Return(nil)

		rec := deliver(h, body, signBody(body))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("receipt store outage is a 500 before dispatch", func(t *testing.T) {
		receipts := new(mockWebhookEventRepository)
		dispatched := false
		h := newHandler(receipts, func(d *webhook.Dispatcher) {
			d.Register(webhook.EventPaymentIntentSucceeded, func(ctx context.Context, evt *webhook.Event) error {
				dispatched = true
				return nil
			})
		})

		body := eventBody("payment_intent.succeeded")
		receipts.On("SaveReceipt", mock.Anything, "evt_h1", mock.Anything, false, mock.Anything).
			Return(false, errors.New("connection refused"))

		rec := deliver(h, body, signBody(body))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.False(t, dispatched)
	})

	t.Run("stale signature is a 400", func(t *testing.T) {
		receipts := new(mockWebhookEventRepository)
		h := newHandler(receipts, nil)

		body := eventBody("payment_intent.succeeded")
		old := time.Now().Add(-time.Hour)
		sig := stripewebhook.ComputeSignature(old, body, testSecret)
		header := fmt.Sprintf("t=%d,v1=%s", old.Unix(), hex.EncodeToString(sig))

		rec := deliver(h, body, header)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"stale_timestamp"}`, rec.Body.String())
	})
}

func TestListRecentEvents(t *testing.T) {
	newContext := func(target string) (echo.Context, *httptest.ResponseRecorder) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		return e.NewContext(req, rec), rec
	}

	t.Run("returns the newest receipts", func(t *testing.T) {
		receipts := new(mockWebhookEventRepository)
		h := NewEventsHandler(zap.NewNop(), receipts)

		receipts.On("ListRecent", mock.Anything, 50).Return([]*model.WebhookEvent{
			{ProviderEventID: "evt_2", EventType: "payment_intent.succeeded"},
			{ProviderEventID: "evt_1", EventType: "charge.refunded"},
		}, nil)

		c, rec := newContext("/internal/events/recent")
		require.NoError(t, h.ListRecent(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "evt_2")
		assert.Contains(t, rec.Body.String(), "evt_1")
	})

	t.Run("honors and caps the limit parameter", func(t *testing.T) {
		receipts := new(mockWebhookEventRepository)
		h := NewEventsHandler(zap.NewNop(), receipts)

		receipts.On("ListRecent", mock.Anything, 200).Return([]*model.WebhookEvent{}, nil)

		c, rec := newContext("/internal/events/recent?limit=5000")
		require.NoError(t, h.ListRecent(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		receipts.AssertExpectations(t)
	})

	t.Run("rejects a non-numeric limit", func(t *testing.T) {
		receipts := new(mockWebhookEventRepository)
		h := NewEventsHandler(zap.NewNop(), receipts)

		c, rec := newContext("/internal/events/recent?limit=abc")
		require.NoError(t, h.ListRecent(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
