package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	domainerrors "github.com/telacare/payment-service/internal/domain/errors"
	"github.com/telacare/payment-service/internal/domain/model"
	"github.com/telacare/payment-service/internal/webhook"
	"go.uber.org/zap"
)

func paymentEvent(t *testing.T, amount int64, orderRef string) *webhook.Event {
	t.Helper()

	payload := map[string]interface{}{
		"id":     "pi_1",
		"amount": amount,
	}
	if orderRef != "" {
		payload["metadata"] = map[string]string{"order_id": orderRef}
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	return &webhook.Event{
		ID:      "evt_1",
		Type:    webhook.EventPaymentIntentSucceeded,
		Created: 1770000000,
		Data:    webhook.EventData{Raw: raw},
	}
}

func pendingOrder(total string) *model.Order {
	return &model.Order{
		ID:       1,
		OrderRef: "ord_1",
		Status:   model.OrderStatusPending,
		Total:    decimal.RequireFromString(total),
	}
}

func TestHandlePaymentIntentSucceeded(t *testing.T) {
	ctx := context.Background()

	t.Run("marks a pending order paid when the amount matches", func(t *testing.T) {
		orders := new(mockOrderRepository)
		subs := new(mockSubscriptionRepository)
		service := NewApplyService(orders, subs, zap.NewNop())

		evt := paymentEvent(t, 5000, "ord_1")
		orders.On("GetByRef", ctx, "ord_1").Return(pendingOrder("50.00"), nil)
		orders.On("MarkPaid", ctx, "ord_1", "pi_1", evt.CreatedAt()).Return(true, nil)

		err := service.HandlePaymentIntentSucceeded(ctx, evt)
		require.NoError(t, err)
		orders.AssertExpectations(t)
	})

	t.Run("redelivery against a paid order writes nothing", func(t *testing.T) {
		orders := new(mockOrderRepository)
		service := NewApplyService(orders, new(mockSubscriptionRepository), zap.NewNop())

		paid := pendingOrder("50.00")
		paid.Status = model.OrderStatusPaid
		orders.On("GetByRef", ctx, "ord_1").Return(paid, nil)

		err := service.HandlePaymentIntentSucceeded(ctx, paymentEvent(t, 5000, "ord_1"))
		assert.ErrorIs(t, err, domainerrors.ErrAlreadyApplied)
		orders.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("one minor unit of drift is a mismatch, order untouched", func(t *testing.T) {
		orders := new(mockOrderRepository)
		service := NewApplyService(orders, new(mockSubscriptionRepository), zap.NewNop())

		orders.On("GetByRef", ctx, "ord_1").Return(pendingOrder("50.00"), nil)

		err := service.HandlePaymentIntentSucceeded(ctx, paymentEvent(t, 4999, "ord_1"))
		var applyErr *domainerrors.ApplyError
		require.ErrorAs(t, err, &applyErr)
		assert.Equal(t, domainerrors.CodeAmountMismatch, applyErr.Code)
		assert.False(t, applyErr.Retryable)
		orders.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("underpayment by a larger margin is rejected the same way", func(t *testing.T) {
		orders := new(mockOrderRepository)
		service := NewApplyService(orders, new(mockSubscriptionRepository), zap.NewNop())

		orders.On("GetByRef", ctx, "ord_1").Return(pendingOrder("50.00"), nil)

		err := service.HandlePaymentIntentSucceeded(ctx, paymentEvent(t, 4000, "ord_1"))
		var applyErr *domainerrors.ApplyError
		require.ErrorAs(t, err, &applyErr)
		assert.Equal(t, domainerrors.CodeAmountMismatch, applyErr.Code)
	})

	t.Run("missing order reference is terminal", func(t *testing.T) {
		service := NewApplyService(new(mockOrderRepository), new(mockSubscriptionRepository), zap.NewNop())

		err := service.HandlePaymentIntentSucceeded(ctx, paymentEvent(t, 5000, ""))
		var applyErr *domainerrors.ApplyError
		require.ErrorAs(t, err, &applyErr)
		assert.Equal(t, domainerrors.CodeMissingReference, applyErr.Code)
		assert.False(t, applyErr.Retryable)
	})

	t.Run("unknown order is retryable", func(t *testing.T) {
		orders := new(mockOrderRepository)
		service := NewApplyService(orders, new(mockSubscriptionRepository), zap.NewNop())

		orders.On("GetByRef", ctx, "ord_1").Return(nil, nil)

		err := service.HandlePaymentIntentSucceeded(ctx, paymentEvent(t, 5000, "ord_1"))
		var applyErr *domainerrors.ApplyError
		require.ErrorAs(t, err, &applyErr)
		assert.Equal(t, domainerrors.CodeOrderNotFound, applyErr.Code)
		assert.True(t, applyErr.Retryable)
	})

	t.Run("store failure is retryable", func(t *testing.T) {
		orders := new(mockOrderRepository)
		service := NewApplyService(orders, new(mockSubscriptionRepository), zap.NewNop())

		orders.On("GetByRef", ctx, "ord_1").Return(nil, errors.New("connection reset"))

		err := service.HandlePaymentIntentSucceeded(ctx, paymentEvent(t, 5000, "ord_1"))
		assert.True(t, domainerrors.IsRetryable(err))
	})

	t.Run("losing the conditional update race reports already applied", func(t *testing.T) {
		orders := new(mockOrderRepository)
		service := NewApplyService(orders, new(mockSubscriptionRepository), zap.NewNop())

		evt := paymentEvent(t, 5000, "ord_1")
		orders.On("GetByRef", ctx, "ord_1").Return(pendingOrder("50.00"), nil)
		orders.On("MarkPaid", ctx, "ord_1", "pi_1", evt.CreatedAt()).Return(false, nil)

		err := service.HandlePaymentIntentSucceeded(ctx, evt)
		assert.ErrorIs(t, err, domainerrors.ErrAlreadyApplied)
	})

	t.Run("malformed payload is terminal", func(t *testing.T) {
		service := NewApplyService(new(mockOrderRepository), new(mockSubscriptionRepository), zap.NewNop())

		evt := &webhook.Event{
			ID:   "evt_1",
			Type: webhook.EventPaymentIntentSucceeded,
			Data: webhook.EventData{Raw: json.RawMessage(`"not an object"`)},
		}

		err := service.HandlePaymentIntentSucceeded(ctx, evt)
		var applyErr *domainerrors.ApplyError
		require.ErrorAs(t, err, &applyErr)
		assert.Equal(t, domainerrors.CodeMalformedPayload, applyErr.Code)
	})
}

func TestHandlePaymentIntentFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("records the processor failure details", func(t *testing.T) {
		orders := new(mockOrderRepository)
		service := NewApplyService(orders, new(mockSubscriptionRepository), zap.NewNop())

		raw := []byte(`{"id":"pi_1","metadata":{"order_id":"ord_1"},"last_payment_error":{"code":"card_declined","message":"Your card was declined."}}`)
		evt := &webhook.Event{
			ID:   "evt_2",
			Type: webhook.EventPaymentIntentFailed,
			Data: webhook.EventData{Raw: raw},
		}

		orders.On("GetByRef", ctx, "ord_1").Return(pendingOrder("50.00"), nil)
		orders.On("MarkFailed", ctx, "ord_1",
			mock.MatchedBy(func(code *string) bool { return code != nil && *code == "card_declined" }),
			mock.MatchedBy(func(msg *string) bool { return msg != nil && *msg == "Your card was declined." }),
		).Return(true, nil)

		err := service.HandlePaymentIntentFailed(ctx, evt)
		require.NoError(t, err)
		orders.AssertExpectations(t)
	})

	t.Run("a failed order stays failed on redelivery", func(t *testing.T) {
		orders := new(mockOrderRepository)
		service := NewApplyService(orders, new(mockSubscriptionRepository), zap.NewNop())

		failed := pendingOrder("50.00")
		failed.Status = model.OrderStatusFailed
		orders.On("GetByRef", ctx, "ord_1").Return(failed, nil)

		raw := []byte(`{"id":"pi_1","metadata":{"order_id":"ord_1"}}`)
		evt := &webhook.Event{ID: "evt_2", Type: webhook.EventPaymentIntentFailed, Data: webhook.EventData{Raw: raw}}

		err := service.HandlePaymentIntentFailed(ctx, evt)
		assert.ErrorIs(t, err, domainerrors.ErrAlreadyApplied)
	})
}

func TestHandleChargeRefunded(t *testing.T) {
	ctx := context.Background()

	refundEvent := func() *webhook.Event {
		return &webhook.Event{
			ID:      "evt_3",
			Type:    webhook.EventChargeRefunded,
			Created: 1770000500,
			Data:    webhook.EventData{Raw: []byte(`{"id":"ch_1","payment_intent":{"id":"pi_1"}}`)},
		}
	}

	t.Run("moves a paid order to refunded", func(t *testing.T) {
		orders := new(mockOrderRepository)
		service := NewApplyService(orders, new(mockSubscriptionRepository), zap.NewNop())

		paid := pendingOrder("50.00")
		paid.Status = model.OrderStatusPaid
		evt := refundEvent()

		orders.On("GetByPaymentIntentID", ctx, "pi_1").Return(paid, nil)
		orders.On("MarkRefunded", ctx, "pi_1", evt.CreatedAt()).Return(true, nil)

		err := service.HandleChargeRefunded(ctx, evt)
		require.NoError(t, err)
		orders.AssertExpectations(t)
	})

	t.Run("a refunded order absorbs redelivery", func(t *testing.T) {
		orders := new(mockOrderRepository)
		service := NewApplyService(orders, new(mockSubscriptionRepository), zap.NewNop())

		refunded := pendingOrder("50.00")
		refunded.Status = model.OrderStatusRefunded
		orders.On("GetByPaymentIntentID", ctx, "pi_1").Return(refunded, nil)

		err := service.HandleChargeRefunded(ctx, refundEvent())
		assert.ErrorIs(t, err, domainerrors.ErrAlreadyApplied)
	})

	t.Run("a charge without a payment intent has no reference", func(t *testing.T) {
		service := NewApplyService(new(mockOrderRepository), new(mockSubscriptionRepository), zap.NewNop())

		evt := refundEvent()
		evt.Data.Raw = []byte(`{"id":"ch_1"}`)

		err := service.HandleChargeRefunded(ctx, evt)
		var applyErr *domainerrors.ApplyError
		require.ErrorAs(t, err, &applyErr)
		assert.Equal(t, domainerrors.CodeMissingReference, applyErr.Code)
	})
}

func TestSubscriptionHandlers(t *testing.T) {
	ctx := context.Background()

	subscriptionEvent := func(eventType webhook.EventType, status string) *webhook.Event {
		raw := []byte(`{"id":"sub_1","status":"` + status + `","customer":{"id":"cus_1"},"current_period_start":1770000000,"current_period_end":1772592000,"metadata":{"patient_id":"7bb32f4e-12f5-4f5c-94c2-9f0be393c1a8"}}`)
		return &webhook.Event{
			ID:      "evt_4",
			Type:    eventType,
			Created: 1770000600,
			Data:    webhook.EventData{Raw: raw},
		}
	}

	t.Run("created mirrors the subscription locally", func(t *testing.T) {
		subs := new(mockSubscriptionRepository)
		service := NewApplyService(new(mockOrderRepository), subs, zap.NewNop())

		subs.On("Upsert", ctx, mock.MatchedBy(func(sub *model.Subscription) bool {
			return sub.ProviderSubscriptionID == "sub_1" &&
				sub.ProviderCustomerID == "cus_1" &&
				sub.Status == model.SubscriptionStatusActive &&
				sub.CurrentPeriodStart.Equal(time.Unix(1770000000, 0)) &&
				sub.CurrentPeriodEnd.Equal(time.Unix(1772592000, 0)) &&
				sub.PatientID.String() == "7bb32f4e-12f5-4f5c-94c2-9f0be393c1a8"
		})).Return(nil)

		err := service.HandleSubscriptionCreated(ctx, subscriptionEvent(webhook.EventSubscriptionCreated, "active"))
		require.NoError(t, err)
		subs.AssertExpectations(t)
	})

	t.Run("updated refreshes status and period bounds", func(t *testing.T) {
		subs := new(mockSubscriptionRepository)
		service := NewApplyService(new(mockOrderRepository), subs, zap.NewNop())

		subs.On("UpdateFromProvider", ctx, "sub_1", model.SubscriptionStatusPastDue,
			time.Unix(1770000000, 0), time.Unix(1772592000, 0), mock.Anything).Return(true, nil)

		err := service.HandleSubscriptionUpdated(ctx, subscriptionEvent(webhook.EventSubscriptionUpdated, "past_due"))
		require.NoError(t, err)
		subs.AssertExpectations(t)
	})

	t.Run("updated against an unknown mirror is retryable", func(t *testing.T) {
		subs := new(mockSubscriptionRepository)
		service := NewApplyService(new(mockOrderRepository), subs, zap.NewNop())

		subs.On("UpdateFromProvider", ctx, "sub_1", model.SubscriptionStatusActive,
			mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

		err := service.HandleSubscriptionUpdated(ctx, subscriptionEvent(webhook.EventSubscriptionUpdated, "active"))
		var applyErr *domainerrors.ApplyError
		require.ErrorAs(t, err, &applyErr)
		assert.Equal(t, domainerrors.CodeSubscriptionNotFound, applyErr.Code)
		assert.True(t, applyErr.Retryable)
	})

	t.Run("deleted cancels the mirror once", func(t *testing.T) {
		subs := new(mockSubscriptionRepository)
		service := NewApplyService(new(mockOrderRepository), subs, zap.NewNop())

		evt := subscriptionEvent(webhook.EventSubscriptionDeleted, "canceled")
		subs.On("MarkCanceled", ctx, "sub_1", evt.CreatedAt()).Return(true, nil)

		err := service.HandleSubscriptionDeleted(ctx, evt)
		require.NoError(t, err)
	})

	t.Run("deleted redelivery against a canceled mirror is a no-op", func(t *testing.T) {
		subs := new(mockSubscriptionRepository)
		service := NewApplyService(new(mockOrderRepository), subs, zap.NewNop())

		evt := subscriptionEvent(webhook.EventSubscriptionDeleted, "canceled")
		subs.On("MarkCanceled", ctx, "sub_1", evt.CreatedAt()).Return(false, nil)
		subs.On("GetByProviderID", ctx, "sub_1").Return(&model.Subscription{
			ProviderSubscriptionID: "sub_1",
			Status:                 model.SubscriptionStatusCanceled,
		}, nil)

		err := service.HandleSubscriptionDeleted(ctx, evt)
		assert.ErrorIs(t, err, domainerrors.ErrAlreadyApplied)
	})

	t.Run("deleted for an unknown mirror is not found", func(t *testing.T) {
		subs := new(mockSubscriptionRepository)
		service := NewApplyService(new(mockOrderRepository), subs, zap.NewNop())

		evt := subscriptionEvent(webhook.EventSubscriptionDeleted, "canceled")
		subs.On("MarkCanceled", ctx, "sub_1", evt.CreatedAt()).Return(false, nil)
		subs.On("GetByProviderID", ctx, "sub_1").Return(nil, nil)

		err := service.HandleSubscriptionDeleted(ctx, evt)
		var applyErr *domainerrors.ApplyError
		require.ErrorAs(t, err, &applyErr)
		assert.Equal(t, domainerrors.CodeSubscriptionNotFound, applyErr.Code)
	})
}
