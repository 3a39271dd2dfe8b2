package usecase

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v79"
	"github.com/telacare/payment-service/internal/domain/model"
)

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) GetByRef(ctx context.Context, orderRef string) (*model.Order, error) {
	args := m.Called(ctx, orderRef)
	if order := args.Get(0); order != nil {
		return order.(*model.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.Order, error) {
	args := m.Called(ctx, paymentIntentID)
	if order := args.Get(0); order != nil {
		return order.(*model.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderRepository) MarkPaid(ctx context.Context, orderRef, paymentIntentID string, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, orderRef, paymentIntentID, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderRepository) MarkFailed(ctx context.Context, orderRef string, failureCode, failureMessage *string) (bool, error) {
	args := m.Called(ctx, orderRef, failureCode, failureMessage)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderRepository) MarkRefunded(ctx context.Context, paymentIntentID string, refundedAt time.Time) (bool, error) {
	args := m.Called(ctx, paymentIntentID, refundedAt)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderRepository) UpdateStatusIf(ctx context.Context, id int64, observed, next model.OrderStatus, paidAt *time.Time) (bool, error) {
	args := m.Called(ctx, id, observed, next, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderRepository) ListRecentWithPaymentIntent(ctx context.Context, limit int) ([]*model.Order, error) {
	args := m.Called(ctx, limit)
	if orders := args.Get(0); orders != nil {
		return orders.([]*model.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSubscriptionRepository struct {
	mock.Mock
}

func (m *mockSubscriptionRepository) GetByProviderID(ctx context.Context, providerSubscriptionID string) (*model.Subscription, error) {
	args := m.Called(ctx, providerSubscriptionID)
	if sub := args.Get(0); sub != nil {
		return sub.(*model.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubscriptionRepository) Upsert(ctx context.Context, sub *model.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *mockSubscriptionRepository) UpdateFromProvider(ctx context.Context, providerSubscriptionID string, status model.SubscriptionStatus, periodStart, periodEnd time.Time, data model.JSONB) (bool, error) {
	args := m.Called(ctx, providerSubscriptionID, status, periodStart, periodEnd, data)
	return args.Bool(0), args.Error(1)
}

func (m *mockSubscriptionRepository) MarkCanceled(ctx context.Context, providerSubscriptionID string, canceledAt time.Time) (bool, error) {
	args := m.Called(ctx, providerSubscriptionID, canceledAt)
	return args.Bool(0), args.Error(1)
}

func (m *mockSubscriptionRepository) UpdateStatusIf(ctx context.Context, providerSubscriptionID string, observed, next model.SubscriptionStatus, periodStart, periodEnd time.Time) (bool, error) {
	args := m.Called(ctx, providerSubscriptionID, observed, next, periodStart, periodEnd)
	return args.Bool(0), args.Error(1)
}

func (m *mockSubscriptionRepository) ListRecent(ctx context.Context, limit int) ([]*model.Subscription, error) {
	args := m.Called(ctx, limit)
	if subs := args.Get(0); subs != nil {
		return subs.([]*model.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockProcessorClient struct {
	mock.Mock
}

func (m *mockProcessorClient) RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	args := m.Called(ctx, id)
	if pi := args.Get(0); pi != nil {
		return pi.(*stripe.PaymentIntent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProcessorClient) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	args := m.Called(ctx, id)
	if sub := args.Get(0); sub != nil {
		return sub.(*stripe.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}
