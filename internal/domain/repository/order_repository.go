package repository

import (
	"context"
	"time"

	"github.com/telacare/payment-service/internal/domain/model"
)

// OrderRepository persists orders. The Mark* methods are single conditional
// updates: the status check and the write happen in one statement so two
// concurrent deliveries of the same event cannot both pass the guard. They
// return false (and no error) when the guard matched zero rows.
type OrderRepository interface {
	GetByRef(ctx context.Context, orderRef string) (*model.Order, error)
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.Order, error)

	// MarkPaid transitions a non-terminal order to paid and stamps the
	// payment intent reference and paid time.
	MarkPaid(ctx context.Context, orderRef, paymentIntentID string, paidAt time.Time) (bool, error)

	// MarkFailed transitions a non-terminal order to failed with the
	// processor's failure code/message.
	MarkFailed(ctx context.Context, orderRef string, failureCode, failureMessage *string) (bool, error)

	// MarkRefunded transitions a paid order to refunded.
	MarkRefunded(ctx context.Context, paymentIntentID string, refundedAt time.Time) (bool, error)

	// UpdateStatusIf sets the order's status only while it still has the
	// observed one; used by reconciliation so a concurrent webhook wins.
	UpdateStatusIf(ctx context.Context, id int64, observed, next model.OrderStatus, paidAt *time.Time) (bool, error)

	// ListRecentWithPaymentIntent returns the newest orders that carry a
	// processor reference, for reconciliation.
	ListRecentWithPaymentIntent(ctx context.Context, limit int) ([]*model.Order, error)
}
