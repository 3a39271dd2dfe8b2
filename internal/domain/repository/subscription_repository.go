package repository

import (
	"context"
	"time"

	"github.com/telacare/payment-service/internal/domain/model"
)

// SubscriptionRepository persists processor subscription mirrors.
type SubscriptionRepository interface {
	GetByProviderID(ctx context.Context, providerSubscriptionID string) (*model.Subscription, error)

	// Upsert creates the mirror row or refreshes it when the provider id
	// already exists; duplicate created events are therefore no-ops.
	Upsert(ctx context.Context, sub *model.Subscription) error

	// UpdateFromProvider refreshes status, period bounds and raw payload.
	// Returns false when no row matches the provider id.
	UpdateFromProvider(ctx context.Context, providerSubscriptionID string, status model.SubscriptionStatus, periodStart, periodEnd time.Time, data model.JSONB) (bool, error)

	// MarkCanceled sets status canceled while the row is not yet canceled.
	MarkCanceled(ctx context.Context, providerSubscriptionID string, canceledAt time.Time) (bool, error)

	// UpdateStatusIf corrects the status only while the observed one still
	// holds; used by reconciliation.
	UpdateStatusIf(ctx context.Context, providerSubscriptionID string, observed, next model.SubscriptionStatus, periodStart, periodEnd time.Time) (bool, error)

	// ListRecent returns the newest subscription mirrors for reconciliation.
	ListRecent(ctx context.Context, limit int) ([]*model.Subscription, error)
}
