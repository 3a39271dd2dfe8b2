package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telacare/payment-service/internal/domain/model"
	"github.com/telacare/payment-service/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type subscriptionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB, logger *zap.Logger) repository.SubscriptionRepository {
	return &subscriptionRepository{
		db:     db,
		logger: logger,
	}
}

// GetByProviderID retrieves a subscription by its processor reference
func (r *subscriptionRepository) GetByProviderID(ctx context.Context, providerSubscriptionID string) (*model.Subscription, error) {
	var sub model.Subscription

	err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		First(&sub).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get subscription by provider ID",
			zap.String("provider_subscription_id", providerSubscriptionID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// Upsert creates or refreshes the mirror row keyed by the provider id
func (r *subscriptionRepository) Upsert(ctx context.Context, sub *model.Subscription) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider_subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "current_period_start", "current_period_end",
				"provider_data", "updated_at",
			}),
		}).
		Create(sub).Error

	if err != nil {
		r.logger.Error("Failed to upsert subscription",
			zap.String("provider_subscription_id", sub.ProviderSubscriptionID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	return nil
}

// UpdateFromProvider refreshes status, period bounds and raw payload
func (r *subscriptionRepository) UpdateFromProvider(ctx context.Context, providerSubscriptionID string, status model.SubscriptionStatus, periodStart, periodEnd time.Time, data model.JSONB) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		Updates(map[string]interface{}{
			"status":               status,
			"current_period_start": periodStart,
			"current_period_end":   periodEnd,
			"provider_data":        data,
			"updated_at":           time.Now(),
		})

	if result.Error != nil {
		r.logger.Error("Failed to update subscription from provider",
			zap.String("provider_subscription_id", providerSubscriptionID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to update subscription: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// MarkCanceled sets status canceled while the row is not yet canceled
func (r *subscriptionRepository) MarkCanceled(ctx context.Context, providerSubscriptionID string, canceledAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("provider_subscription_id = ? AND status <> ?", providerSubscriptionID, model.SubscriptionStatusCanceled).
		Updates(map[string]interface{}{
			"status":      model.SubscriptionStatusCanceled,
			"canceled_at": &canceledAt,
			"updated_at":  time.Now(),
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark subscription canceled",
			zap.String("provider_subscription_id", providerSubscriptionID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to mark subscription canceled: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// UpdateStatusIf corrects the status only while the observed one still holds
func (r *subscriptionRepository) UpdateStatusIf(ctx context.Context, providerSubscriptionID string, observed, next model.SubscriptionStatus, periodStart, periodEnd time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("provider_subscription_id = ? AND status = ?", providerSubscriptionID, observed).
		Updates(map[string]interface{}{
			"status":               next,
			"current_period_start": periodStart,
			"current_period_end":   periodEnd,
			"updated_at":           time.Now(),
		})

	if result.Error != nil {
		r.logger.Error("Failed to correct subscription status",
			zap.String("provider_subscription_id", providerSubscriptionID),
			zap.String("observed", string(observed)),
			zap.String("next", string(next)),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to correct subscription status: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// ListRecent returns the newest subscription mirrors
func (r *subscriptionRepository) ListRecent(ctx context.Context, limit int) ([]*model.Subscription, error) {
	var subs []*model.Subscription

	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&subs).Error
	if err != nil {
		r.logger.Error("Failed to list subscriptions for reconciliation", zap.Error(err))
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return subs, nil
}
