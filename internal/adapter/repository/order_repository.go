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
)

type orderRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB, logger *zap.Logger) repository.OrderRepository {
	return &orderRepository{
		db:     db,
		logger: logger,
	}
}

// GetByRef retrieves an order by its checkout reference
func (r *orderRepository) GetByRef(ctx context.Context, orderRef string) (*model.Order, error) {
	var order model.Order

	err := r.db.WithContext(ctx).
		Where("order_ref = ?", orderRef).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get order by ref",
			zap.String("order_ref", orderRef),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return &order, nil
}

// GetByPaymentIntentID retrieves an order by its processor reference
func (r *orderRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.Order, error) {
	var order model.Order

	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get order by payment intent",
			zap.String("payment_intent_id", paymentIntentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return &order, nil
}

// MarkPaid transitions a non-terminal order to paid. The status guard and
// the write are one statement, so concurrent duplicate deliveries race on
// the database row, not on application state.
func (r *orderRepository) MarkPaid(ctx context.Context, orderRef, paymentIntentID string, paidAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_ref = ? AND status NOT IN ?", orderRef, model.TerminalOrderStatuses).
		Updates(map[string]interface{}{
			"status":            model.OrderStatusPaid,
			"payment_intent_id": paymentIntentID,
			"paid_at":           &paidAt,
			"updated_at":        time.Now(),
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark order paid",
			zap.String("order_ref", orderRef),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to mark order paid: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// MarkFailed transitions a non-terminal order to failed
func (r *orderRepository) MarkFailed(ctx context.Context, orderRef string, failureCode, failureMessage *string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_ref = ? AND status NOT IN ?", orderRef, model.TerminalOrderStatuses).
		Updates(map[string]interface{}{
			"status":          model.OrderStatusFailed,
			"failure_code":    failureCode,
			"failure_message": failureMessage,
			"updated_at":      time.Now(),
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark order failed",
			zap.String("order_ref", orderRef),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to mark order failed: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// MarkRefunded transitions a paid order to refunded
func (r *orderRepository) MarkRefunded(ctx context.Context, paymentIntentID string, refundedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("payment_intent_id = ? AND status = ?", paymentIntentID, model.OrderStatusPaid).
		Updates(map[string]interface{}{
			"status":      model.OrderStatusRefunded,
			"refunded_at": &refundedAt,
			"updated_at":  time.Now(),
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark order refunded",
			zap.String("payment_intent_id", paymentIntentID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to mark order refunded: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// UpdateStatusIf corrects the status only while the observed one still holds
func (r *orderRepository) UpdateStatusIf(ctx context.Context, id int64, observed, next model.OrderStatus, paidAt *time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     next,
		"updated_at": time.Now(),
	}
	if paidAt != nil {
		updates["paid_at"] = paidAt
	}

	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", id, observed).
		Updates(updates)

	if result.Error != nil {
		r.logger.Error("Failed to correct order status",
			zap.Int64("order_id", id),
			zap.String("observed", string(observed)),
			zap.String("next", string(next)),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to correct order status: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// ListRecentWithPaymentIntent returns the newest orders holding a processor reference
func (r *orderRepository) ListRecentWithPaymentIntent(ctx context.Context, limit int) ([]*model.Order, error) {
	var orders []*model.Order

	query := r.db.WithContext(ctx).
		Where("payment_intent_id IS NOT NULL").
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&orders).Error
	if err != nil {
		r.logger.Error("Failed to list orders for reconciliation", zap.Error(err))
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return orders, nil
}
