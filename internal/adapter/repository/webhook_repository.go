package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/telacare/payment-service/internal/domain/model"
	"github.com/telacare/payment-service/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookEventRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookEventRepository creates a new webhook receipt repository
func NewWebhookEventRepository(db *gorm.DB, logger *zap.Logger) repository.WebhookEventRepository {
	return &webhookEventRepository{
		db:     db,
		logger: logger,
	}
}

// SaveReceipt inserts a receipt for a delivered event. Duplicate deliveries
// hit the unique provider event id and are absorbed with ON CONFLICT DO
// NOTHING; created is false in that case.
func (r *webhookEventRepository) SaveReceipt(ctx context.Context, eventID, eventType string, livemode bool, data json.RawMessage) (bool, error) {
	var eventData map[string]interface{}
	if err := json.Unmarshal(data, &eventData); err != nil {
		r.logger.Warn("Failed to parse event data for receipt",
			zap.String("event_id", eventID),
			zap.Error(err))
	}

	var providerCreatedAt *time.Time
	if created, ok := eventData["created"].(float64); ok {
		t := time.Unix(int64(created), 0)
		providerCreatedAt = &t
	}

	event := &model.WebhookEvent{
		ProviderEventID:   eventID,
		EventType:         eventType,
		Status:            model.WebhookStatusPending,
		Livemode:          livemode,
		Data:              model.JSONB(eventData),
		ProviderCreatedAt: providerCreatedAt,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)

	if result.Error != nil {
		r.logger.Error("Failed to save webhook receipt",
			zap.String("event_id", eventID),
			zap.String("event_type", eventType),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to save webhook receipt: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// MarkProcessed records the final disposition of a handled event
func (r *webhookEventRepository) MarkProcessed(ctx context.Context, eventID string, status model.WebhookStatus) error {
	now := time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("provider_event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":       status,
			"processed_at": &now,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark webhook receipt processed",
			zap.String("event_id", eventID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark webhook receipt processed: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook receipt not found: %s", eventID)
	}

	return nil
}

// MarkFailed records a processing failure for the event
func (r *webhookEventRepository) MarkFailed(ctx context.Context, eventID string, procErr error) error {
	errorMsg := procErr.Error()

	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("provider_event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":     model.WebhookStatusFailed,
			"last_error": &errorMsg,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark webhook receipt failed",
			zap.String("event_id", eventID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark webhook receipt failed: %w", result.Error)
	}

	return nil
}

// ListRecent returns the newest receipts
func (r *webhookEventRepository) ListRecent(ctx context.Context, limit int) ([]*model.WebhookEvent, error) {
	var events []*model.WebhookEvent

	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&events).Error
	if err != nil {
		r.logger.Error("Failed to list webhook receipts", zap.Error(err))
		return nil, fmt.Errorf("failed to list webhook receipts: %w", err)
	}

	return events, nil
}
