package repository

import (
	"context"
	"encoding/json"

	"github.com/telacare/payment-service/internal/domain/model"
)

// WebhookEventRepository stores receipts of delivered events.
type WebhookEventRepository interface {
	// SaveReceipt inserts a receipt keyed by the provider event id.
	// Duplicate deliveries are absorbed with ON CONFLICT DO NOTHING;
	// created reports whether this delivery was the first.
	SaveReceipt(ctx context.Context, eventID, eventType string, livemode bool, data json.RawMessage) (created bool, err error)

	// MarkProcessed records the final disposition of a handled event.
	MarkProcessed(ctx context.Context, eventID string, status model.WebhookStatus) error

	// MarkFailed records a processing failure for the event.
	MarkFailed(ctx context.Context, eventID string, procErr error) error

	// ListRecent returns the newest receipts for the operator endpoint.
	ListRecent(ctx context.Context, limit int) ([]*model.WebhookEvent, error)
}
