package webhook

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType tags the processor event envelope.
type EventType string

// Handled event types. Anything else is acknowledged and ignored.
const (
	EventPaymentIntentSucceeded EventType = "payment_intent.succeeded"
	EventPaymentIntentFailed    EventType = "payment_intent.payment_failed"
	EventChargeRefunded         EventType = "charge.refunded"
	EventSubscriptionCreated    EventType = "customer.subscription.created"
	EventSubscriptionUpdated    EventType = "customer.subscription.updated"
	EventSubscriptionDeleted    EventType = "customer.subscription.deleted"
)

// EventData carries the type-dependent payload object.
type EventData struct {
	Raw json.RawMessage `json:"object"`
}

// Event is the processor's event envelope. Immutable once parsed; the raw
// payload is interpreted per event type by the handlers.
type Event struct {
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	Created  int64     `json:"created"`
	Livemode bool      `json:"livemode"`
	Data     EventData `json:"data"`
}

// CreatedAt returns the envelope creation time.
func (e *Event) CreatedAt() time.Time {
	return time.Unix(e.Created, 0)
}

// ParseEvent decodes a raw event envelope.
func ParseEvent(rawBody []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return nil, fmt.Errorf("failed to parse event envelope: %w", err)
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, fmt.Errorf("event envelope missing id or type")
	}
	return &evt, nil
}
