package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus mirrors the processor's subscription lifecycle states.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
)

// SubscriptionStatusFromProvider maps a raw processor status string to the
// local enum. Unknown states are preserved verbatim rather than guessed at;
// ok reports whether the value is one of the known states.
func SubscriptionStatusFromProvider(raw string) (SubscriptionStatus, bool) {
	switch SubscriptionStatus(raw) {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue,
		SubscriptionStatusCanceled, SubscriptionStatusUnpaid, SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired:
		return SubscriptionStatus(raw), true
	default:
		return SubscriptionStatus(raw), false
	}
}

// Scan implements sql.Scanner interface
func (s *SubscriptionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = SubscriptionStatus(v)
	case []byte:
		*s = SubscriptionStatus(v)
	default:
		*s = SubscriptionStatusIncomplete
	}
	return nil
}

// Value implements driver.Valuer interface
func (s SubscriptionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Subscription mirrors a processor subscription for a patient.
type Subscription struct {
	ID                     int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	PatientID              uuid.UUID          `gorm:"type:uuid;not null;index" json:"patient_id"`
	ProviderSubscriptionID string             `gorm:"unique;not null;size:100" json:"provider_subscription_id"`
	ProviderCustomerID     string             `gorm:"size:100;index" json:"provider_customer_id"`
	Status                 SubscriptionStatus `gorm:"size:30;not null;default:'incomplete';index" json:"status"`
	CurrentPeriodStart     time.Time          `json:"current_period_start"`
	CurrentPeriodEnd       time.Time          `json:"current_period_end"`
	CanceledAt             *time.Time         `json:"canceled_at,omitempty"`
	ProviderData           JSONB              `gorm:"type:jsonb" json:"provider_data,omitempty"`
	CreatedAt              time.Time          `gorm:"default:now()" json:"created_at"`
	UpdatedAt              time.Time          `gorm:"default:now()" json:"updated_at"`
}

// JSONB represents a JSONB database type
type JSONB map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONB) Scan(src interface{}) error {
	if src == nil {
		*j = nil
		return nil
	}

	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		*j = make(JSONB)
		return nil
	}
}

// TableName specifies the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}
