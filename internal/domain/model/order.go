package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the payment status of an order
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusFailed   OrderStatus = "failed"
	OrderStatusRefunded OrderStatus = "refunded"
)

// TerminalOrderStatuses are the states an order never leaves through the
// webhook path. Duplicate event delivery against a terminal order is a no-op.
var TerminalOrderStatuses = []OrderStatus{
	OrderStatusPaid,
	OrderStatusFailed,
	OrderStatusRefunded,
}

// IsTerminal reports whether the status blocks further webhook transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed || s == OrderStatusRefunded
}

// Scan implements sql.Scanner interface
func (s *OrderStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = OrderStatus(v)
	case []byte:
		*s = OrderStatus(v)
	default:
		*s = OrderStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s OrderStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Order represents a billable order created by the checkout flow and settled
// through payment webhooks or reconciliation.
type Order struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderRef        string          `gorm:"unique;not null;size:100;index" json:"order_ref"`
	PatientID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"patient_id"`
	Status          OrderStatus     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Total           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Currency        string          `gorm:"size:3;default:'USD'" json:"currency"`
	PaymentIntentID *string         `gorm:"column:payment_intent_id;unique;size:100" json:"payment_intent_id,omitempty"`
	FailureCode     *string         `gorm:"size:100" json:"failure_code,omitempty"`
	FailureMessage  *string         `json:"failure_message,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	RefundedAt      *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt       time.Time       `gorm:"default:now()" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"default:now()" json:"updated_at"`
}

// TotalMinorUnits returns the order total in minor currency units (cents).
// Webhook amounts arrive in minor units and must match exactly.
func (o *Order) TotalMinorUnits() int64 {
	return o.Total.Mul(decimal.NewFromInt(100)).IntPart()
}

// TableName specifies the table name for GORM
func (Order) TableName() string {
	return "orders"
}
