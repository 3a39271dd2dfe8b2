package database

import (
	"fmt"

	"github.com/telacare/payment-service/internal/domain/model"
	"gorm.io/gorm"
)

// Migrate applies the schema for all persisted models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Order{},
		&model.Subscription{},
		&model.WebhookEvent{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
