package database

import (
	adapter "github.com/telacare/payment-service/internal/adapter/repository"
	"github.com/telacare/payment-service/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repositories bundles the store adapters wired onto one connection pool.
type Repositories struct {
	Order        repository.OrderRepository
	Subscription repository.SubscriptionRepository
	WebhookEvent repository.WebhookEventRepository
}

// NewRepositories creates all repositories over the given connection.
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Order:        adapter.NewOrderRepository(db, logger),
		Subscription: adapter.NewSubscriptionRepository(db, logger),
		WebhookEvent: adapter.NewWebhookEventRepository(db, logger),
	}
}
