package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/telacare/payment-service/internal/analysis"
)

// AlertPublisher pushes threshold alerts onto a pub/sub channel so paging
// integrations can subscribe without touching this service.
type AlertPublisher interface {
	PublishAlerts(ctx context.Context, alerts []analysis.Alert) error
	Close() error
}

type redisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to redis and verifies the connection with a
// ping before returning.
func NewRedisPublisher(addr, password string, db int, channel string) (AlertPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisPublisher{
		client:  client,
		channel: channel,
	}, nil
}

// PublishAlerts publishes each alert as one JSON message.
func (p *redisPublisher) PublishAlerts(ctx context.Context, alerts []analysis.Alert) error {
	for _, alert := range alerts {
		payload, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("failed to serialize alert: %w", err)
		}
		if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
			return fmt.Errorf("failed to publish alert: %w", err)
		}
	}
	return nil
}

// Close releases the redis connection.
func (p *redisPublisher) Close() error {
	return p.client.Close()
}
