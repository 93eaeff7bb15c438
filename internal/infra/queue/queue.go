package queue

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/infra/config"
)

// NewFromConfig выбирает реализацию очереди: при заданном RABBITMQ_URL
// используется AMQP, иначе Redis lists.
func NewFromConfig(cfg config.AppConfig) (domain.DeliveryQueue, error) {
	if cfg.RabbitURL != "" {
		return NewRabbitDeliveryQueue(cfg.RabbitURL, cfg.Queues.Delivery)
	}
	if cfg.RedisAddr == "" {
		return nil, errors.New("не задан ни RABBITMQ_URL, ни REDIS_ADDR")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return NewRedisDeliveryQueue(client, cfg.Queues.Delivery), nil
}
