package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/infra/metrics"
)

// RedisDeliveryQueue реализует очередь задач доставки на базе Redis lists.
// Полученная задача перекладывается в processing-список и удаляется из него
// только после подтверждения, поэтому незавершённые задачи не теряются.
type RedisDeliveryQueue struct {
	client        *redis.Client
	key           string
	processingKey string
}

// NewRedisDeliveryQueue создаёт очередь по указанному ключу.
func NewRedisDeliveryQueue(client *redis.Client, key string) *RedisDeliveryQueue {
	return &RedisDeliveryQueue{
		client:        client,
		key:           key,
		processingKey: key + ":processing",
	}
}

// Enqueue публикует задачу в очередь.
func (q *RedisDeliveryQueue) Enqueue(ctx context.Context, job domain.DeliveryJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "enqueue", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RedisDeliveryQueue) Receive(ctx context.Context) (domain.DeliveryJob, domain.DeliveryAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.DeliveryJob{}, nil, err
		}

		payload, err := q.client.BLMove(ctx, q.key, q.processingKey, "RIGHT", "LEFT", time.Second).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.DeliveryJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.DeliveryJob{}, nil, err
		}

		var job domain.DeliveryJob
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			_ = q.client.LRem(context.Background(), q.processingKey, 1, payload).Err()
			return domain.DeliveryJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		return job, q.ackFunc(payload), nil
	}
}

// ackFunc удаляет задачу из processing-списка; при неуспехе возвращает её в очередь.
// Идентификаторы задач уникальны, поэтому LRem по значению удаляет ровно её.
func (q *RedisDeliveryQueue) ackFunc(payload string) domain.DeliveryAckFunc {
	return func(success bool) error {
		ctx := context.Background()
		if success {
			return q.client.LRem(ctx, q.processingKey, 1, payload).Err()
		}
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.processingKey, 1, payload)
		pipe.LPush(ctx, q.key, payload)
		_, err := pipe.Exec(ctx)
		return err
	}
}
