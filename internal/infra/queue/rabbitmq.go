package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/infra/metrics"
)

// RabbitDeliveryQueue реализует очередь задач доставки через AMQP.
type RabbitDeliveryQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

// NewRabbitDeliveryQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitDeliveryQueue(amqpURL, queueName string) (*RabbitDeliveryQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queueName == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &RabbitDeliveryQueue{conn: conn, ch: ch, queue: queueName}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitDeliveryQueue) Enqueue(ctx context.Context, job domain.DeliveryJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Подтверждение выполняется вручную:
// ack(true) удаляет задачу, ack(false) возвращает её в очередь.
func (q *RabbitDeliveryQueue) Receive(ctx context.Context) (domain.DeliveryJob, domain.DeliveryAckFunc, error) {
	deliveries, err := q.consume(ctx)
	if err != nil {
		return domain.DeliveryJob{}, nil, err
	}

	select {
	case <-ctx.Done():
		return domain.DeliveryJob{}, nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			return domain.DeliveryJob{}, nil, errors.New("rabbitmq: consume channel closed")
		}
		var job domain.DeliveryJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			_ = d.Nack(false, false)
			return domain.DeliveryJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return d.Ack(false)
			}
			return d.Nack(false, true)
		}
		return job, ack, nil
	}
}

func (q *RabbitDeliveryQueue) consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("start consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает канал и соединение с брокером.
func (q *RabbitDeliveryQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
