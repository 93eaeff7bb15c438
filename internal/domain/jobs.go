package domain

import (
	"context"
	"time"
)

// DeliveryCause описывает источник задачи доставки.
type DeliveryCause string

const (
	// DeliveryCauseManual — автор нажал «отправить сейчас».
	DeliveryCauseManual DeliveryCause = "manual"
	// DeliveryCauseScheduled — сработала запись расписания.
	DeliveryCauseScheduled DeliveryCause = "scheduled"
)

// DeliveryJob содержит задачу на доставку поста в канал.
type DeliveryJob struct {
	ID           string        `json:"job_id"`
	PostID       int64         `json:"post_id"`
	Cause        DeliveryCause `json:"cause"`
	NotifyChatID int64         `json:"notify_chat_id,omitempty"`
	EnqueuedAt   time.Time     `json:"enqueued_at"`
}

// DeliveryQueue описывает очередь задач доставки.
type DeliveryQueue interface {
	Enqueue(ctx context.Context, job DeliveryJob) error
	Receive(ctx context.Context) (DeliveryJob, DeliveryAckFunc, error)
}

// DeliveryAckFunc подтверждает обработку либо возвращает задачу в очередь.
type DeliveryAckFunc func(success bool) error

// DeliveryJobStatusRepo отвечает за идемпотентность обработки задач доставки.
type DeliveryJobStatusRepo interface {
	// EnsureDeliveryJob регистрирует попытку обработки и возвращает признак
	// завершённости задачи и номер текущей попытки.
	EnsureDeliveryJob(jobID string) (completed bool, attempt int, err error)
	// MarkDeliveryJobDone помечает задачу как окончательно обработанную.
	MarkDeliveryJobDone(jobID string) error
}
