package domain

import (
	"context"
	"time"
)

// AuditEvent описывает событие жизненного цикла, которое сохраняется для последующего анализа.
type AuditEvent struct {
	Event      string
	UserID     *int64
	ChannelID  *int64
	PostID     *int64
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// AuditEventUserRegistered фиксирует регистрацию нового пользователя.
	AuditEventUserRegistered = "user_registered"
	// AuditEventChannelClaimed фиксирует регистрацию канала администратором.
	AuditEventChannelClaimed = "channel_claimed"
	// AuditEventCredentialBound фиксирует привязку бота к каналу.
	AuditEventCredentialBound = "credential_bound"
	// AuditEventPostScheduled фиксирует постановку поста в расписание.
	AuditEventPostScheduled = "post_scheduled"
	// AuditEventPostSent фиксирует полную доставку поста в канал.
	AuditEventPostSent = "post_sent"
	// AuditEventPostFailed фиксирует отказ доставки поста.
	AuditEventPostFailed = "post_failed"
	// AuditEventScheduleFired фиксирует срабатывание записи расписания.
	AuditEventScheduleFired = "schedule_fired"
	// AuditEventScheduleMissed фиксирует пропуск записи сверх допустимого окна.
	AuditEventScheduleMissed = "schedule_missed"
	// AuditEventReplySent фиксирует отправленный ответ на сообщение канала.
	AuditEventReplySent = "reply_sent"
)

// AuditRepo сохраняет события жизненного цикла.
type AuditRepo interface {
	RecordAuditEvent(ctx context.Context, event AuditEvent) error
}
