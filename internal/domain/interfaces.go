package domain

import (
	"context"
	"time"
)

// Gateway выполняет операции Telegram Bot API от имени нужного бота.
// Пустой token означает использование собственного бота системы.
type Gateway interface {
	// GetMembership возвращает роль пользователя в чате.
	GetMembership(ctx context.Context, chatID, tgUserID int64) (MemberRole, error)
	// ResolveChannel находит канал по @username либо числовому идентификатору.
	ResolveChannel(ctx context.Context, ref string) (ChannelRef, error)
	// ValidateCredential проверяет токен бота и возвращает его профиль.
	ValidateCredential(ctx context.Context, token string) (BotProfile, error)
	// SendText отправляет текстовый блок и возвращает идентификатор сообщения.
	SendText(ctx context.Context, token string, chatID int64, text string, entities []MessageEntity, replyTo int64) (int64, error)
	// SendMedia отправляет медиа-блок с подписью и возвращает идентификатор сообщения.
	SendMedia(ctx context.Context, token string, chatID int64, block ContentBlock, replyTo int64) (int64, error)
}

// UserRepo управляет пользователями.
type UserRepo interface {
	// UpsertByTGID регистрирует либо обновляет пользователя и возвращает
	// признак того, что запись была создана этим вызовом.
	UpsertByTGID(profile TelegramProfile) (User, bool, error)
	GetByTGID(tgUserID int64) (User, error)
	GetByID(id int64) (User, error)
}

// ChannelRepo управляет каналами и их администраторами.
type ChannelRepo interface {
	// UpsertChannel регистрирует канал либо обновляет его название и алиас.
	// Владелец выставляется только при первой регистрации.
	UpsertChannel(ref ChannelRef, ownerID int64) (Channel, error)
	GetChannel(id int64) (Channel, error)
	GetChannelByTGChatID(tgChatID int64) (Channel, error)
	ListUserChannels(userID int64) ([]Channel, error)
	AddAdmin(channelID, userID int64) error
	BindCredential(channelID int64, token string) error
	SetTimezone(channelID int64, tz string) error
}

// PostRepo управляет постами.
type PostRepo interface {
	CreatePost(post Post) (Post, error)
	GetPost(id int64) (Post, error)
	// UpdatePostStatus меняет статус и причину отказа. Пустая причина затирает прежнюю.
	UpdatePostStatus(id int64, status PostStatus, failReason string) error
	// AppendDeliveredID дописывает идентификатор доставленного сообщения.
	AppendDeliveredID(postID, tgMessageID int64) error
	MarkPostSent(id int64, sentAt time.Time) error
	ListScheduledByAuthor(authorID int64) ([]Post, error)
	CountPostsByStatus() (map[PostStatus]int, error)
}

// ScheduleRepo управляет записями расписания.
type ScheduleRepo interface {
	CreateEntry(entry ScheduleEntry) error
	GetEntry(postID int64) (ScheduleEntry, error)
	// ListDue возвращает pending-записи со сроком не позже now.
	ListDue(now time.Time, limit int) ([]ScheduleEntry, error)
	// ClaimEntry атомарно переводит запись из from в to и возвращает true,
	// если перевод выполнен этим вызовом. При конкурентном проигрыше — false без ошибки.
	ClaimEntry(postID int64, from, to ScheduleStatus) (bool, error)
}

// SessionStore хранит сессии создания постов, по одной на пользователя.
type SessionStore interface {
	Get(tgUserID int64) (ComposerSession, bool)
	Put(session ComposerSession)
	Delete(tgUserID int64)
}

// ReplyStore хранит ожидающие ответы, по одному на пользователя.
type ReplyStore interface {
	PutReply(thread ReplyThread)
	GetReply(tgUserID int64) (ReplyThread, bool)
	// TakeReply возвращает и удаляет ожидающий ответ пользователя.
	TakeReply(tgUserID int64) (ReplyThread, bool)
	DeleteReply(tgUserID int64)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
