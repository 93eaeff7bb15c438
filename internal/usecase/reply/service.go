package reply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/infra/metrics"
)

// ErrNoPending возвращается, когда у пользователя нет ожидающего ответа.
var ErrNoPending = errors.New("нет ожидающего ответа")

// Sender отправляет один блок в канал от имени привязанного бота.
type Sender interface {
	SendSingle(ctx context.Context, channelID int64, block domain.ContentBlock, replyTo int64) (int64, error)
}

// Service ведёт короткий диалог ответа на сообщение канала: запоминает,
// на что отвечает пользователь, и отправляет следующий присланный блок
// как ответ. Пост при этом не создаётся.
type Service struct {
	replies  domain.ReplyStore
	users    domain.UserRepo
	channels domain.ChannelRepo
	sender   Sender
	audit    domain.AuditRepo
}

// NewService создаёт сервис ответов.
func NewService(replies domain.ReplyStore, users domain.UserRepo, channels domain.ChannelRepo, sender Sender, audit domain.AuditRepo) *Service {
	return &Service{replies: replies, users: users, channels: channels, sender: sender, audit: audit}
}

// BeginReply запоминает намерение ответить на сообщение канала.
// Прежнее намерение пользователя затирается.
func (s *Service) BeginReply(ctx context.Context, tgUserID, channelID, messageID int64) (domain.Channel, error) {
	user, err := s.users.GetByTGID(tgUserID)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("получение пользователя: %w", err)
	}
	channel, err := s.channels.GetChannel(channelID)
	if err != nil {
		return domain.Channel{}, err
	}
	if !channel.HasAdmin(user.ID) {
		return domain.Channel{}, domain.ErrUnauthorized
	}
	s.replies.PutReply(domain.ReplyThread{
		TGUserID:  tgUserID,
		ChannelID: channelID,
		MessageID: messageID,
		CreatedAt: time.Now().UTC(),
	})
	return channel, nil
}

// Pending сообщает, ждёт ли сервис блок ответа от пользователя.
func (s *Service) Pending(tgUserID int64) bool {
	_, ok := s.replies.GetReply(tgUserID)
	return ok
}

// ResolveReply отправляет блок как ответ на сохранённое сообщение канала.
// При сбое отправки намерение сохраняется, чтобы пользователь повторил попытку.
func (s *Service) ResolveReply(ctx context.Context, tgUserID int64, block domain.ContentBlock) (int64, error) {
	thread, ok := s.replies.TakeReply(tgUserID)
	if !ok {
		return 0, ErrNoPending
	}
	user, err := s.users.GetByTGID(tgUserID)
	if err != nil {
		s.replies.PutReply(thread)
		return 0, fmt.Errorf("получение пользователя: %w", err)
	}

	msgID, err := s.sender.SendSingle(ctx, thread.ChannelID, block, thread.MessageID)
	if err != nil {
		s.replies.PutReply(thread)
		return 0, fmt.Errorf("отправка ответа: %w", err)
	}

	userID := user.ID
	channelID := thread.ChannelID
	_ = s.audit.RecordAuditEvent(ctx, domain.AuditEvent{
		Event:     domain.AuditEventReplySent,
		UserID:    &userID,
		ChannelID: &channelID,
		Metadata:  map[string]any{"reply_to": thread.MessageID, "message_id": msgID},
	})
	metrics.IncReplySent()
	return msgID, nil
}

// CancelReply отбрасывает намерение ответить.
func (s *Service) CancelReply(tgUserID int64) {
	s.replies.DeleteReply(tgUserID)
}
