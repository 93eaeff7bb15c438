package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/infra/metrics"
)

// ErrNoCredential возвращается, когда к каналу не привязан бот для отправки.
var ErrNoCredential = errors.New("к каналу не привязан бот")

const maxBackoff = 30 * time.Second

// Service доставляет блоки поста в канал по порядку. Каждый доставленный
// блок фиксируется до отправки следующего, поэтому обрыв всегда оставляет
// согласованный префикс и повторная доставка продолжает с него.
type Service struct {
	posts       domain.PostRepo
	channels    domain.ChannelRepo
	gateway     domain.Gateway
	audit       domain.AuditRepo
	maxAttempts int
	retryBase   time.Duration
}

// NewService создаёт диспетчер доставки.
func NewService(posts domain.PostRepo, channels domain.ChannelRepo, gateway domain.Gateway, audit domain.AuditRepo, maxAttempts int, retryBase time.Duration) *Service {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Service{
		posts:       posts,
		channels:    channels,
		gateway:     gateway,
		audit:       audit,
		maxAttempts: maxAttempts,
		retryBase:   retryBase,
	}
}

// Deliver отправляет недоставленные блоки поста. Итог отправки возвращается
// статусом поста; ошибка означает сбой инфраструктуры, при котором задачу
// нужно повторить.
func (s *Service) Deliver(ctx context.Context, postID int64) (domain.Post, error) {
	post, err := s.posts.GetPost(postID)
	if err != nil {
		return domain.Post{}, fmt.Errorf("чтение поста: %w", err)
	}
	switch post.Status {
	case domain.PostStatusSent, domain.PostStatusCancelled:
		return post, nil
	}

	channel, err := s.channels.GetChannel(post.ChannelID)
	if err != nil {
		return post, fmt.Errorf("чтение канала: %w", err)
	}
	if channel.BotToken == "" {
		return s.fail(ctx, post, ErrNoCredential.Error())
	}

	if post.Status != domain.PostStatusSending {
		if err := s.posts.UpdatePostStatus(post.ID, domain.PostStatusSending, ""); err != nil {
			return post, fmt.Errorf("перевод поста в отправку: %w", err)
		}
		post.Status = domain.PostStatusSending
	}

	started := time.Now()
	for i := len(post.DeliveredIDs); i < len(post.Blocks); i++ {
		msgID, sendErr := s.sendBlockWithRetry(ctx, channel.BotToken, channel.TGChatID, post.Blocks[i], 0)
		if sendErr != nil {
			if ctx.Err() != nil {
				return post, ctx.Err()
			}
			reason := fmt.Sprintf("блок %d: %v", i+1, sendErr)
			if len(post.DeliveredIDs) > 0 {
				return s.interrupt(ctx, post, domain.PostStatusPartial, reason)
			}
			return s.interrupt(ctx, post, domain.PostStatusFailed, reason)
		}
		if err := s.posts.AppendDeliveredID(post.ID, msgID); err != nil {
			return post, fmt.Errorf("фиксация блока %d: %w", i+1, err)
		}
		post.DeliveredIDs = append(post.DeliveredIDs, msgID)
		metrics.BlocksDeliveredTotal.Inc()
	}

	sentAt := time.Now().UTC()
	if err := s.posts.MarkPostSent(post.ID, sentAt); err != nil {
		return post, fmt.Errorf("пометка поста отправленным: %w", err)
	}
	post.Status = domain.PostStatusSent
	post.SentAt = &sentAt

	pid := post.ID
	chID := post.ChannelID
	_ = s.audit.RecordAuditEvent(ctx, domain.AuditEvent{
		Event:     domain.AuditEventPostSent,
		ChannelID: &chID,
		PostID:    &pid,
		Metadata:  map[string]any{"blocks": len(post.Blocks)},
	})
	metrics.IncPostSent(post.ChannelID)
	metrics.PostDeliverSeconds.Observe(time.Since(started).Seconds())
	return post, nil
}

// SendSingle отправляет один блок в канал от имени привязанного бота.
// replyTo больше нуля делает сообщение ответом на сообщение канала.
func (s *Service) SendSingle(ctx context.Context, channelID int64, block domain.ContentBlock, replyTo int64) (int64, error) {
	channel, err := s.channels.GetChannel(channelID)
	if err != nil {
		return 0, fmt.Errorf("чтение канала: %w", err)
	}
	if channel.BotToken == "" {
		return 0, ErrNoCredential
	}
	return s.sendBlockWithRetry(ctx, channel.BotToken, channel.TGChatID, block, replyTo)
}

// Abandon помечает пост, задача доставки которого исчерпала повторы.
// Доставленный префикс сохраняется: пост становится partially_sent либо
// failed. Посты в терминальном статусе не меняются.
func (s *Service) Abandon(ctx context.Context, postID int64, reason string) (domain.Post, error) {
	post, err := s.posts.GetPost(postID)
	if err != nil {
		return domain.Post{}, fmt.Errorf("чтение поста: %w", err)
	}
	switch post.Status {
	case domain.PostStatusSent, domain.PostStatusCancelled, domain.PostStatusFailed, domain.PostStatusPartial:
		return post, nil
	}
	if len(post.DeliveredIDs) > 0 {
		return s.interrupt(ctx, post, domain.PostStatusPartial, reason)
	}
	return s.interrupt(ctx, post, domain.PostStatusFailed, reason)
}

func (s *Service) fail(ctx context.Context, post domain.Post, reason string) (domain.Post, error) {
	return s.interrupt(ctx, post, domain.PostStatusFailed, reason)
}

func (s *Service) interrupt(ctx context.Context, post domain.Post, status domain.PostStatus, reason string) (domain.Post, error) {
	if err := s.posts.UpdatePostStatus(post.ID, status, reason); err != nil {
		return post, fmt.Errorf("пометка поста: %w", err)
	}
	post.Status = status
	post.FailReason = reason

	pid := post.ID
	chID := post.ChannelID
	_ = s.audit.RecordAuditEvent(ctx, domain.AuditEvent{
		Event:     domain.AuditEventPostFailed,
		ChannelID: &chID,
		PostID:    &pid,
		Metadata:  map[string]any{"reason": reason, "delivered": len(post.DeliveredIDs)},
	})
	metrics.IncPostFailed()
	return post, nil
}

// sendBlockWithRetry повторяет отправку при временных сбоях транспорта
// с экспоненциальной паузой. Постоянные ошибки прерывают попытки сразу.
func (s *Service) sendBlockWithRetry(ctx context.Context, token string, chatID int64, block domain.ContentBlock, replyTo int64) (int64, error) {
	backoff := s.retryBase
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		msgID, err := s.sendBlock(ctx, token, chatID, block, replyTo)
		if err == nil {
			return msgID, nil
		}
		lastErr = err
		if !domain.IsTransientTransport(err) {
			return 0, err
		}
		if attempt == s.maxAttempts {
			break
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
	return 0, fmt.Errorf("попытки исчерпаны: %w", lastErr)
}

func (s *Service) sendBlock(ctx context.Context, token string, chatID int64, block domain.ContentBlock, replyTo int64) (int64, error) {
	if block.Kind == domain.BlockText {
		return s.gateway.SendText(ctx, token, chatID, block.Text, block.Entities, replyTo)
	}
	return s.gateway.SendMedia(ctx, token, chatID, block, replyTo)
}
