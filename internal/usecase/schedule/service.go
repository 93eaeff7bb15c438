package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/infra/metrics"
)

// ErrAlreadyFired возвращается при попытке отменить уже сработавшую запись.
var ErrAlreadyFired = fmt.Errorf("расписание уже сработало: %w", domain.ErrConflict)

// Service обходит записи расписания и переводит их в терминальные состояния.
// Захват записи атомарен, поэтому параллельные обходы не дублируют отправку.
type Service struct {
	entries domain.ScheduleRepo
	posts   domain.PostRepo
	users   domain.UserRepo
	queue   domain.DeliveryQueue
	audit   domain.AuditRepo
	admins  map[int64]struct{}
	grace   time.Duration
	batch   int
}

// NewService создаёт сервис расписания.
func NewService(entries domain.ScheduleRepo, posts domain.PostRepo, users domain.UserRepo, queue domain.DeliveryQueue, audit domain.AuditRepo, adminIDs []int64, grace time.Duration, batch int) *Service {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Service{
		entries: entries,
		posts:   posts,
		users:   users,
		queue:   queue,
		audit:   audit,
		admins:  admins,
		grace:   grace,
		batch:   batch,
	}
}

// SweepDue обрабатывает записи со сроком не позже now: свежие ставит в очередь
// доставки, просроченные сверх допустимого окна помечает пропущенными.
// Ошибки по отдельным записям не прерывают обход.
func (s *Service) SweepDue(ctx context.Context, now time.Time) (fired, missed int, err error) {
	due, listErr := s.entries.ListDue(now, s.batch)
	if listErr != nil {
		return 0, 0, fmt.Errorf("выборка записей расписания: %w", listErr)
	}

	var errs []error
	for _, entry := range due {
		if now.Sub(entry.DueAt) > s.grace {
			ok, markErr := s.markMissed(ctx, entry)
			if markErr != nil {
				errs = append(errs, markErr)
				continue
			}
			if ok {
				missed++
			}
			continue
		}
		ok, fireErr := s.fire(ctx, entry)
		if fireErr != nil {
			errs = append(errs, fireErr)
			continue
		}
		if ok {
			fired++
		}
	}
	return fired, missed, errors.Join(errs...)
}

// fire читает пост и автора до захвата записи, поэтому сбой чтения оставляет
// её pending. Сбой любого шага после захвата возвращает запись в pending:
// запись не может остаться fired без задачи в очереди.
func (s *Service) fire(ctx context.Context, entry domain.ScheduleEntry) (bool, error) {
	post, err := s.posts.GetPost(entry.PostID)
	if err != nil {
		return false, fmt.Errorf("чтение поста %d: %w", entry.PostID, err)
	}
	author, err := s.users.GetByID(post.AuthorID)
	if err != nil {
		return false, fmt.Errorf("чтение автора поста %d: %w", entry.PostID, err)
	}

	claimed, err := s.entries.ClaimEntry(entry.PostID, domain.SchedulePending, domain.ScheduleFired)
	if err != nil {
		return false, fmt.Errorf("захват записи поста %d: %w", entry.PostID, err)
	}
	if !claimed {
		return false, nil
	}

	if err := s.posts.UpdatePostStatus(post.ID, domain.PostStatusSending, ""); err != nil {
		return false, s.releaseClaim(post.ID, domain.ScheduleFired, fmt.Errorf("перевод поста %d в отправку: %w", post.ID, err))
	}
	job := domain.DeliveryJob{
		ID:           uuid.NewString(),
		PostID:       post.ID,
		Cause:        domain.DeliveryCauseScheduled,
		NotifyChatID: author.TGUserID,
		EnqueuedAt:   time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		cause := fmt.Errorf("постановка поста %d в очередь: %w", post.ID, err)
		if rbErr := s.posts.UpdatePostStatus(post.ID, domain.PostStatusScheduled, ""); rbErr != nil {
			cause = errors.Join(cause, fmt.Errorf("откат статуса поста %d: %w", post.ID, rbErr))
		}
		return false, s.releaseClaim(post.ID, domain.ScheduleFired, cause)
	}

	postID := post.ID
	_ = s.audit.RecordAuditEvent(ctx, domain.AuditEvent{
		Event:    domain.AuditEventScheduleFired,
		PostID:   &postID,
		Metadata: map[string]any{"due_at": entry.DueAt},
	})
	metrics.IncScheduleFired()
	return true, nil
}

// releaseClaim возвращает захваченную запись в pending, чтобы следующий обход
// повторил попытку; невозможность отката дописывается к исходной ошибке.
func (s *Service) releaseClaim(postID int64, from domain.ScheduleStatus, cause error) error {
	if _, rbErr := s.entries.ClaimEntry(postID, from, domain.SchedulePending); rbErr != nil {
		return errors.Join(cause, fmt.Errorf("откат записи поста %d: %w", postID, rbErr))
	}
	return cause
}

func (s *Service) markMissed(ctx context.Context, entry domain.ScheduleEntry) (bool, error) {
	claimed, err := s.entries.ClaimEntry(entry.PostID, domain.SchedulePending, domain.ScheduleMissed)
	if err != nil {
		return false, fmt.Errorf("захват записи поста %d: %w", entry.PostID, err)
	}
	if !claimed {
		return false, nil
	}
	if err := s.posts.UpdatePostStatus(entry.PostID, domain.PostStatusFailed, "расписание пропущено"); err != nil {
		return false, s.releaseClaim(entry.PostID, domain.ScheduleMissed, fmt.Errorf("пометка поста %d: %w", entry.PostID, err))
	}
	postID := entry.PostID
	_ = s.audit.RecordAuditEvent(ctx, domain.AuditEvent{
		Event:    domain.AuditEventScheduleMissed,
		PostID:   &postID,
		Metadata: map[string]any{"due_at": entry.DueAt},
	})
	metrics.IncScheduleMissed()
	return true, nil
}

// ListScheduled возвращает отложенные посты автора.
func (s *Service) ListScheduled(ctx context.Context, tgUserID int64) ([]domain.Post, error) {
	user, err := s.users.GetByTGID(tgUserID)
	if err != nil {
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return s.posts.ListScheduledByAuthor(user.ID)
}

// CancelScheduled отменяет отложенный пост. Доступно автору поста и
// администраторам системы; сработавшую запись отменить нельзя.
func (s *Service) CancelScheduled(ctx context.Context, tgUserID, postID int64) error {
	user, err := s.users.GetByTGID(tgUserID)
	if err != nil {
		return fmt.Errorf("получение пользователя: %w", err)
	}
	post, err := s.posts.GetPost(postID)
	if err != nil {
		return fmt.Errorf("чтение поста: %w", err)
	}
	if post.AuthorID != user.ID {
		if _, ok := s.admins[tgUserID]; !ok {
			return domain.ErrUnauthorized
		}
	}
	entry, err := s.entries.GetEntry(postID)
	if err != nil {
		return fmt.Errorf("чтение записи расписания: %w", err)
	}
	if entry.Status != domain.SchedulePending {
		return ErrAlreadyFired
	}
	claimed, err := s.entries.ClaimEntry(postID, domain.SchedulePending, domain.ScheduleCancelled)
	if err != nil {
		return fmt.Errorf("отмена записи: %w", err)
	}
	if !claimed {
		return ErrAlreadyFired
	}
	if err := s.posts.UpdatePostStatus(postID, domain.PostStatusCancelled, ""); err != nil {
		return fmt.Errorf("пометка поста: %w", err)
	}
	metrics.IncScheduleCancelled()
	return nil
}
