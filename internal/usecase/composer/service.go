package composer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tg-control-bot/internal/domain"
)

var (
	// ErrNoChannels возвращается, если у пользователя нет каналов для публикации.
	ErrNoChannels = errors.New("нет каналов для публикации")
	// ErrNoSession возвращается при действии вне диалога создания поста.
	ErrNoSession = errors.New("создание поста не начато")
	// ErrNoChannelChosen возвращается при присылке контента до выбора канала.
	ErrNoChannelChosen = errors.New("сначала выберите канал")
	// ErrTooManyBlocks возвращается при превышении лимита блоков в посте.
	ErrTooManyBlocks = errors.New("превышен лимит блоков")
	// ErrEmptyPost возвращается при попытке отправить пост без блоков.
	ErrEmptyPost = errors.New("пост без содержимого")
	// ErrBadTime возвращается при нераспознанном времени отправки.
	ErrBadTime = fmt.Errorf("%w: нераспознанное время", domain.ErrValidation)
	// ErrPastTime возвращается, если указанное время уже прошло.
	ErrPastTime = fmt.Errorf("%w: время уже прошло", domain.ErrValidation)
)

// Service ведёт диалог создания поста: от выбора канала до материализации
// поста. Черновик живёт в сессии и превращается в пост только при отправке
// либо постановке в расписание.
type Service struct {
	sessions  domain.SessionStore
	users     domain.UserRepo
	channels  domain.ChannelRepo
	posts     domain.PostRepo
	entries   domain.ScheduleRepo
	queue     domain.DeliveryQueue
	audit     domain.AuditRepo
	maxBlocks int
	preview   int
}

// NewService создаёт сервис создания постов.
func NewService(sessions domain.SessionStore, users domain.UserRepo, channels domain.ChannelRepo, posts domain.PostRepo, entries domain.ScheduleRepo, queue domain.DeliveryQueue, audit domain.AuditRepo, maxBlocks, previewBlocks int) *Service {
	return &Service{
		sessions:  sessions,
		users:     users,
		channels:  channels,
		posts:     posts,
		entries:   entries,
		queue:     queue,
		audit:     audit,
		maxBlocks: maxBlocks,
		preview:   previewBlocks,
	}
}

// StartPost открывает новую сессию и возвращает каналы на выбор.
// Прежний черновик пользователя при этом затирается.
func (s *Service) StartPost(ctx context.Context, tgUserID int64) ([]domain.Channel, error) {
	user, err := s.users.GetByTGID(tgUserID)
	if err != nil {
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	channels, err := s.channels.ListUserChannels(user.ID)
	if err != nil {
		return nil, fmt.Errorf("каналы пользователя: %w", err)
	}
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	now := time.Now().UTC()
	s.sessions.Put(domain.ComposerSession{
		TGUserID:  tgUserID,
		State:     domain.SessionSelectingChannel,
		StartedAt: now,
		UpdatedAt: now,
	})
	return channels, nil
}

// SelectChannel фиксирует канал публикации и очищает накопленные блоки.
func (s *Service) SelectChannel(ctx context.Context, tgUserID, channelID int64) (domain.Channel, error) {
	channel, err := s.channelForAdmin(tgUserID, channelID)
	if err != nil {
		return domain.Channel{}, err
	}
	now := time.Now().UTC()
	session, ok := s.sessions.Get(tgUserID)
	if !ok {
		session = domain.ComposerSession{TGUserID: tgUserID, StartedAt: now}
	}
	session.State = domain.SessionComposing
	session.ChannelID = channelID
	session.Blocks = nil
	session.UpdatedAt = now
	s.sessions.Put(session)
	return channel, nil
}

// Append добавляет блок контента в конец черновика и возвращает новый размер.
// Блоки сохраняются в порядке поступления без слияния и дедупликации.
func (s *Service) Append(ctx context.Context, tgUserID int64, block domain.ContentBlock) (int, error) {
	session, ok := s.sessions.Get(tgUserID)
	if !ok {
		return 0, ErrNoSession
	}
	if session.State == domain.SessionSelectingChannel || session.ChannelID == 0 {
		return 0, ErrNoChannelChosen
	}
	if s.maxBlocks > 0 && len(session.Blocks) >= s.maxBlocks {
		return len(session.Blocks), ErrTooManyBlocks
	}
	session.Blocks = append(session.Blocks, block)
	session.State = domain.SessionComposing
	session.UpdatedAt = time.Now().UTC()
	s.sessions.Put(session)
	return len(session.Blocks), nil
}

// Preview переводит сессию в состояние предпросмотра и возвращает его текст.
// Список блоков при этом не меняется.
func (s *Service) Preview(ctx context.Context, tgUserID int64) (string, error) {
	session, ok := s.sessions.Get(tgUserID)
	if !ok {
		return "", ErrNoSession
	}
	if session.ChannelID == 0 {
		return "", ErrNoChannelChosen
	}
	channel, err := s.channels.GetChannel(session.ChannelID)
	if err != nil {
		return "", fmt.Errorf("чтение канала: %w", err)
	}
	session.State = domain.SessionPreviewing
	session.UpdatedAt = time.Now().UTC()
	s.sessions.Put(session)
	return FormatPreview(channel.Title, session.Blocks, s.preview), nil
}

// ClearBlocks очищает черновик, не выходя из диалога.
func (s *Service) ClearBlocks(ctx context.Context, tgUserID int64) error {
	session, ok := s.sessions.Get(tgUserID)
	if !ok {
		return ErrNoSession
	}
	session.Blocks = nil
	session.State = domain.SessionComposing
	session.UpdatedAt = time.Now().UTC()
	s.sessions.Put(session)
	return nil
}

// RequestSchedule переводит сессию в ожидание времени отправки.
func (s *Service) RequestSchedule(ctx context.Context, tgUserID int64) error {
	session, ok := s.sessions.Get(tgUserID)
	if !ok {
		return ErrNoSession
	}
	if len(session.Blocks) == 0 {
		return ErrEmptyPost
	}
	session.State = domain.SessionScheduling
	session.UpdatedAt = time.Now().UTC()
	s.sessions.Put(session)
	return nil
}

// Schedule разбирает время отправки, материализует пост со статусом scheduled
// и создаёт запись расписания. Сессия при успехе завершается.
func (s *Service) Schedule(ctx context.Context, tgUserID int64, input string, now time.Time) (domain.Post, error) {
	session, ok := s.sessions.Get(tgUserID)
	if !ok {
		return domain.Post{}, ErrNoSession
	}
	if len(session.Blocks) == 0 {
		return domain.Post{}, ErrEmptyPost
	}
	user, err := s.users.GetByTGID(tgUserID)
	if err != nil {
		return domain.Post{}, fmt.Errorf("получение пользователя: %w", err)
	}
	channel, err := s.channels.GetChannel(session.ChannelID)
	if err != nil {
		return domain.Post{}, fmt.Errorf("чтение канала: %w", err)
	}

	due, err := ParseScheduleTime(input, now, channelLocation(channel))
	if err != nil {
		return domain.Post{}, err
	}
	if !due.After(now) {
		return domain.Post{}, ErrPastTime
	}

	post, err := s.posts.CreatePost(domain.Post{
		ChannelID:   session.ChannelID,
		AuthorID:    user.ID,
		Status:      domain.PostStatusScheduled,
		Blocks:      session.Blocks,
		ScheduledAt: &due,
	})
	if err != nil {
		return domain.Post{}, fmt.Errorf("сохранение поста: %w", err)
	}
	if err := s.entries.CreateEntry(domain.ScheduleEntry{
		PostID: post.ID,
		DueAt:  due,
		Status: domain.SchedulePending,
	}); err != nil {
		if markErr := s.posts.UpdatePostStatus(post.ID, domain.PostStatusFailed, "запись расписания не создана"); markErr != nil {
			return domain.Post{}, fmt.Errorf("пометка поста: %w", markErr)
		}
		return domain.Post{}, fmt.Errorf("создание записи расписания: %w", err)
	}

	s.sessions.Delete(tgUserID)

	postID := post.ID
	userID := user.ID
	channelID := channel.ID
	_ = s.audit.RecordAuditEvent(ctx, domain.AuditEvent{
		Event:     domain.AuditEventPostScheduled,
		UserID:    &userID,
		ChannelID: &channelID,
		PostID:    &postID,
		Metadata:  map[string]any{"due_at": due},
	})
	return post, nil
}

// SendNow материализует пост со статусом sending и ставит задачу доставки.
// При отказе очереди пост помечается неуспешным, а черновик сохраняется,
// чтобы пользователь мог повторить отправку.
func (s *Service) SendNow(ctx context.Context, tgUserID int64) (domain.Post, error) {
	session, ok := s.sessions.Get(tgUserID)
	if !ok {
		return domain.Post{}, ErrNoSession
	}
	if len(session.Blocks) == 0 {
		return domain.Post{}, ErrEmptyPost
	}
	user, err := s.users.GetByTGID(tgUserID)
	if err != nil {
		return domain.Post{}, fmt.Errorf("получение пользователя: %w", err)
	}

	post, err := s.posts.CreatePost(domain.Post{
		ChannelID: session.ChannelID,
		AuthorID:  user.ID,
		Status:    domain.PostStatusSending,
		Blocks:    session.Blocks,
	})
	if err != nil {
		return domain.Post{}, fmt.Errorf("сохранение поста: %w", err)
	}

	job := domain.DeliveryJob{
		ID:           uuid.NewString(),
		PostID:       post.ID,
		Cause:        domain.DeliveryCauseManual,
		NotifyChatID: tgUserID,
		EnqueuedAt:   time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		if markErr := s.posts.UpdatePostStatus(post.ID, domain.PostStatusFailed, "очередь недоступна"); markErr != nil {
			return domain.Post{}, fmt.Errorf("пометка поста: %w", markErr)
		}
		return domain.Post{}, fmt.Errorf("постановка в очередь: %w", err)
	}

	s.sessions.Delete(tgUserID)
	return post, nil
}

// Cancel завершает диалог, отбрасывая черновик.
func (s *Service) Cancel(ctx context.Context, tgUserID int64) {
	s.sessions.Delete(tgUserID)
}

// Session возвращает текущую сессию пользователя.
func (s *Service) Session(tgUserID int64) (domain.ComposerSession, bool) {
	return s.sessions.Get(tgUserID)
}

func (s *Service) channelForAdmin(tgUserID, channelID int64) (domain.Channel, error) {
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
	return channel, nil
}

func channelLocation(channel domain.Channel) *time.Location {
	if channel.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(channel.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
