package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"tg-control-bot/internal/domain"
)

var (
	// ErrRefInvalid возвращается при неразборчивой ссылке на канал.
	ErrRefInvalid = errors.New("некорректная ссылка на канал")
	// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
	ErrInvalidTimezone = errors.New("некорректный часовой пояс")
)

var aliasRegex = regexp.MustCompile(`(?i)^(?:@|https?://t\.me/|t\.me/)?([a-z0-9_]{5,})$`)

// Service ведёт реестр каналов: регистрацию, набор администраторов,
// привязку ботов и часовые пояса. Изменения одного канала сериализуются
// через пер-канальный мьютекс.
type Service struct {
	channels domain.ChannelRepo
	users    domain.UserRepo
	gateway  domain.Gateway
	audit    domain.AuditRepo

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewService создаёт сервис реестра каналов.
func NewService(channels domain.ChannelRepo, users domain.UserRepo, gateway domain.Gateway, audit domain.AuditRepo) *Service {
	return &Service{
		channels: channels,
		users:    users,
		gateway:  gateway,
		audit:    audit,
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (s *Service) channelLock(tgChatID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[tgChatID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[tgChatID] = lock
	}
	return lock
}

// ParseChannelRef приводит ввод пользователя к каноничной ссылке:
// числовому идентификатору чата либо алиасу без префиксов.
func ParseChannelRef(input string) (string, error) {
	trim := strings.TrimSpace(input)
	if trim == "" {
		return "", ErrRefInvalid
	}
	if _, err := parseChatID(trim); err == nil {
		return trim, nil
	}
	matches := aliasRegex.FindStringSubmatch(trim)
	if len(matches) < 2 {
		return "", ErrRefInvalid
	}
	return strings.ToLower(matches[1]), nil
}

func parseChatID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		return 0, err
	}
	if fmt.Sprintf("%d", id) != s {
		return 0, fmt.Errorf("не числовой идентификатор")
	}
	return id, nil
}

// ClaimForwarded регистрирует канал по данным пересланного сообщения.
// Право администратора проверяется через Telegram до любой записи.
func (s *Service) ClaimForwarded(ctx context.Context, tgUserID int64, ref domain.ChannelRef) (domain.Channel, error) {
	user, err := s.users.GetByTGID(tgUserID)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("получение пользователя: %w", err)
	}
	role, err := s.gateway.GetMembership(ctx, ref.TGChatID, tgUserID)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("проверка прав в канале: %w", err)
	}
	if !role.IsAdmin() {
		return domain.Channel{}, domain.ErrUnauthorized
	}

	lock := s.channelLock(ref.TGChatID)
	lock.Lock()
	defer lock.Unlock()

	channel, err := s.channels.UpsertChannel(ref, user.ID)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("сохранение канала: %w", err)
	}
	if err := s.channels.AddAdmin(channel.ID, user.ID); err != nil {
		return domain.Channel{}, fmt.Errorf("добавление администратора: %w", err)
	}
	channel, err = s.channels.GetChannel(channel.ID)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("чтение канала: %w", err)
	}
	return channel, nil
}

// ClaimByRef регистрирует канал по @алиасу либо числовому идентификатору.
func (s *Service) ClaimByRef(ctx context.Context, tgUserID int64, input string) (domain.Channel, error) {
	parsed, err := ParseChannelRef(input)
	if err != nil {
		return domain.Channel{}, err
	}
	ref, err := s.gateway.ResolveChannel(ctx, parsed)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("резолв канала: %w", err)
	}
	return s.ClaimForwarded(ctx, tgUserID, ref)
}

// BindCredential привязывает токен бота к каналу. Токен проверяется через
// Telegram; операция доступна только администраторам из набора канала.
func (s *Service) BindCredential(ctx context.Context, tgUserID, channelID int64, token string) (domain.BotProfile, error) {
	user, err := s.users.GetByTGID(tgUserID)
	if err != nil {
		return domain.BotProfile{}, fmt.Errorf("получение пользователя: %w", err)
	}
	channel, err := s.channels.GetChannel(channelID)
	if err != nil {
		return domain.BotProfile{}, err
	}
	if !channel.HasAdmin(user.ID) {
		return domain.BotProfile{}, domain.ErrUnauthorized
	}
	profile, err := s.gateway.ValidateCredential(ctx, token)
	if err != nil {
		return domain.BotProfile{}, fmt.Errorf("проверка токена: %w", err)
	}

	lock := s.channelLock(channel.TGChatID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.channels.BindCredential(channelID, token); err != nil {
		return domain.BotProfile{}, err
	}
	userID := user.ID
	_ = s.audit.RecordAuditEvent(ctx, domain.AuditEvent{
		Event:     domain.AuditEventCredentialBound,
		UserID:    &userID,
		ChannelID: &channelID,
		Metadata:  map[string]any{"bot_username": profile.Username},
	})
	return profile, nil
}

// SetTimezone задаёт часовой пояс канала для разбора относительного времени.
func (s *Service) SetTimezone(ctx context.Context, tgUserID, channelID int64, tz string) (string, error) {
	normalized, err := normalizeTimezone(tz)
	if err != nil {
		return "", err
	}
	if _, err := s.channelForAdmin(tgUserID, channelID); err != nil {
		return "", err
	}
	if err := s.channels.SetTimezone(channelID, normalized); err != nil {
		return "", fmt.Errorf("обновление часового пояса: %w", err)
	}
	return normalized, nil
}

// ListChannels возвращает каналы, которыми управляет пользователь.
func (s *Service) ListChannels(ctx context.Context, tgUserID int64) ([]domain.Channel, error) {
	user, err := s.users.GetByTGID(tgUserID)
	if err != nil {
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return s.channels.ListUserChannels(user.ID)
}

// GetChannelForUser возвращает канал, если пользователь входит в его набор администраторов.
func (s *Service) GetChannelForUser(ctx context.Context, tgUserID, channelID int64) (domain.Channel, error) {
	return s.channelForAdmin(tgUserID, channelID)
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

// CommonTimezones — часовые пояса, предлагаемые в меню канала. Ручной ввод
// дополнительно сверяется с этим списком без учёта регистра.
var CommonTimezones = []string{
	"UTC",
	"Europe/Moscow",
	"Europe/Kyiv",
	"Europe/Berlin",
	"Europe/London",
	"Asia/Yekaterinburg",
	"Asia/Almaty",
	"Asia/Tashkent",
	"Asia/Novosibirsk",
	"America/New_York",
}

// normalizeTimezone принимает любой точный идентификатор IANA, иначе ищет
// пояс в CommonTimezones без учёта регистра.
func normalizeTimezone(raw string) (string, error) {
	candidate := strings.ReplaceAll(strings.TrimSpace(raw), " ", "_")
	if candidate == "" {
		return "", ErrInvalidTimezone
	}
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}
	for _, zone := range CommonTimezones {
		if strings.EqualFold(candidate, zone) {
			return zone, nil
		}
	}
	return "", ErrInvalidTimezone
}
