package domain

import "time"

// User описывает пользователя Telegram в системе.
type User struct {
	ID        int64
	TGUserID  int64
	FirstName string
	Username  string
	Locale    string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TelegramProfile содержит данные пользователя, полученные из обновления Telegram.
type TelegramProfile struct {
	TGUserID  int64
	FirstName string
	Username  string
	Locale    string
}

// Channel описывает канал Telegram, зарегистрированный в системе.
type Channel struct {
	ID        int64
	TGChatID  int64
	Title     string
	Username  string
	OwnerID   int64
	AdminIDs  []int64
	BotToken  string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Deliverable сообщает, привязан ли к каналу бот для публикации.
func (c Channel) Deliverable() bool {
	return c.BotToken != ""
}

// HasAdmin проверяет членство пользователя в наборе администраторов канала.
func (c Channel) HasAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ChannelRef описывает канал так, как он виден из пересланного сообщения.
type ChannelRef struct {
	TGChatID int64
	Title    string
	Username string
}

// MemberRole обозначает статус пользователя в чате Telegram.
type MemberRole string

const (
	// MemberRoleCreator — владелец канала.
	MemberRoleCreator MemberRole = "creator"
	// MemberRoleAdministrator — администратор канала.
	MemberRoleAdministrator MemberRole = "administrator"
	// MemberRoleMember — обычный участник.
	MemberRoleMember MemberRole = "member"
	// MemberRoleOutsider — пользователь вне чата либо покинувший его.
	MemberRoleOutsider MemberRole = "outsider"
)

// IsAdmin сообщает, достаточно ли роли для управления каналом.
func (r MemberRole) IsAdmin() bool {
	return r == MemberRoleCreator || r == MemberRoleAdministrator
}

// BotProfile содержит данные бота, к которому привязывается публикация.
type BotProfile struct {
	TGBotID  int64
	Username string
}

// BlockKind определяет тип блока контента.
type BlockKind string

const (
	// BlockText — текстовое сообщение.
	BlockText BlockKind = "text"
	// BlockPhoto — фотография с подписью.
	BlockPhoto BlockKind = "photo"
	// BlockVideo — видео с подписью.
	BlockVideo BlockKind = "video"
	// BlockDocument — документ с подписью.
	BlockDocument BlockKind = "document"
)

// MessageEntity описывает элемент форматирования текста, независимый от транспорта.
type MessageEntity struct {
	Type     string `json:"type"`
	Offset   int    `json:"offset"`
	Length   int    `json:"length"`
	URL      string `json:"url,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
	Language string `json:"language,omitempty"`
}

// ContentBlock — один элемент поста: текст либо медиа с подписью.
// Entities сохраняются дословно и применяются при отправке без изменений.
type ContentBlock struct {
	Kind     BlockKind       `json:"kind"`
	Text     string          `json:"text,omitempty"`
	Entities []MessageEntity `json:"entities,omitempty"`
	MediaRef string          `json:"media_ref,omitempty"`
}

// PostStatus описывает жизненный цикл поста.
type PostStatus string

const (
	// PostStatusDraft — пост собирается и ещё не передан на отправку.
	PostStatusDraft PostStatus = "draft"
	// PostStatusScheduled — пост ожидает наступления запланированного времени.
	PostStatusScheduled PostStatus = "scheduled"
	// PostStatusSending — пост передан диспетчеру доставки.
	PostStatusSending PostStatus = "sending"
	// PostStatusSent — все блоки поста доставлены в канал.
	PostStatusSent PostStatus = "sent"
	// PostStatusPartial — доставлена часть блоков, отправка прервана.
	PostStatusPartial PostStatus = "partially_sent"
	// PostStatusFailed — не доставлен ни один блок либо отправка невозможна.
	PostStatusFailed PostStatus = "failed"
	// PostStatusCancelled — запланированный пост отменён до отправки.
	PostStatusCancelled PostStatus = "cancelled"
)

// Post представляет материализованный пост для канала.
// DeliveredIDs содержит идентификаторы сообщений Telegram для доставленного
// префикса Blocks в том же порядке.
type Post struct {
	ID           int64
	ChannelID    int64
	AuthorID     int64
	Status       PostStatus
	Blocks       []ContentBlock
	DeliveredIDs []int64
	FailReason   string
	ScheduledAt  *time.Time
	CreatedAt    time.Time
	SentAt       *time.Time
}

// ScheduleStatus описывает состояние записи расписания.
type ScheduleStatus string

const (
	// SchedulePending — срабатывание ещё впереди.
	SchedulePending ScheduleStatus = "pending"
	// ScheduleFired — запись сработала и пост поставлен в очередь.
	ScheduleFired ScheduleStatus = "fired"
	// ScheduleMissed — срок пропущен сверх допустимого окна.
	ScheduleMissed ScheduleStatus = "missed"
	// ScheduleCancelled — запись отменена до срабатывания.
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// ScheduleEntry связывает пост с моментом отправки. DueAt хранится в UTC.
type ScheduleEntry struct {
	PostID    int64
	DueAt     time.Time
	Status    ScheduleStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionState описывает шаг диалога создания поста.
type SessionState string

const (
	// SessionSelectingChannel — пользователь выбирает канал для публикации.
	SessionSelectingChannel SessionState = "selecting_channel"
	// SessionComposing — пользователь присылает блоки контента.
	SessionComposing SessionState = "composing"
	// SessionPreviewing — пользователю показан предпросмотр.
	SessionPreviewing SessionState = "previewing"
	// SessionScheduling — ожидается ввод времени отправки.
	SessionScheduling SessionState = "scheduling"
)

// ComposerSession хранит черновик поста одного пользователя.
// Отсутствие сессии означает, что пользователь вне диалога создания поста.
type ComposerSession struct {
	TGUserID  int64
	State     SessionState
	ChannelID int64
	Blocks    []ContentBlock
	StartedAt time.Time
	UpdatedAt time.Time
}

// ReplyThread фиксирует намерение ответить на сообщение канала.
type ReplyThread struct {
	TGUserID  int64
	ChannelID int64
	MessageID int64
	CreatedAt time.Time
}
