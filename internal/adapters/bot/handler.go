package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-control-bot/internal/adapters/telegram"
	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/infra/metrics"
	"tg-control-bot/internal/usecase/composer"
	"tg-control-bot/internal/usecase/registry"
	"tg-control-bot/internal/usecase/reply"
	"tg-control-bot/internal/usecase/schedule"
)

const updateDedupTTL = 24 * time.Hour

// quickPicks переводит callback-значения кнопок быстрого выбора времени в
// тот же текст, который пользователь мог бы прислать вручную.
var quickPicks = map[string]string{
	"today_0900":    "сегодня 09:00",
	"today_1800":    "сегодня 18:00",
	"tomorrow_0900": "завтра 09:00",
	"tomorrow_1800": "завтра 18:00",
}

// Handler обрабатывает входящие обновления Telegram: команды, кнопки и
// контент, который пользователь присылает в рамках начатых диалогов.
type Handler struct {
	bot        *tgbotapi.BotAPI
	log        zerolog.Logger
	registryUC *registry.Service
	composerUC *composer.Service
	scheduleUC *schedule.Service
	replyUC    *reply.Service
	users      domain.UserRepo
	posts      domain.PostRepo
	cache      domain.Cache
	admins     map[int64]struct{}

	mu           sync.Mutex
	pendingClaim map[int64]struct{}
	pendingBind  map[int64]int64
	pendingTZ    map[int64]int64
}

func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, registryUC *registry.Service, composerUC *composer.Service, scheduleUC *schedule.Service, replyUC *reply.Service, userRepo domain.UserRepo, postRepo domain.PostRepo, cache domain.Cache, adminIDs []int64) *Handler {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Handler{
		bot:          bot,
		log:          log,
		registryUC:   registryUC,
		composerUC:   composerUC,
		scheduleUC:   scheduleUC,
		replyUC:      replyUC,
		users:        userRepo,
		posts:        postRepo,
		cache:        cache,
		admins:       admins,
		pendingClaim: make(map[int64]struct{}),
		pendingBind:  make(map[int64]int64),
		pendingTZ:    make(map[int64]int64),
	}
}

// HandleUpdate обрабатывает входящий апдейт ровно один раз: Telegram
// повторяет доставку вебхука, пока не получит 200, поэтому повторы
// отсеиваются по UpdateID. Если кеш недоступен, апдейт обрабатывается
// без дедупликации.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	key := fmt.Sprintf("tg_update:%d", upd.UpdateID)
	err := h.cache.Once(key, updateDedupTTL, func() error {
		h.dispatch(ctx, upd)
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Int("update_id", upd.UpdateID).Msg("дедупликация апдейта недоступна")
		h.dispatch(ctx, upd)
	}
}

func (h *Handler) dispatch(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || !msg.Chat.IsPrivate() {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		if h.tryHandleBindInput(ctx, msg) {
			return
		}
		if h.tryHandleTimezoneInput(ctx, msg) {
			return
		}
		if h.tryHandleClaimInput(ctx, msg) {
			return
		}
		if h.tryHandleReplyContent(ctx, msg) {
			return
		}
		if h.tryHandleComposerContent(ctx, msg) {
			return
		}
		if msg.ForwardFromChat != nil && msg.ForwardFromChat.IsChannel() {
			h.reply(msg.Chat.ID, "Чтобы зарегистрировать канал, начните с /addchannel", nil)
			return
		}
		h.reply(msg.Chat.ID, "Не понимаю. Начните пост командой /newpost или откройте /help", nil)
		return
	}

	switch {
	case strings.HasPrefix(text, "/start"):
		h.handleStart(msg)
	case strings.HasPrefix(text, "/help"):
		h.handleHelp(msg.Chat.ID)
	case strings.HasPrefix(text, "/newpost"):
		h.handleNewPost(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/addchannel"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/addchannel"))
		h.handleAddChannel(ctx, msg.Chat.ID, msg.From.ID, payload)
	case strings.HasPrefix(text, "/mychannels"):
		h.handleMyChannels(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/scheduled"):
		h.handleScheduled(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/cancel"):
		h.handleCancelAll(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/stats"):
		h.handleStats(msg.Chat.ID, msg.From.ID)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Список команд: /help", nil)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data
	switch {
	case data == "new_post":
		h.handleNewPost(ctx, chatID, cb.From.ID)
	case data == "add_channel":
		h.handleAddChannel(ctx, chatID, cb.From.ID, "")
	case data == "my_channels":
		h.handleMyChannels(ctx, chatID, cb.From.ID)
	case data == "scheduled_list":
		h.handleScheduled(ctx, chatID, cb.From.ID)
	case data == "help_menu":
		h.handleHelp(chatID)
	case data == "post_preview":
		h.handlePreview(ctx, chatID, cb.From.ID)
	case data == "send_post":
		h.handleSendNow(ctx, chatID, cb.From.ID)
	case data == "schedule_post":
		h.handleRequestSchedule(ctx, chatID, cb.From.ID)
	case data == "clear_post":
		h.handleClearBlocks(ctx, chatID, cb.From.ID)
	case data == "cancel":
		h.handleCancelAll(ctx, chatID, cb.From.ID)
	case data == "cancel_reply":
		h.replyUC.CancelReply(cb.From.ID)
		h.reply(chatID, "Ответ отменён", nil)
	case strings.HasPrefix(data, "select_channel:"):
		h.handleSelectChannel(ctx, chatID, cb.From.ID, parseID(data))
	case strings.HasPrefix(data, "manage_channel:"):
		h.handleManageChannel(ctx, chatID, cb.From.ID, parseID(data))
	case strings.HasPrefix(data, "bind_bot:"):
		h.handleBindPrompt(chatID, cb.From.ID, parseID(data))
	case strings.HasPrefix(data, "set_tz:"):
		h.handleTimezonePrompt(chatID, cb.From.ID, parseID(data))
	case strings.HasPrefix(data, "tz_pick:"):
		channelID, zone := parseTimezonePick(data)
		h.handleTimezonePick(ctx, chatID, cb.From.ID, channelID, zone)
	case strings.HasPrefix(data, "schedule_at:"):
		value := strings.TrimPrefix(data, "schedule_at:")
		if input, ok := quickPicks[value]; ok {
			h.handleScheduleTime(ctx, chatID, cb.From.ID, input)
		}
	case strings.HasPrefix(data, "cancel_scheduled:"):
		h.handleCancelScheduled(ctx, chatID, cb.From.ID, parseID(data))
	case strings.HasPrefix(data, "reply:"):
		channelID, messageID := parseReplyTarget(data)
		h.handleBeginReply(ctx, chatID, cb.From.ID, channelID, messageID)
	}
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(cb.From.ID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) handleStart(msg *tgbotapi.Message) {
	profile := domain.TelegramProfile{
		TGUserID:  msg.From.ID,
		FirstName: msg.From.FirstName,
		Username:  msg.From.UserName,
		Locale:    msg.From.LanguageCode,
	}
	user, created, err := h.users.UpsertByTGID(profile)
	if err != nil {
		h.log.Error().Err(err).Int64("user", msg.From.ID).Msg("не удалось зарегистрировать пользователя")
		h.reply(msg.Chat.ID, "Не удалось зарегистрироваться. Попробуйте позже", nil)
		return
	}
	greeting := "Привет!"
	if user.FirstName != "" {
		greeting = fmt.Sprintf("Привет, %s!", user.FirstName)
	}
	if created {
		h.reply(msg.Chat.ID, greeting+" Я публикую посты в ваши каналы: сразу или по расписанию.\n\nНачните с регистрации канала.", h.mainKeyboard())
		return
	}
	h.reply(msg.Chat.ID, greeting+" Что делаем?", h.mainKeyboard())
}

func (h *Handler) handleHelp(chatID int64) {
	help := strings.Join([]string{
		"Я публикую посты в каналы от имени привязанных ботов.",
		"",
		"/newpost — собрать пост из блоков и отправить или запланировать",
		"/addchannel — зарегистрировать канал (нужны права администратора)",
		"/mychannels — ваши каналы: привязка бота, часовой пояс",
		"/scheduled — отложенные посты и их отмена",
		"/cancel — прервать текущее действие",
	}, "\n")
	h.reply(chatID, help, h.mainKeyboard())
}

func (h *Handler) handleNewPost(ctx context.Context, chatID, tgUserID int64) {
	channels, err := h.composerUC.StartPost(ctx, tgUserID)
	if err != nil {
		if !errors.Is(err, composer.ErrNoChannels) {
			h.log.Error().Err(err).Int64("user", tgUserID).Msg("не удалось начать пост")
		}
		h.reply(chatID, h.describeError(err), nil)
		return
	}
	h.reply(chatID, "Выберите канал для публикации:", h.channelsKeyboard(channels))
}

func (h *Handler) handleSelectChannel(ctx context.Context, chatID, tgUserID, channelID int64) {
	channel, err := h.composerUC.SelectChannel(ctx, tgUserID, channelID)
	if err != nil {
		h.reply(chatID, h.describeError(err), nil)
		return
	}
	text := fmt.Sprintf("Канал: %s\n\nОтправляйте блоки поста: текст, фото, видео или документы. Каждый блок станет отдельным сообщением канала, порядок сохранится.", channelLabel(channel))
	if !channel.Deliverable() {
		text += "\n\n⚠️ К каналу не привязан бот, отправка не сработает. Привяжите бота в /mychannels."
	}
	h.reply(chatID, text, h.draftKeyboard())
}

func (h *Handler) handlePreview(ctx context.Context, chatID, tgUserID int64) {
	preview, err := h.composerUC.Preview(ctx, tgUserID)
	if err != nil {
		h.reply(chatID, h.describeError(err), nil)
		return
	}
	h.replyHTML(chatID, preview, h.draftKeyboard())
}

func (h *Handler) handleSendNow(ctx context.Context, chatID, tgUserID int64) {
	post, err := h.composerUC.SendNow(ctx, tgUserID)
	if err != nil {
		h.log.Error().Err(err).Int64("user", tgUserID).Msg("не удалось поставить пост в очередь")
		h.reply(chatID, h.describeError(err), nil)
		return
	}
	h.reply(chatID, fmt.Sprintf("Пост #%d отправляется. Я сообщу о результате.", post.ID), nil)
}

func (h *Handler) handleRequestSchedule(ctx context.Context, chatID, tgUserID int64) {
	if err := h.composerUC.RequestSchedule(ctx, tgUserID); err != nil {
		h.reply(chatID, h.describeError(err), nil)
		return
	}
	prompt := strings.Join([]string{
		"Когда опубликовать пост?",
		"",
		"• 14:30 — сегодня, по часовому поясу канала",
		"• завтра 09:00",
		"• 09:00 25.12.2026 — время UTC",
	}, "\n")
	h.reply(chatID, prompt, h.schedulePresetKeyboard())
}

func (h *Handler) handleScheduleTime(ctx context.Context, chatID, tgUserID int64, input string) {
	post, err := h.composerUC.Schedule(ctx, tgUserID, input, time.Now())
	if err != nil {
		if errors.Is(err, composer.ErrBadTime) || errors.Is(err, composer.ErrPastTime) {
			h.reply(chatID, h.describeError(err), h.schedulePresetKeyboard())
			return
		}
		h.log.Error().Err(err).Int64("user", tgUserID).Msg("не удалось запланировать пост")
		h.reply(chatID, h.describeError(err), nil)
		return
	}
	h.reply(chatID, h.scheduledConfirmation(ctx, tgUserID, post), nil)
}

// scheduledConfirmation показывает время срабатывания в часовом поясе канала,
// чтобы пользователь видел то же время, которое вводил.
func (h *Handler) scheduledConfirmation(ctx context.Context, tgUserID int64, post domain.Post) string {
	if post.ScheduledAt == nil {
		return fmt.Sprintf("Пост #%d запланирован.", post.ID)
	}
	zone := "UTC"
	loc := time.UTC
	if channel, err := h.registryUC.GetChannelForUser(ctx, tgUserID, post.ChannelID); err == nil && channel.Timezone != "" {
		if l, lerr := time.LoadLocation(channel.Timezone); lerr == nil {
			zone = channel.Timezone
			loc = l
		}
	}
	when := post.ScheduledAt.In(loc).Format("02.01.2006 15:04")
	return fmt.Sprintf("Пост #%d запланирован на %s (%s).", post.ID, when, zone)
}

func (h *Handler) handleClearBlocks(ctx context.Context, chatID, tgUserID int64) {
	if err := h.composerUC.ClearBlocks(ctx, tgUserID); err != nil {
		h.reply(chatID, h.describeError(err), nil)
		return
	}
	h.reply(chatID, "Черновик очищен. Отправляйте блоки заново.", h.draftKeyboard())
}

func (h *Handler) handleCancelAll(ctx context.Context, chatID, tgUserID int64) {
	h.composerUC.Cancel(ctx, tgUserID)
	h.replyUC.CancelReply(tgUserID)
	h.mu.Lock()
	delete(h.pendingClaim, tgUserID)
	delete(h.pendingBind, tgUserID)
	delete(h.pendingTZ, tgUserID)
	h.mu.Unlock()
	h.reply(chatID, "Действие отменено", h.mainKeyboard())
}

func (h *Handler) handleAddChannel(ctx context.Context, chatID, tgUserID int64, payload string) {
	if payload != "" {
		h.claimByRef(ctx, chatID, tgUserID, payload)
		return
	}
	h.mu.Lock()
	h.pendingClaim[tgUserID] = struct{}{}
	h.mu.Unlock()
	h.reply(chatID, "Перешлите любое сообщение из канала или пришлите его @username.\n\nВы должны быть администратором канала.", nil)
}

func (h *Handler) handleMyChannels(ctx context.Context, chatID, tgUserID int64) {
	channels, err := h.registryUC.ListChannels(ctx, tgUserID)
	if err != nil {
		h.log.Error().Err(err).Int64("user", tgUserID).Msg("не удалось получить каналы пользователя")
		h.reply(chatID, "Не удалось получить список каналов. Попробуйте позже", nil)
		return
	}
	if len(channels) == 0 {
		h.reply(chatID, "У вас пока нет каналов. Добавьте первый: /addchannel", nil)
		return
	}
	h.reply(chatID, "Ваши каналы. Нажмите на канал, чтобы привязать бота или сменить часовой пояс:", h.manageListKeyboard(channels))
}

func (h *Handler) handleManageChannel(ctx context.Context, chatID, tgUserID, channelID int64) {
	channel, err := h.registryUC.GetChannelForUser(ctx, tgUserID, channelID)
	if err != nil {
		h.reply(chatID, h.describeError(err), nil)
		return
	}
	bound := "не привязан"
	if channel.Deliverable() {
		bound = "привязан"
	}
	card := strings.Join([]string{
		"<b>Канал:</b> " + html.EscapeString(channelLabel(channel)),
		"<b>Бот:</b> " + bound,
		"<b>Часовой пояс:</b> " + html.EscapeString(channel.Timezone),
		fmt.Sprintf("<b>Администраторов:</b> %d", len(channel.AdminIDs)),
	}, "\n")
	h.replyHTML(chatID, card, h.manageChannelKeyboard(channel.ID))
}

func (h *Handler) handleBindPrompt(chatID, tgUserID, channelID int64) {
	if channelID == 0 {
		return
	}
	h.mu.Lock()
	h.pendingBind[tgUserID] = channelID
	h.mu.Unlock()
	h.reply(chatID, "Пришлите токен бота, которого вы добавили администратором канала. Токен выдаёт @BotFather.", nil)
}

func (h *Handler) handleTimezonePrompt(chatID, tgUserID, channelID int64) {
	if channelID == 0 {
		return
	}
	h.mu.Lock()
	h.pendingTZ[tgUserID] = channelID
	h.mu.Unlock()
	h.reply(chatID, "Пришлите часовой пояс канала, например Europe/Moscow, или выберите из списка:", h.timezoneKeyboard(channelID))
}

func (h *Handler) handleTimezonePick(ctx context.Context, chatID, tgUserID, channelID int64, zone string) {
	if channelID == 0 || zone == "" {
		return
	}
	h.mu.Lock()
	delete(h.pendingTZ, tgUserID)
	h.mu.Unlock()
	h.applyTimezone(ctx, chatID, tgUserID, channelID, zone)
}

func (h *Handler) applyTimezone(ctx context.Context, chatID, tgUserID, channelID int64, zone string) {
	normalized, err := h.registryUC.SetTimezone(ctx, tgUserID, channelID, zone)
	if err != nil {
		h.reply(chatID, h.describeError(err), nil)
		return
	}
	h.reply(chatID, fmt.Sprintf("Часовой пояс канала: %s. Время в расписаниях считается по нему.", normalized), nil)
}

func (h *Handler) handleScheduled(ctx context.Context, chatID, tgUserID int64) {
	posts, err := h.scheduleUC.ListScheduled(ctx, tgUserID)
	if err != nil {
		h.log.Error().Err(err).Int64("user", tgUserID).Msg("не удалось получить отложенные посты")
		h.reply(chatID, "Не удалось получить отложенные посты. Попробуйте позже", nil)
		return
	}
	if len(posts) == 0 {
		h.reply(chatID, "Отложенных постов нет", nil)
		return
	}
	channels, err := h.registryUC.ListChannels(ctx, tgUserID)
	if err != nil {
		h.log.Error().Err(err).Int64("user", tgUserID).Msg("не удалось получить каналы пользователя")
		channels = nil
	}
	byID := make(map[int64]domain.Channel, len(channels))
	for _, ch := range channels {
		byID[ch.ID] = ch
	}
	lines := []string{"Отложенные посты:"}
	for _, post := range posts {
		if post.ScheduledAt == nil {
			continue
		}
		title := fmt.Sprintf("канал #%d", post.ChannelID)
		zone := "UTC"
		loc := time.UTC
		if ch, ok := byID[post.ChannelID]; ok {
			title = channelLabel(ch)
			if l, lerr := time.LoadLocation(ch.Timezone); lerr == nil && ch.Timezone != "" {
				zone = ch.Timezone
				loc = l
			}
		}
		when := post.ScheduledAt.In(loc).Format("02.01.2006 15:04")
		lines = append(lines, fmt.Sprintf("#%d — %s — %s (%s), блоков: %d", post.ID, title, when, zone, len(post.Blocks)))
	}
	h.reply(chatID, strings.Join(lines, "\n"), h.scheduledKeyboard(posts))
}

func (h *Handler) handleCancelScheduled(ctx context.Context, chatID, tgUserID, postID int64) {
	if postID == 0 {
		return
	}
	if err := h.scheduleUC.CancelScheduled(ctx, tgUserID, postID); err != nil {
		h.reply(chatID, h.describeError(err), nil)
		return
	}
	h.reply(chatID, fmt.Sprintf("Пост #%d отменён", postID), nil)
}

func (h *Handler) handleBeginReply(ctx context.Context, chatID, tgUserID, channelID, messageID int64) {
	if channelID == 0 || messageID == 0 {
		return
	}
	channel, err := h.replyUC.BeginReply(ctx, tgUserID, channelID, messageID)
	if err != nil {
		h.reply(chatID, h.describeError(err), nil)
		return
	}
	h.reply(chatID, fmt.Sprintf("Отвечаем на сообщение #%d в канале %s. Пришлите текст или медиа.", messageID, channelLabel(channel)), h.cancelReplyKeyboard())
}

func (h *Handler) handleStats(chatID, tgUserID int64) {
	if _, ok := h.admins[tgUserID]; !ok {
		h.reply(chatID, "Команда доступна только администраторам бота", nil)
		return
	}
	counts, err := h.posts.CountPostsByStatus()
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось получить статистику постов")
		h.reply(chatID, "Не удалось получить статистику. Попробуйте позже", nil)
		return
	}
	order := []struct {
		status domain.PostStatus
		label  string
	}{
		{domain.PostStatusScheduled, "запланировано"},
		{domain.PostStatusSending, "отправляется"},
		{domain.PostStatusSent, "отправлено"},
		{domain.PostStatusPartial, "частично отправлено"},
		{domain.PostStatusFailed, "с ошибкой"},
		{domain.PostStatusCancelled, "отменено"},
		{domain.PostStatusDraft, "черновики"},
	}
	total := 0
	lines := []string{"Посты по статусам:"}
	for _, row := range order {
		n := counts[row.status]
		total += n
		lines = append(lines, fmt.Sprintf("• %s: %d", row.label, n))
	}
	lines = append(lines, fmt.Sprintf("Всего: %d", total))
	h.reply(chatID, strings.Join(lines, "\n"), nil)
}

// tryHandleBindInput перехватывает текст, когда от пользователя ждут токен
// бота для привязки к каналу.
func (h *Handler) tryHandleBindInput(ctx context.Context, msg *tgbotapi.Message) bool {
	h.mu.Lock()
	channelID, ok := h.pendingBind[msg.From.ID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	token := strings.TrimSpace(msg.Text)
	if token == "" {
		h.reply(msg.Chat.ID, "Пришлите токен бота текстом или /cancel", nil)
		return true
	}
	h.mu.Lock()
	delete(h.pendingBind, msg.From.ID)
	h.mu.Unlock()
	profile, err := h.registryUC.BindCredential(ctx, msg.From.ID, channelID, token)
	if err != nil {
		h.log.Error().Err(err).Int64("user", msg.From.ID).Int64("channel", channelID).Msg("не удалось привязать бота")
		h.reply(msg.Chat.ID, h.describeError(err), nil)
		return true
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Бот @%s привязан к каналу. Сообщение с токеном лучше удалить из чата.", profile.Username), nil)
	return true
}

// tryHandleTimezoneInput перехватывает текст, когда от пользователя ждут
// часовой пояс канала.
func (h *Handler) tryHandleTimezoneInput(ctx context.Context, msg *tgbotapi.Message) bool {
	h.mu.Lock()
	channelID, ok := h.pendingTZ[msg.From.ID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	zone := strings.TrimSpace(msg.Text)
	if zone == "" {
		h.reply(msg.Chat.ID, "Пришлите часовой пояс текстом, например Europe/Moscow, или /cancel", nil)
		return true
	}
	h.mu.Lock()
	delete(h.pendingTZ, msg.From.ID)
	h.mu.Unlock()
	h.applyTimezone(ctx, msg.Chat.ID, msg.From.ID, channelID, zone)
	return true
}

// tryHandleClaimInput перехватывает пересланное сообщение или @username,
// когда пользователь регистрирует канал. Ожидание снимается только после
// успешной регистрации, чтобы после ошибки можно было прислать канал ещё раз.
func (h *Handler) tryHandleClaimInput(ctx context.Context, msg *tgbotapi.Message) bool {
	h.mu.Lock()
	_, ok := h.pendingClaim[msg.From.ID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	if msg.ForwardFromChat != nil && msg.ForwardFromChat.IsChannel() {
		ref := domain.ChannelRef{
			TGChatID: msg.ForwardFromChat.ID,
			Title:    msg.ForwardFromChat.Title,
			Username: msg.ForwardFromChat.UserName,
		}
		channel, err := h.registryUC.ClaimForwarded(ctx, msg.From.ID, ref)
		h.finishClaim(msg.Chat.ID, msg.From.ID, channel, err)
		return true
	}
	input := strings.TrimSpace(msg.Text)
	if input == "" {
		h.reply(msg.Chat.ID, "Перешлите сообщение из канала или пришлите его @username. Отмена: /cancel", nil)
		return true
	}
	h.claimByRef(ctx, msg.Chat.ID, msg.From.ID, input)
	return true
}

func (h *Handler) claimByRef(ctx context.Context, chatID, tgUserID int64, input string) {
	channel, err := h.registryUC.ClaimByRef(ctx, tgUserID, input)
	h.finishClaim(chatID, tgUserID, channel, err)
}

func (h *Handler) finishClaim(chatID, tgUserID int64, channel domain.Channel, err error) {
	if err != nil {
		h.log.Warn().Err(err).Int64("user", tgUserID).Msg("канал не зарегистрирован")
		h.reply(chatID, h.describeError(err), nil)
		return
	}
	h.mu.Lock()
	delete(h.pendingClaim, tgUserID)
	h.mu.Unlock()
	text := fmt.Sprintf("Канал %s зарегистрирован.", channelLabel(channel))
	if !channel.Deliverable() {
		text += "\nТеперь привяжите бота, который будет публиковать посты."
	}
	h.reply(chatID, text, h.manageChannelKeyboard(channel.ID))
}

// tryHandleReplyContent перехватывает контент, когда пользователь отвечает
// на сообщение канала.
func (h *Handler) tryHandleReplyContent(ctx context.Context, msg *tgbotapi.Message) bool {
	if !h.replyUC.Pending(msg.From.ID) {
		return false
	}
	block, ok := extractBlock(msg)
	if !ok {
		h.reply(msg.Chat.ID, "Поддерживаются текст, фото, видео и документы. Отмена: /cancel", nil)
		return true
	}
	messageID, err := h.replyUC.ResolveReply(ctx, msg.From.ID, block)
	if err != nil {
		h.log.Error().Err(err).Int64("user", msg.From.ID).Msg("не удалось отправить ответ в канал")
		if domain.IsTransientTransport(err) {
			h.reply(msg.Chat.ID, "Не удалось отправить ответ, попробуйте прислать его ещё раз", nil)
			return true
		}
		h.reply(msg.Chat.ID, h.describeError(err), nil)
		return true
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Ответ опубликован (сообщение #%d)", messageID), nil)
	return true
}

// tryHandleComposerContent перехватывает контент и ввод времени в рамках
// активного черновика.
func (h *Handler) tryHandleComposerContent(ctx context.Context, msg *tgbotapi.Message) bool {
	session, ok := h.composerUC.Session(msg.From.ID)
	if !ok {
		return false
	}
	switch session.State {
	case domain.SessionSelectingChannel:
		h.reply(msg.Chat.ID, "Сначала выберите канал кнопкой выше или отмените пост: /cancel", nil)
		return true
	case domain.SessionScheduling:
		input := strings.TrimSpace(msg.Text)
		if input == "" {
			h.reply(msg.Chat.ID, "Пришлите время текстом, например 14:30 или завтра 09:00", h.schedulePresetKeyboard())
			return true
		}
		h.handleScheduleTime(ctx, msg.Chat.ID, msg.From.ID, input)
		return true
	}
	block, ok := extractBlock(msg)
	if !ok {
		h.reply(msg.Chat.ID, "Поддерживаются текст, фото, видео и документы", nil)
		return true
	}
	count, err := h.composerUC.Append(ctx, msg.From.ID, block)
	if err != nil {
		h.reply(msg.Chat.ID, h.describeError(err), nil)
		return true
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Блок %d добавлен. Отправьте следующий или соберите пост кнопками ниже.", count), h.draftKeyboard())
	return true
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

// replyHTML отправляет текст с HTML-разметкой: предпросмотр и карточки
// каналов содержат теги выделения.
func (h *Handler) replyHTML(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

// describeError превращает ошибки сценариев в подсказку пользователю.
func (h *Handler) describeError(err error) string {
	switch {
	case errors.Is(err, composer.ErrNoChannels):
		return "Сначала добавьте канал: /addchannel"
	case errors.Is(err, composer.ErrNoSession):
		return "Нет активного черновика. Начните с /newpost"
	case errors.Is(err, composer.ErrNoChannelChosen):
		return "Сначала выберите канал для публикации"
	case errors.Is(err, composer.ErrEmptyPost):
		return "Пост пуст. Добавьте хотя бы один блок"
	case errors.Is(err, composer.ErrTooManyBlocks):
		return "Достигнут лимит блоков для одного поста. Отправьте этот пост и начните следующий"
	case errors.Is(err, composer.ErrPastTime):
		return "Это время уже прошло. Укажите время в будущем"
	case errors.Is(err, composer.ErrBadTime):
		return "Не удалось распознать время. Примеры: 14:30, завтра 09:00, 09:00 25.12.2026"
	case errors.Is(err, registry.ErrRefInvalid):
		return "Не похоже на канал. Перешлите сообщение из канала или пришлите его @username"
	case errors.Is(err, registry.ErrInvalidTimezone):
		return "Не удалось распознать часовой пояс. Пример: Europe/Moscow"
	case errors.Is(err, schedule.ErrAlreadyFired):
		return "Эта запись уже сработала или отменена"
	case errors.Is(err, reply.ErrNoPending):
		return "Нет активного ответа. Нажмите «Ответить» под уведомлением о посте"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Вы не администратор этого канала"
	case errors.Is(err, domain.ErrNotFound):
		return "Не найдено. Проверьте /mychannels или начните с /start"
	case errors.Is(err, domain.ErrValidation):
		return "Проверьте данные и попробуйте ещё раз"
	default:
		return "Не получилось. Попробуйте позже"
	}
}

// extractBlock собирает блок контента из сообщения. Для фото Telegram
// присылает массив размеров, последний элемент самый крупный.
func extractBlock(msg *tgbotapi.Message) (domain.ContentBlock, bool) {
	switch {
	case len(msg.Photo) > 0:
		photo := msg.Photo[len(msg.Photo)-1]
		return domain.ContentBlock{
			Kind:     domain.BlockPhoto,
			MediaRef: photo.FileID,
			Text:     msg.Caption,
			Entities: telegram.FromAPIEntities(msg.CaptionEntities),
		}, true
	case msg.Video != nil:
		return domain.ContentBlock{
			Kind:     domain.BlockVideo,
			MediaRef: msg.Video.FileID,
			Text:     msg.Caption,
			Entities: telegram.FromAPIEntities(msg.CaptionEntities),
		}, true
	case msg.Document != nil:
		return domain.ContentBlock{
			Kind:     domain.BlockDocument,
			MediaRef: msg.Document.FileID,
			Text:     msg.Caption,
			Entities: telegram.FromAPIEntities(msg.CaptionEntities),
		}, true
	case strings.TrimSpace(msg.Text) != "":
		return domain.ContentBlock{
			Kind:     domain.BlockText,
			Text:     msg.Text,
			Entities: telegram.FromAPIEntities(msg.Entities),
		}, true
	}
	return domain.ContentBlock{}, false
}

func channelLabel(channel domain.Channel) string {
	if channel.Username != "" {
		return fmt.Sprintf("«%s» (@%s)", channel.Title, channel.Username)
	}
	return fmt.Sprintf("«%s»", channel.Title)
}

func parseID(data string) int64 {
	parts := strings.Split(data, ":")
	if len(parts) != 2 {
		return 0
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func parseReplyTarget(data string) (channelID, messageID int64) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return 0, 0
	}
	channelID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0
	}
	messageID, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0
	}
	return channelID, messageID
}

func parseTimezonePick(data string) (int64, string) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return 0, ""
	}
	channelID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, ""
	}
	return channelID, parts[2]
}
