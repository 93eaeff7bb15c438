package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/usecase/registry"
)

func (h *Handler) mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📝 Новый пост", "new_post"),
			tgbotapi.NewInlineKeyboardButtonData("📚 Мои каналы", "my_channels"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗓 Отложенные", "scheduled_list"),
			tgbotapi.NewInlineKeyboardButtonData("➕ Добавить канал", "add_channel"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ Помощь", "help_menu"),
		),
	)
	return &buttons
}

// draftKeyboard показывается под черновиком после каждого добавленного блока.
func (h *Handler) draftKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👁 Предпросмотр", "post_preview"),
			tgbotapi.NewInlineKeyboardButtonData("🧹 Очистить", "clear_post"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗓 Запланировать", "schedule_post"),
			tgbotapi.NewInlineKeyboardButtonData("🚀 Отправить сейчас", "send_post"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", "cancel"),
		),
	)
	return &buttons
}

func (h *Handler) channelsKeyboard(channels []domain.Channel) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(channels))
	for _, ch := range channels {
		label := ch.Title
		if !ch.Deliverable() {
			label += " ⚠️"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("select_channel:%d", ch.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", "cancel"),
	))
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func (h *Handler) manageListKeyboard(channels []domain.Channel) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(channels))
	for _, ch := range channels {
		label := ch.Title
		if ch.Deliverable() {
			label += " 🤖"
		} else {
			label += " ⚠️"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("manage_channel:%d", ch.ID)),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func (h *Handler) manageChannelKeyboard(channelID int64) *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🤖 Привязать бота", fmt.Sprintf("bind_bot:%d", channelID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🕒 Часовой пояс", fmt.Sprintf("set_tz:%d", channelID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ К списку каналов", "my_channels"),
		),
	)
	return &buttons
}

func (h *Handler) timezoneKeyboard(channelID int64) *tgbotapi.InlineKeyboardMarkup {
	zones := registry.CommonTimezones
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, (len(zones)+1)/2)
	for i := 0; i < len(zones); i += 2 {
		row := tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(zones[i], fmt.Sprintf("tz_pick:%d:%s", channelID, zones[i])),
		)
		if i+1 < len(zones) {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(zones[i+1], fmt.Sprintf("tz_pick:%d:%s", channelID, zones[i+1])))
		}
		rows = append(rows, row)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// schedulePresetKeyboard возвращает готовые кнопки выбора времени публикации.
func (h *Handler) schedulePresetKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Сегодня 09:00", "schedule_at:today_0900"),
			tgbotapi.NewInlineKeyboardButtonData("Сегодня 18:00", "schedule_at:today_1800"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Завтра 09:00", "schedule_at:tomorrow_0900"),
			tgbotapi.NewInlineKeyboardButtonData("Завтра 18:00", "schedule_at:tomorrow_1800"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", "cancel"),
		),
	)
	return &buttons
}

func (h *Handler) scheduledKeyboard(posts []domain.Post) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(posts))
	for _, post := range posts {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("❌ Отменить #%d", post.ID), fmt.Sprintf("cancel_scheduled:%d", post.ID)),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func (h *Handler) cancelReplyKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отменить ответ", "cancel_reply"),
		),
	)
	return &buttons
}
