package bot

import (
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-control-bot/internal/adapters/telegram"
	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/infra/metrics"
)

// Notifier сообщает автору поста итог доставки в личные сообщения.
type Notifier struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

func NewNotifier(bot *tgbotapi.BotAPI, log zerolog.Logger) *Notifier {
	return &Notifier{bot: bot, log: log}
}

// NotifyDeliveryOutcome отправляет автору итог по посту. Нулевой chatID
// означает, что уведомлять некого, например автора удалили.
func (n *Notifier) NotifyDeliveryOutcome(chatID int64, post domain.Post, channel domain.Channel) {
	if chatID == 0 {
		return
	}
	text, keyboard := deliveryOutcomeMessage(post, channel)
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			n.log.Error().Err(err).Int64("chat", chatID).Int64("post", post.ID).Msg("не удалось уведомить автора")
			return
		}
	}
}

// deliveryOutcomeMessage собирает текст уведомления и кнопку ответа на
// первое доставленное сообщение канала.
func deliveryOutcomeMessage(post domain.Post, channel domain.Channel) (string, *tgbotapi.InlineKeyboardMarkup) {
	title := fmt.Sprintf("канал #%d", post.ChannelID)
	if channel.ID != 0 {
		title = channelLabel(channel)
	}
	switch post.Status {
	case domain.PostStatusSent:
		text := fmt.Sprintf("✅ Пост #%d опубликован в %s, блоков: %d", post.ID, title, len(post.Blocks))
		if len(post.DeliveredIDs) == 0 || channel.ID == 0 {
			return text, nil
		}
		var rows [][]tgbotapi.InlineKeyboardButton
		if channel.Username != "" {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("👀 Открыть в канале", fmt.Sprintf("https://t.me/%s/%d", channel.Username, post.DeliveredIDs[0])),
			))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💬 Ответить на пост", fmt.Sprintf("reply:%d:%d", channel.ID, post.DeliveredIDs[0])),
		))
		keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
		return text, &keyboard
	case domain.PostStatusPartial:
		return fmt.Sprintf("⚠️ Пост #%d опубликован в %s частично: %d из %d блоков.\nПричина: %s", post.ID, title, len(post.DeliveredIDs), len(post.Blocks), post.FailReason), nil
	default:
		return fmt.Sprintf("❌ Пост #%d не опубликован в %s.\nПричина: %s", post.ID, title, post.FailReason), nil
	}
}
