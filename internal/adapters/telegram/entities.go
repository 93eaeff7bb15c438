package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-control-bot/internal/domain"
)

// FromAPIEntities переводит элементы форматирования Bot API в доменные.
// Смещения и длины сохраняются без изменений.
func FromAPIEntities(entities []tgbotapi.MessageEntity) []domain.MessageEntity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]domain.MessageEntity, 0, len(entities))
	for _, e := range entities {
		ent := domain.MessageEntity{
			Type:     e.Type,
			Offset:   e.Offset,
			Length:   e.Length,
			URL:      e.URL,
			Language: e.Language,
		}
		if e.User != nil {
			ent.UserID = e.User.ID
		}
		out = append(out, ent)
	}
	return out
}

func toAPIEntities(entities []domain.MessageEntity) []tgbotapi.MessageEntity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]tgbotapi.MessageEntity, 0, len(entities))
	for _, e := range entities {
		ent := tgbotapi.MessageEntity{
			Type:     e.Type,
			Offset:   e.Offset,
			Length:   e.Length,
			URL:      e.URL,
			Language: e.Language,
		}
		if e.UserID != 0 {
			ent.User = &tgbotapi.User{ID: e.UserID}
		}
		out = append(out, ent)
	}
	return out
}
