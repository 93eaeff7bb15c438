package telegram

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-control-bot/internal/domain"
)

func TestClassifyAPIErrors(t *testing.T) {
	cases := map[string]struct {
		err       error
		transient bool
	}{
		"flood limit": {err: &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}, transient: true},
		"server":      {err: &tgbotapi.Error{Code: 502, Message: "Bad Gateway"}, transient: true},
		"bad request": {err: &tgbotapi.Error{Code: 400, Message: "chat not found"}, transient: false},
		"forbidden":   {err: &tgbotapi.Error{Code: 403, Message: "bot was kicked"}, transient: false},
		"network":     {err: errors.New("connection reset"), transient: true},
	}

	for name, tc := range cases {
		got := classify("send", tc.err)
		if domain.IsTransientTransport(got) != tc.transient {
			t.Fatalf("%s: ожидали transient=%v, получили %v", name, tc.transient, got)
		}
		if tc.transient && domain.IsPermanentTransport(got) {
			t.Fatalf("%s: ошибка не может быть одновременно временной и окончательной", name)
		}
	}
}

func TestEntitiesRoundTrip(t *testing.T) {
	api := []tgbotapi.MessageEntity{
		{Type: "bold", Offset: 0, Length: 5},
		{Type: "text_link", Offset: 6, Length: 4, URL: "https://example.com"},
		{Type: "text_mention", Offset: 11, Length: 3, User: &tgbotapi.User{ID: 42}},
		{Type: "pre", Offset: 15, Length: 7, Language: "go"},
	}

	got := toAPIEntities(FromAPIEntities(api))
	if len(got) != len(api) {
		t.Fatalf("ожидали %d элементов, получили %d", len(api), len(got))
	}
	for i := range api {
		if got[i].Type != api[i].Type || got[i].Offset != api[i].Offset || got[i].Length != api[i].Length {
			t.Fatalf("элемент %d искажён: %+v", i, got[i])
		}
	}
	if got[1].URL != "https://example.com" {
		t.Fatalf("ссылка потеряна: %+v", got[1])
	}
	if got[2].User == nil || got[2].User.ID != 42 {
		t.Fatalf("упоминание пользователя потеряно: %+v", got[2])
	}
	if got[3].Language != "go" {
		t.Fatalf("язык блока кода потерян: %+v", got[3])
	}
}

func TestFromAPIEntitiesEmpty(t *testing.T) {
	if got := FromAPIEntities(nil); got != nil {
		t.Fatalf("ожидали nil, получили %v", got)
	}
}
