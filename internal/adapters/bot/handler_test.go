package bot

import (
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/usecase/composer"
)

func TestParseID(t *testing.T) {
	if got := parseID("select_channel:42"); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := parseID("select_channel:xx"); got != 0 {
		t.Fatalf("expected 0 for garbage, got %d", got)
	}
	if got := parseID("no_id"); got != 0 {
		t.Fatalf("expected 0 for data without id, got %d", got)
	}
}

func TestParseReplyTarget(t *testing.T) {
	channelID, messageID := parseReplyTarget("reply:7:120")
	if channelID != 7 || messageID != 120 {
		t.Fatalf("expected 7/120, got %d/%d", channelID, messageID)
	}
	channelID, messageID = parseReplyTarget("reply:7")
	if channelID != 0 || messageID != 0 {
		t.Fatalf("expected zeros for short data, got %d/%d", channelID, messageID)
	}
}

func TestParseTimezonePick(t *testing.T) {
	channelID, zone := parseTimezonePick("tz_pick:3:Europe/Moscow")
	if channelID != 3 || zone != "Europe/Moscow" {
		t.Fatalf("expected 3/Europe/Moscow, got %d/%s", channelID, zone)
	}
	if channelID, zone = parseTimezonePick("tz_pick:3"); channelID != 0 || zone != "" {
		t.Fatalf("expected zeros for short data, got %d/%s", channelID, zone)
	}
}

func TestExtractBlockText(t *testing.T) {
	msg := &tgbotapi.Message{
		Text:     "привет",
		Entities: []tgbotapi.MessageEntity{{Type: "bold", Offset: 0, Length: 6}},
	}
	block, ok := extractBlock(msg)
	if !ok {
		t.Fatal("expected block from text message")
	}
	if block.Kind != domain.BlockText || block.Text != "привет" {
		t.Fatalf("unexpected block: %+v", block)
	}
	if len(block.Entities) != 1 || block.Entities[0].Type != "bold" {
		t.Fatalf("expected bold entity, got %+v", block.Entities)
	}
}

func TestExtractBlockPhotoTakesLargestSize(t *testing.T) {
	msg := &tgbotapi.Message{
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small"},
			{FileID: "large"},
		},
		Caption:         "подпись",
		CaptionEntities: []tgbotapi.MessageEntity{{Type: "italic", Offset: 0, Length: 7}},
	}
	block, ok := extractBlock(msg)
	if !ok {
		t.Fatal("expected block from photo message")
	}
	if block.Kind != domain.BlockPhoto || block.MediaRef != "large" {
		t.Fatalf("unexpected block: %+v", block)
	}
	if block.Text != "подпись" || len(block.Entities) != 1 {
		t.Fatalf("expected caption with entity, got %+v", block)
	}
}

func TestExtractBlockUnsupported(t *testing.T) {
	if _, ok := extractBlock(&tgbotapi.Message{}); ok {
		t.Fatal("expected no block for empty message")
	}
	if _, ok := extractBlock(&tgbotapi.Message{Text: "   "}); ok {
		t.Fatal("expected no block for whitespace text")
	}
}

func TestQuickPicksCoverPresetButtons(t *testing.T) {
	markup := (&Handler{}).schedulePresetKeyboard()
	for _, row := range markup.InlineKeyboard {
		for _, button := range row {
			data := *button.CallbackData
			if !strings.HasPrefix(data, "schedule_at:") {
				continue
			}
			value := strings.TrimPrefix(data, "schedule_at:")
			if _, ok := quickPicks[value]; !ok {
				t.Fatalf("no time input for button %q", data)
			}
		}
	}
}

func TestDescribeErrorKnownCases(t *testing.T) {
	h := &Handler{}
	cases := map[error]string{
		composer.ErrPastTime:   "прошло",
		composer.ErrBadTime:    "распознать время",
		domain.ErrUnauthorized: "не администратор",
	}
	for err, want := range cases {
		if got := h.describeError(err); !strings.Contains(got, want) {
			t.Fatalf("expected %q in message for %v, got %q", want, err, got)
		}
	}
	if got := h.describeError(errors.New("boom")); !strings.Contains(got, "Попробуйте позже") {
		t.Fatalf("expected fallback message, got %q", got)
	}
}

func TestDeliveryOutcomeMessageSent(t *testing.T) {
	post := domain.Post{
		ID:           9,
		ChannelID:    3,
		Status:       domain.PostStatusSent,
		Blocks:       []domain.ContentBlock{{Kind: domain.BlockText, Text: "a"}, {Kind: domain.BlockText, Text: "b"}},
		DeliveredIDs: []int64{101, 102},
	}
	channel := domain.Channel{ID: 3, Title: "Новости"}
	text, keyboard := deliveryOutcomeMessage(post, channel)
	if !strings.Contains(text, "✅") || !strings.Contains(text, "Новости") {
		t.Fatalf("unexpected text: %q", text)
	}
	if keyboard == nil {
		t.Fatal("expected reply keyboard for sent post")
	}
	data := *keyboard.InlineKeyboard[0][0].CallbackData
	if data != "reply:3:101" {
		t.Fatalf("expected reply to first delivered message, got %q", data)
	}
}

func TestDeliveryOutcomeMessagePublicChannelLink(t *testing.T) {
	post := domain.Post{
		ID:           9,
		ChannelID:    3,
		Status:       domain.PostStatusSent,
		Blocks:       []domain.ContentBlock{{Kind: domain.BlockText, Text: "a"}},
		DeliveredIDs: []int64{101},
	}
	channel := domain.Channel{ID: 3, Title: "Новости", Username: "news_channel"}
	_, keyboard := deliveryOutcomeMessage(post, channel)
	if keyboard == nil || len(keyboard.InlineKeyboard) != 2 {
		t.Fatalf("expected link and reply rows, got %+v", keyboard)
	}
	link := keyboard.InlineKeyboard[0][0]
	if link.URL == nil || *link.URL != "https://t.me/news_channel/101" {
		t.Fatalf("expected link to first delivered message, got %+v", link)
	}
}

func TestDeliveryOutcomeMessagePartial(t *testing.T) {
	post := domain.Post{
		ID:           9,
		ChannelID:    3,
		Status:       domain.PostStatusPartial,
		Blocks:       []domain.ContentBlock{{}, {}, {}},
		DeliveredIDs: []int64{101},
		FailReason:   "блок 2: таймаут",
	}
	text, keyboard := deliveryOutcomeMessage(post, domain.Channel{ID: 3, Title: "Новости"})
	if !strings.Contains(text, "1 из 3") || !strings.Contains(text, "таймаут") {
		t.Fatalf("unexpected text: %q", text)
	}
	if keyboard != nil {
		t.Fatal("expected no keyboard for partial delivery")
	}
}
