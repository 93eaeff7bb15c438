package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/infra/metrics"
)

// Gateway выполняет операции Bot API от имени нужного бота. Клиенты создаются
// по токену лениво и переиспользуются; пустой токен означает собственного бота
// системы. Отправки проходят через общий rate limiter.
type Gateway struct {
	primaryToken string
	httpClient   *http.Client
	limiter      *rate.Limiter
	log          zerolog.Logger

	mu      sync.Mutex
	clients map[string]*tgbotapi.BotAPI
}

// NewGateway создаёт шлюз с собственным токеном системы.
func NewGateway(primaryToken string, ratePerSec int, logger zerolog.Logger) *Gateway {
	if ratePerSec <= 0 {
		ratePerSec = 25
	}
	return &Gateway{
		primaryToken: primaryToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		limiter:      rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:          logger,
		clients:      make(map[string]*tgbotapi.BotAPI),
	}
}

// GetMembership возвращает роль пользователя в чате.
func (g *Gateway) GetMembership(ctx context.Context, chatID, tgUserID int64) (domain.MemberRole, error) {
	bot, err := g.client("")
	if err != nil {
		return "", err
	}
	start := time.Now()
	member, err := bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: tgUserID},
	})
	metrics.ObserveNetworkRequest("telegram", "get_chat_member", "bot_api", start, err)
	if err != nil {
		return "", classify("getChatMember", err)
	}
	switch member.Status {
	case "creator":
		return domain.MemberRoleCreator, nil
	case "administrator":
		return domain.MemberRoleAdministrator, nil
	case "member":
		return domain.MemberRoleMember, nil
	default:
		return domain.MemberRoleOutsider, nil
	}
}

// ResolveChannel находит канал по @username либо числовому идентификатору.
func (g *Gateway) ResolveChannel(ctx context.Context, ref string) (domain.ChannelRef, error) {
	bot, err := g.client("")
	if err != nil {
		return domain.ChannelRef{}, err
	}
	cfg := tgbotapi.ChatInfoConfig{}
	trimmed := strings.TrimSpace(ref)
	if id, parseErr := strconv.ParseInt(trimmed, 10, 64); parseErr == nil {
		cfg.ChatConfig = tgbotapi.ChatConfig{ChatID: id}
	} else {
		handle := trimmed
		if !strings.HasPrefix(handle, "@") {
			handle = "@" + handle
		}
		cfg.ChatConfig = tgbotapi.ChatConfig{SuperGroupUsername: handle}
	}
	start := time.Now()
	chat, err := bot.GetChat(cfg)
	metrics.ObserveNetworkRequest("telegram", "get_chat", "bot_api", start, err)
	if err != nil {
		return domain.ChannelRef{}, classify("getChat", err)
	}
	if !chat.IsChannel() {
		return domain.ChannelRef{}, fmt.Errorf("%w: %q не является каналом", domain.ErrValidation, trimmed)
	}
	return domain.ChannelRef{TGChatID: chat.ID, Title: chat.Title, Username: chat.UserName}, nil
}

// ValidateCredential проверяет токен бота и возвращает его профиль.
func (g *Gateway) ValidateCredential(ctx context.Context, token string) (domain.BotProfile, error) {
	if strings.TrimSpace(token) == "" {
		return domain.BotProfile{}, fmt.Errorf("%w: пустой токен", domain.ErrValidation)
	}
	bot, err := g.client(token)
	if err != nil {
		return domain.BotProfile{}, err
	}
	return domain.BotProfile{TGBotID: bot.Self.ID, Username: bot.Self.UserName}, nil
}

// SendText отправляет текстовый блок и возвращает идентификатор сообщения.
func (g *Gateway) SendText(ctx context.Context, token string, chatID int64, text string, entities []domain.MessageEntity, replyTo int64) (int64, error) {
	bot, err := g.client(token)
	if err != nil {
		return 0, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.Entities = toAPIEntities(entities)
	if replyTo != 0 {
		msg.ReplyToMessageID = int(replyTo)
	}
	start := time.Now()
	sent, err := bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram", "send_message", "bot_api", start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		return 0, classify("sendMessage", err)
	}
	return int64(sent.MessageID), nil
}

// SendMedia отправляет медиа-блок с подписью и возвращает идентификатор сообщения.
func (g *Gateway) SendMedia(ctx context.Context, token string, chatID int64, block domain.ContentBlock, replyTo int64) (int64, error) {
	bot, err := g.client(token)
	if err != nil {
		return 0, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var (
		cfg tgbotapi.Chattable
		op  string
	)
	switch block.Kind {
	case domain.BlockPhoto:
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(block.MediaRef))
		photo.Caption = block.Text
		photo.CaptionEntities = toAPIEntities(block.Entities)
		photo.ReplyToMessageID = int(replyTo)
		cfg, op = photo, "send_photo"
	case domain.BlockVideo:
		video := tgbotapi.NewVideo(chatID, tgbotapi.FileID(block.MediaRef))
		video.Caption = block.Text
		video.CaptionEntities = toAPIEntities(block.Entities)
		video.ReplyToMessageID = int(replyTo)
		cfg, op = video, "send_video"
	case domain.BlockDocument:
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileID(block.MediaRef))
		doc.Caption = block.Text
		doc.CaptionEntities = toAPIEntities(block.Entities)
		doc.ReplyToMessageID = int(replyTo)
		cfg, op = doc, "send_document"
	default:
		return 0, domain.NewPermanentTransportError("sendMedia", fmt.Errorf("неподдерживаемый тип блока %q", block.Kind))
	}

	start := time.Now()
	sent, err := bot.Send(cfg)
	metrics.ObserveNetworkRequest("telegram", op, "bot_api", start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		return 0, classify(op, err)
	}
	return int64(sent.MessageID), nil
}

func (g *Gateway) client(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		token = g.primaryToken
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if bot, ok := g.clients[token]; ok {
		return bot, nil
	}
	start := time.Now()
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, g.httpClient)
	metrics.ObserveNetworkRequest("telegram", "get_me", "bot_api", start, err)
	if err != nil {
		return nil, classify("getMe", err)
	}
	g.clients[token] = bot
	return bot, nil
}

// classify разделяет ошибки Bot API на повторяемые и окончательные:
// 429 и 5xx считаются временными, остальные коды — окончательными,
// сетевые сбои без кода ответа — временными.
func classify(op string, err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return domain.NewTransientTransportError(op, err)
		}
		return domain.NewPermanentTransportError(op, err)
	}
	return domain.NewTransientTransportError(op, err)
}
