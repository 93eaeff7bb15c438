package composer

import (
	"context"
	"strings"
	"testing"
	"time"

	"tg-control-bot/internal/domain"
	"tg-control-bot/internal/usecase/delivery"
	"tg-control-bot/internal/usecase/registry"
)

type flowChannels struct {
	next int64
	m    map[int64]domain.Channel
}

func newFlowChannels() *flowChannels {
	return &flowChannels{m: make(map[int64]domain.Channel)}
}

func (c *flowChannels) UpsertChannel(ref domain.ChannelRef, ownerID int64) (domain.Channel, error) {
	for _, ch := range c.m {
		if ch.TGChatID == ref.TGChatID {
			ch.Title = ref.Title
			ch.Username = ref.Username
			c.m[ch.ID] = ch
			return ch, nil
		}
	}
	c.next++
	ch := domain.Channel{ID: c.next, TGChatID: ref.TGChatID, Title: ref.Title, Username: ref.Username, OwnerID: ownerID}
	c.m[ch.ID] = ch
	return ch, nil
}

func (c *flowChannels) GetChannel(id int64) (domain.Channel, error) {
	ch, ok := c.m[id]
	if !ok {
		return domain.Channel{}, domain.ErrNotFound
	}
	return ch, nil
}

func (c *flowChannels) GetChannelByTGChatID(tgChatID int64) (domain.Channel, error) {
	for _, ch := range c.m {
		if ch.TGChatID == tgChatID {
			return ch, nil
		}
	}
	return domain.Channel{}, domain.ErrNotFound
}

func (c *flowChannels) ListUserChannels(userID int64) ([]domain.Channel, error) {
	var out []domain.Channel
	for _, ch := range c.m {
		if ch.HasAdmin(userID) {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (c *flowChannels) AddAdmin(channelID, userID int64) error {
	ch := c.m[channelID]
	if !ch.HasAdmin(userID) {
		ch.AdminIDs = append(ch.AdminIDs, userID)
	}
	c.m[channelID] = ch
	return nil
}

func (c *flowChannels) BindCredential(channelID int64, token string) error {
	ch := c.m[channelID]
	ch.BotToken = token
	c.m[channelID] = ch
	return nil
}

func (c *flowChannels) SetTimezone(channelID int64, tz string) error {
	ch := c.m[channelID]
	ch.Timezone = tz
	c.m[channelID] = ch
	return nil
}

type flowPosts struct {
	next int64
	m    map[int64]domain.Post
}

func (p *flowPosts) CreatePost(post domain.Post) (domain.Post, error) {
	p.next++
	post.ID = p.next
	post.CreatedAt = time.Now().UTC()
	p.m[post.ID] = post
	return post, nil
}

func (p *flowPosts) GetPost(id int64) (domain.Post, error) {
	post, ok := p.m[id]
	if !ok {
		return domain.Post{}, domain.ErrNotFound
	}
	return post, nil
}

func (p *flowPosts) UpdatePostStatus(id int64, status domain.PostStatus, reason string) error {
	post := p.m[id]
	post.Status = status
	post.FailReason = reason
	p.m[id] = post
	return nil
}

func (p *flowPosts) AppendDeliveredID(postID, tgMessageID int64) error {
	post := p.m[postID]
	post.DeliveredIDs = append(post.DeliveredIDs, tgMessageID)
	p.m[postID] = post
	return nil
}

func (p *flowPosts) MarkPostSent(id int64, sentAt time.Time) error {
	post := p.m[id]
	post.Status = domain.PostStatusSent
	post.SentAt = &sentAt
	p.m[id] = post
	return nil
}

func (p *flowPosts) ListScheduledByAuthor(int64) ([]domain.Post, error) { return nil, nil }
func (p *flowPosts) CountPostsByStatus() (map[domain.PostStatus]int, error) {
	return nil, nil
}

type flowGateway struct {
	nextMsgID int64
	texts     []string
	tokens    []string
}

func (g *flowGateway) GetMembership(context.Context, int64, int64) (domain.MemberRole, error) {
	return domain.MemberRoleAdministrator, nil
}

func (g *flowGateway) ResolveChannel(context.Context, string) (domain.ChannelRef, error) {
	return domain.ChannelRef{}, domain.ErrNotFound
}

func (g *flowGateway) ValidateCredential(context.Context, string) (domain.BotProfile, error) {
	return domain.BotProfile{TGBotID: 1001, Username: "poster_bot"}, nil
}

func (g *flowGateway) SendText(_ context.Context, token string, _ int64, text string, _ []domain.MessageEntity, _ int64) (int64, error) {
	g.nextMsgID++
	g.tokens = append(g.tokens, token)
	g.texts = append(g.texts, text)
	return g.nextMsgID, nil
}

func (g *flowGateway) SendMedia(_ context.Context, token string, _ int64, block domain.ContentBlock, _ int64) (int64, error) {
	g.nextMsgID++
	g.tokens = append(g.tokens, token)
	g.texts = append(g.texts, block.MediaRef)
	return g.nextMsgID, nil
}

// Сквозной путь: регистрация канала, привязка бота, сборка поста,
// немедленная отправка и доставка задачей из очереди.
func TestComposeAndDeliverFlow(t *testing.T) {
	ctx := context.Background()
	users := &stubUsers{user: domain.User{ID: 1, TGUserID: 42}}
	channels := newFlowChannels()
	posts := &flowPosts{m: make(map[int64]domain.Post)}
	gateway := &flowGateway{}
	queue := &memQueue{}
	audit := &memAudit{}

	reg := registry.NewService(channels, users, gateway, audit)
	comp := NewService(newMemSessions(), users, channels, posts, &memEntries{}, queue, audit, 10, 3)
	courier := delivery.NewService(posts, channels, gateway, audit, 3, time.Millisecond)

	channel, err := reg.ClaimForwarded(ctx, 42, domain.ChannelRef{TGChatID: -100500, Title: "Новости"})
	if err != nil {
		t.Fatalf("регистрация канала: %v", err)
	}
	if _, err := reg.BindCredential(ctx, 42, channel.ID, "1001:abc"); err != nil {
		t.Fatalf("привязка бота: %v", err)
	}

	list, err := comp.StartPost(ctx, 42)
	if err != nil {
		t.Fatalf("начало поста: %v", err)
	}
	if len(list) != 1 || list[0].ID != channel.ID {
		t.Fatalf("ожидали зарегистрированный канал на выбор, получили %+v", list)
	}
	if _, err := comp.SelectChannel(ctx, 42, channel.ID); err != nil {
		t.Fatalf("выбор канала: %v", err)
	}
	if _, err := comp.Append(ctx, 42, domain.ContentBlock{Kind: domain.BlockText, Text: "Hello"}); err != nil {
		t.Fatalf("добавление блока: %v", err)
	}
	preview, err := comp.Preview(ctx, 42)
	if err != nil {
		t.Fatalf("предпросмотр: %v", err)
	}
	if !strings.Contains(preview, "1. 📝 Hello") {
		t.Fatalf("предпросмотр без блока: %q", preview)
	}
	post, err := comp.SendNow(ctx, 42)
	if err != nil {
		t.Fatalf("отправка: %v", err)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].PostID != post.ID {
		t.Fatalf("ожидали задачу доставки поста %d, получили %+v", post.ID, queue.jobs)
	}

	delivered, err := courier.Deliver(ctx, queue.jobs[0].PostID)
	if err != nil {
		t.Fatalf("доставка: %v", err)
	}
	if delivered.Status != domain.PostStatusSent {
		t.Fatalf("ожидали статус sent, получили %s", delivered.Status)
	}
	if len(delivered.DeliveredIDs) != 1 {
		t.Fatalf("ожидали 1 доставленный блок, получили %v", delivered.DeliveredIDs)
	}
	if len(gateway.texts) != 1 || gateway.texts[0] != "Hello" {
		t.Fatalf("в канал ушло не то: %v", gateway.texts)
	}
	if gateway.tokens[0] != "1001:abc" {
		t.Fatalf("отправлять должен привязанный бот, получили токен %q", gateway.tokens[0])
	}

	stored, err := posts.GetPost(post.ID)
	if err != nil {
		t.Fatalf("чтение поста: %v", err)
	}
	if stored.Status != domain.PostStatusSent || stored.SentAt == nil {
		t.Fatalf("пост должен быть помечен отправленным: %+v", stored)
	}
}
