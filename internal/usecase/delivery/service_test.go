package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tg-control-bot/internal/domain"
)

type sentCall struct {
	kind    domain.BlockKind
	text    string
	replyTo int64
}

type fakeGateway struct {
	calls  []sentCall
	errs   []error
	nextID int64
}

func (f *fakeGateway) GetMembership(context.Context, int64, int64) (domain.MemberRole, error) {
	return domain.MemberRoleMember, nil
}
func (f *fakeGateway) ResolveChannel(context.Context, string) (domain.ChannelRef, error) {
	return domain.ChannelRef{}, nil
}
func (f *fakeGateway) ValidateCredential(context.Context, string) (domain.BotProfile, error) {
	return domain.BotProfile{}, nil
}
func (f *fakeGateway) SendText(_ context.Context, _ string, _ int64, text string, _ []domain.MessageEntity, replyTo int64) (int64, error) {
	return f.send(domain.BlockText, text, replyTo)
}
func (f *fakeGateway) SendMedia(_ context.Context, _ string, _ int64, block domain.ContentBlock, replyTo int64) (int64, error) {
	return f.send(block.Kind, block.Text, replyTo)
}

func (f *fakeGateway) send(kind domain.BlockKind, text string, replyTo int64) (int64, error) {
	f.calls = append(f.calls, sentCall{kind: kind, text: text, replyTo: replyTo})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	f.nextID++
	return 100 + f.nextID, nil
}

type fakePosts struct {
	post      domain.Post
	delivered []int64
	statuses  []string
	sentAt    *time.Time
}

func (f *fakePosts) CreatePost(p domain.Post) (domain.Post, error) { return p, nil }
func (f *fakePosts) GetPost(int64) (domain.Post, error)            { return f.post, nil }
func (f *fakePosts) UpdatePostStatus(_ int64, status domain.PostStatus, reason string) error {
	f.statuses = append(f.statuses, string(status)+":"+reason)
	return nil
}
func (f *fakePosts) AppendDeliveredID(_ int64, msgID int64) error {
	f.delivered = append(f.delivered, msgID)
	return nil
}
func (f *fakePosts) MarkPostSent(_ int64, at time.Time) error {
	f.sentAt = &at
	return nil
}
func (f *fakePosts) ListScheduledByAuthor(int64) ([]domain.Post, error)     { return nil, nil }
func (f *fakePosts) CountPostsByStatus() (map[domain.PostStatus]int, error) { return nil, nil }

type fakeChannels struct {
	channel domain.Channel
}

func (f *fakeChannels) UpsertChannel(domain.ChannelRef, int64) (domain.Channel, error) {
	return f.channel, nil
}
func (f *fakeChannels) GetChannel(int64) (domain.Channel, error)           { return f.channel, nil }
func (f *fakeChannels) GetChannelByTGChatID(int64) (domain.Channel, error) { return f.channel, nil }
func (f *fakeChannels) ListUserChannels(int64) ([]domain.Channel, error)   { return nil, nil }
func (f *fakeChannels) AddAdmin(int64, int64) error                        { return nil }
func (f *fakeChannels) BindCredential(int64, string) error                 { return nil }
func (f *fakeChannels) SetTimezone(int64, string) error                    { return nil }

type fakeAudit struct {
	events []domain.AuditEvent
}

func (f *fakeAudit) RecordAuditEvent(_ context.Context, event domain.AuditEvent) error {
	f.events = append(f.events, event)
	return nil
}

func textBlocks(texts ...string) []domain.ContentBlock {
	blocks := make([]domain.ContentBlock, 0, len(texts))
	for _, text := range texts {
		blocks = append(blocks, domain.ContentBlock{Kind: domain.BlockText, Text: text})
	}
	return blocks
}

func TestDeliverAllBlocks(t *testing.T) {
	posts := &fakePosts{post: domain.Post{
		ID:        1,
		ChannelID: 7,
		Status:    domain.PostStatusSending,
		Blocks:    textBlocks("первый", "второй", "третий"),
	}}
	gw := &fakeGateway{}
	audit := &fakeAudit{}
	svc := NewService(posts, &fakeChannels{channel: domain.Channel{ID: 7, TGChatID: -100500, BotToken: "123:abc"}}, gw, audit, 3, time.Millisecond)

	post, err := svc.Deliver(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if post.Status != domain.PostStatusSent {
		t.Fatalf("ожидали статус sent, получили %s", post.Status)
	}
	if len(gw.calls) != 3 {
		t.Fatalf("ожидали 3 отправки, получили %d", len(gw.calls))
	}
	if len(posts.delivered) != 3 {
		t.Fatalf("ожидали 3 зафиксированных блока, получили %v", posts.delivered)
	}
	if posts.sentAt == nil {
		t.Fatalf("ожидали пометку sent_at")
	}
	if len(audit.events) != 1 || audit.events[0].Event != domain.AuditEventPostSent {
		t.Fatalf("ожидали событие post_sent, получили %+v", audit.events)
	}
}

func TestDeliverResumesFromPrefix(t *testing.T) {
	posts := &fakePosts{post: domain.Post{
		ID:           1,
		ChannelID:    7,
		Status:       domain.PostStatusSending,
		Blocks:       textBlocks("первый", "второй", "третий"),
		DeliveredIDs: []int64{101},
	}}
	gw := &fakeGateway{}
	svc := NewService(posts, &fakeChannels{channel: domain.Channel{ID: 7, BotToken: "123:abc"}}, gw, &fakeAudit{}, 3, time.Millisecond)

	post, err := svc.Deliver(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(gw.calls) != 2 {
		t.Fatalf("ожидали доотправку 2 блоков, получили %d", len(gw.calls))
	}
	if gw.calls[0].text != "второй" {
		t.Fatalf("ожидали продолжение со второго блока, получили %q", gw.calls[0].text)
	}
	if len(post.DeliveredIDs) != 3 {
		t.Fatalf("ожидали 3 идентификатора, получили %v", post.DeliveredIDs)
	}
}

func TestDeliverWithoutCredential(t *testing.T) {
	posts := &fakePosts{post: domain.Post{ID: 1, ChannelID: 7, Status: domain.PostStatusSending, Blocks: textBlocks("текст")}}
	gw := &fakeGateway{}
	audit := &fakeAudit{}
	svc := NewService(posts, &fakeChannels{channel: domain.Channel{ID: 7}}, gw, audit, 3, time.Millisecond)

	post, err := svc.Deliver(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if post.Status != domain.PostStatusFailed {
		t.Fatalf("ожидали статус failed, получили %s", post.Status)
	}
	if post.FailReason != ErrNoCredential.Error() {
		t.Fatalf("ожидали причину про бота, получили %q", post.FailReason)
	}
	if len(gw.calls) != 0 {
		t.Fatalf("без бота не должно быть обращений к транспорту")
	}
	if len(audit.events) != 1 || audit.events[0].Event != domain.AuditEventPostFailed {
		t.Fatalf("ожидали событие post_failed, получили %+v", audit.events)
	}
}

func TestDeliverPermanentErrorStopsImmediately(t *testing.T) {
	posts := &fakePosts{post: domain.Post{ID: 1, ChannelID: 7, Status: domain.PostStatusSending, Blocks: textBlocks("текст")}}
	gw := &fakeGateway{errs: []error{
		domain.NewPermanentTransportError("sendMessage", errors.New("chat not found")),
		domain.NewPermanentTransportError("sendMessage", errors.New("chat not found")),
	}}
	svc := NewService(posts, &fakeChannels{channel: domain.Channel{ID: 7, BotToken: "123:abc"}}, gw, &fakeAudit{}, 3, time.Millisecond)

	post, err := svc.Deliver(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if post.Status != domain.PostStatusFailed {
		t.Fatalf("ожидали статус failed, получили %s", post.Status)
	}
	if len(gw.calls) != 1 {
		t.Fatalf("постоянная ошибка не должна повторяться, получили %d попыток", len(gw.calls))
	}
	if !strings.Contains(post.FailReason, "блок 1") {
		t.Fatalf("ожидали номер блока в причине, получили %q", post.FailReason)
	}
}

func TestDeliverRetriesTransientError(t *testing.T) {
	posts := &fakePosts{post: domain.Post{ID: 1, ChannelID: 7, Status: domain.PostStatusSending, Blocks: textBlocks("текст")}}
	gw := &fakeGateway{errs: []error{
		domain.NewTransientTransportError("sendMessage", errors.New("502")),
		domain.NewTransientTransportError("sendMessage", errors.New("502")),
	}}
	svc := NewService(posts, &fakeChannels{channel: domain.Channel{ID: 7, BotToken: "123:abc"}}, gw, &fakeAudit{}, 3, time.Millisecond)

	post, err := svc.Deliver(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if post.Status != domain.PostStatusSent {
		t.Fatalf("ожидали статус sent после повторов, получили %s", post.Status)
	}
	if len(gw.calls) != 3 {
		t.Fatalf("ожидали 3 попытки, получили %d", len(gw.calls))
	}
}

func TestDeliverPartialOnExhaustedRetries(t *testing.T) {
	posts := &fakePosts{post: domain.Post{
		ID:        1,
		ChannelID: 7,
		Status:    domain.PostStatusSending,
		Blocks:    textBlocks("первый", "второй"),
	}}
	gw := &fakeGateway{errs: []error{
		nil,
		domain.NewTransientTransportError("sendMessage", errors.New("502")),
		domain.NewTransientTransportError("sendMessage", errors.New("502")),
	}}
	svc := NewService(posts, &fakeChannels{channel: domain.Channel{ID: 7, BotToken: "123:abc"}}, gw, &fakeAudit{}, 2, time.Millisecond)

	post, err := svc.Deliver(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if post.Status != domain.PostStatusPartial {
		t.Fatalf("ожидали статус partially_sent, получили %s", post.Status)
	}
	if len(post.DeliveredIDs) != 1 {
		t.Fatalf("ожидали 1 доставленный блок, получили %v", post.DeliveredIDs)
	}
	if len(gw.calls) != 3 {
		t.Fatalf("ожидали 1 отправку и 2 попытки второго блока, получили %d", len(gw.calls))
	}
}

func TestDeliverSentPostIsNoOp(t *testing.T) {
	posts := &fakePosts{post: domain.Post{ID: 1, ChannelID: 7, Status: domain.PostStatusSent, Blocks: textBlocks("текст"), DeliveredIDs: []int64{101}}}
	gw := &fakeGateway{}
	svc := NewService(posts, &fakeChannels{channel: domain.Channel{ID: 7, BotToken: "123:abc"}}, gw, &fakeAudit{}, 3, time.Millisecond)

	post, err := svc.Deliver(context.Background(), 1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if post.Status != domain.PostStatusSent {
		t.Fatalf("ожидали статус sent, получили %s", post.Status)
	}
	if len(gw.calls) != 0 || len(posts.statuses) != 0 {
		t.Fatalf("доставленный пост не должен отправляться повторно")
	}
}

func TestSendSingleRequiresCredential(t *testing.T) {
	svc := NewService(&fakePosts{}, &fakeChannels{channel: domain.Channel{ID: 7}}, &fakeGateway{}, &fakeAudit{}, 3, time.Millisecond)

	_, err := svc.SendSingle(context.Background(), 7, domain.ContentBlock{Kind: domain.BlockText, Text: "ответ"}, 55)
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("ожидали ErrNoCredential, получили %v", err)
	}
}

func TestSendSinglePassesReplyTo(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewService(&fakePosts{}, &fakeChannels{channel: domain.Channel{ID: 7, TGChatID: -100500, BotToken: "123:abc"}}, gw, &fakeAudit{}, 3, time.Millisecond)

	msgID, err := svc.SendSingle(context.Background(), 7, domain.ContentBlock{Kind: domain.BlockText, Text: "ответ"}, 55)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if msgID == 0 {
		t.Fatalf("ожидали идентификатор сообщения")
	}
	if len(gw.calls) != 1 || gw.calls[0].replyTo != 55 {
		t.Fatalf("ожидали ответ на сообщение 55, получили %+v", gw.calls)
	}
}

func TestAbandonMarksStuckPostFailed(t *testing.T) {
	posts := &fakePosts{post: domain.Post{ID: 1, ChannelID: 7, Status: domain.PostStatusSending, Blocks: textBlocks("текст")}}
	audit := &fakeAudit{}
	svc := NewService(posts, &fakeChannels{}, &fakeGateway{}, audit, 3, time.Millisecond)

	post, err := svc.Abandon(context.Background(), 1, "попытки доставки исчерпаны")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if post.Status != domain.PostStatusFailed {
		t.Fatalf("ожидали статус failed, получили %s", post.Status)
	}
	if post.FailReason != "попытки доставки исчерпаны" {
		t.Fatalf("ожидали причину про исчерпание, получили %q", post.FailReason)
	}
	if len(posts.statuses) != 1 || posts.statuses[0] != "failed:попытки доставки исчерпаны" {
		t.Fatalf("ожидали запись статуса failed, получили %v", posts.statuses)
	}
	if len(audit.events) != 1 || audit.events[0].Event != domain.AuditEventPostFailed {
		t.Fatalf("ожидали событие post_failed, получили %+v", audit.events)
	}
}

func TestAbandonKeepsDeliveredPrefixPartial(t *testing.T) {
	posts := &fakePosts{post: domain.Post{
		ID:           1,
		ChannelID:    7,
		Status:       domain.PostStatusSending,
		Blocks:       textBlocks("первый", "второй"),
		DeliveredIDs: []int64{101},
	}}
	svc := NewService(posts, &fakeChannels{}, &fakeGateway{}, &fakeAudit{}, 3, time.Millisecond)

	post, err := svc.Abandon(context.Background(), 1, "попытки доставки исчерпаны")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if post.Status != domain.PostStatusPartial {
		t.Fatalf("ожидали статус partially_sent, получили %s", post.Status)
	}
	if len(post.DeliveredIDs) != 1 {
		t.Fatalf("доставленный префикс должен сохраниться, получили %v", post.DeliveredIDs)
	}
}

func TestAbandonLeavesTerminalPostUntouched(t *testing.T) {
	posts := &fakePosts{post: domain.Post{ID: 1, ChannelID: 7, Status: domain.PostStatusSent, DeliveredIDs: []int64{101}}}
	audit := &fakeAudit{}
	svc := NewService(posts, &fakeChannels{}, &fakeGateway{}, audit, 3, time.Millisecond)

	post, err := svc.Abandon(context.Background(), 1, "попытки доставки исчерпаны")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if post.Status != domain.PostStatusSent {
		t.Fatalf("ожидали статус sent, получили %s", post.Status)
	}
	if len(posts.statuses) != 0 || len(audit.events) != 0 {
		t.Fatalf("отправленный пост не должен перезаписываться")
	}
}
