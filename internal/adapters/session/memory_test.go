package session

import (
	"sync"
	"testing"
	"time"

	"tg-control-bot/internal/domain"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	store := NewMemoryStore()

	if _, ok := store.Get(1); ok {
		t.Fatalf("ожидали отсутствие сессии")
	}

	sess := domain.ComposerSession{
		TGUserID:  1,
		State:     domain.SessionComposing,
		ChannelID: 10,
		Blocks:    []domain.ContentBlock{{Kind: domain.BlockText, Text: "привет"}},
		StartedAt: time.Now(),
	}
	store.Put(sess)

	got, ok := store.Get(1)
	if !ok {
		t.Fatalf("ожидали сессию пользователя 1")
	}
	if got.State != domain.SessionComposing || len(got.Blocks) != 1 {
		t.Fatalf("неожиданная сессия: %+v", got)
	}

	store.Delete(1)
	if _, ok := store.Get(1); ok {
		t.Fatalf("сессия должна быть удалена")
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	store := NewMemoryStore()
	store.Put(domain.ComposerSession{TGUserID: 1, State: domain.SessionComposing, ChannelID: 10})
	store.Put(domain.ComposerSession{TGUserID: 1, State: domain.SessionSelectingChannel})

	got, _ := store.Get(1)
	if got.State != domain.SessionSelectingChannel || got.ChannelID != 0 {
		t.Fatalf("новая сессия должна замещать старую целиком: %+v", got)
	}
}

func TestMemoryStoreCopiesBlocks(t *testing.T) {
	store := NewMemoryStore()
	blocks := []domain.ContentBlock{{
		Kind:     domain.BlockText,
		Text:     "раз",
		Entities: []domain.MessageEntity{{Type: "bold", Offset: 0, Length: 3}},
	}}
	store.Put(domain.ComposerSession{TGUserID: 1, State: domain.SessionComposing, Blocks: blocks})

	blocks[0].Text = "испорчено"
	blocks[0].Entities[0].Type = "italic"

	got, _ := store.Get(1)
	if got.Blocks[0].Text != "раз" || got.Blocks[0].Entities[0].Type != "bold" {
		t.Fatalf("хранилище не должно делить память с вызывающим кодом: %+v", got.Blocks[0])
	}

	got.Blocks[0].Text = "снова испорчено"
	again, _ := store.Get(1)
	if again.Blocks[0].Text != "раз" {
		t.Fatalf("возвращённая копия не должна менять хранилище")
	}
}

func TestMemoryStoreIsolatesUsers(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for userID := int64(1); userID <= 10; userID++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				sess, _ := store.Get(id)
				sess.TGUserID = id
				sess.State = domain.SessionComposing
				sess.Blocks = append(sess.Blocks, domain.ContentBlock{Kind: domain.BlockText, Text: "x"})
				store.Put(sess)
			}
		}(userID)
	}
	wg.Wait()

	for userID := int64(1); userID <= 10; userID++ {
		got, ok := store.Get(userID)
		if !ok {
			t.Fatalf("нет сессии пользователя %d", userID)
		}
		if got.TGUserID != userID || len(got.Blocks) != 50 {
			t.Fatalf("пользователь %d: ожидали 50 блоков, получили %d", userID, len(got.Blocks))
		}
	}
}

func TestMemoryStoreReplyTake(t *testing.T) {
	store := NewMemoryStore()
	store.PutReply(domain.ReplyThread{TGUserID: 1, ChannelID: 10, MessageID: 100})
	store.PutReply(domain.ReplyThread{TGUserID: 1, ChannelID: 20, MessageID: 200})

	if peek, ok := store.GetReply(1); !ok || peek.ChannelID != 20 {
		t.Fatalf("ожидали просмотр без удаления, получили %+v", peek)
	}

	thread, ok := store.TakeReply(1)
	if !ok {
		t.Fatalf("ожидали ожидающий ответ")
	}
	if thread.ChannelID != 20 || thread.MessageID != 200 {
		t.Fatalf("новый ответ должен замещать старый: %+v", thread)
	}
	if _, ok := store.TakeReply(1); ok {
		t.Fatalf("ответ должен извлекаться однократно")
	}
	if _, ok := store.GetReply(1); ok {
		t.Fatalf("после извлечения ответа быть не должно")
	}
}
