package session

import (
	"sync"

	"tg-control-bot/internal/domain"
)

// MemoryStore хранит сессии создания постов и ожидающие ответы в памяти процесса.
// Каждый пользователь видит только свою запись; значения копируются на входе и
// выходе, чтобы вызывающий код не делил срезы с хранилищем.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]domain.ComposerSession
	replies  map[int64]domain.ReplyThread
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]domain.ComposerSession),
		replies:  make(map[int64]domain.ReplyThread),
	}
}

// Get возвращает сессию пользователя.
func (s *MemoryStore) Get(tgUserID int64) (domain.ComposerSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[tgUserID]
	if !ok {
		return domain.ComposerSession{}, false
	}
	return copySession(sess), true
}

// Put сохраняет сессию, замещая прежнюю запись пользователя.
func (s *MemoryStore) Put(sess domain.ComposerSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.TGUserID] = copySession(sess)
}

// Delete удаляет сессию пользователя.
func (s *MemoryStore) Delete(tgUserID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tgUserID)
}

// PutReply сохраняет ожидающий ответ, замещая прежний.
func (s *MemoryStore) PutReply(thread domain.ReplyThread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[thread.TGUserID] = thread
}

// GetReply возвращает ожидающий ответ, не удаляя его.
func (s *MemoryStore) GetReply(tgUserID int64) (domain.ReplyThread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	thread, ok := s.replies[tgUserID]
	return thread, ok
}

// TakeReply возвращает и удаляет ожидающий ответ пользователя.
func (s *MemoryStore) TakeReply(tgUserID int64) (domain.ReplyThread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.replies[tgUserID]
	if !ok {
		return domain.ReplyThread{}, false
	}
	delete(s.replies, tgUserID)
	return thread, true
}

// DeleteReply удаляет ожидающий ответ пользователя.
func (s *MemoryStore) DeleteReply(tgUserID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.replies, tgUserID)
}

func copySession(sess domain.ComposerSession) domain.ComposerSession {
	out := sess
	out.Blocks = make([]domain.ContentBlock, len(sess.Blocks))
	copy(out.Blocks, sess.Blocks)
	for i, b := range sess.Blocks {
		if len(b.Entities) == 0 {
			continue
		}
		entities := make([]domain.MessageEntity, len(b.Entities))
		copy(entities, b.Entities)
		out.Blocks[i].Entities = entities
	}
	return out
}
