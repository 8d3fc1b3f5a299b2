package assistant

import (
	"context"
	"sync"
	"time"
)

// sessionData содержит историю сессии и метаданные для TTL.
type sessionData struct {
	messages    []Message
	createdAt   time.Time
	lastTouched time.Time
}

// MemoryHistoryStore потокобезопасное in-memory хранилище сессий с поддержкой TTL.
type MemoryHistoryStore struct {
	mu       sync.RWMutex
	sessions map[string]sessionData
	ttl      time.Duration
}

// NewMemoryHistoryStore создаёт новое in-memory хранилище.
// ttl определяет, как долго сессия живёт без активности.
// Если ttl == 0, сессии никогда не истекают.
func NewMemoryHistoryStore(ttl time.Duration) *MemoryHistoryStore {
	return &MemoryHistoryStore{
		sessions: make(map[string]sessionData),
		ttl:      ttl,
	}
}

// Get возвращает историю сообщений для сессии.
// Ленивая очистка: если сессия истекла, она удаляется и возвращается false.
func (s *MemoryHistoryStore) Get(ctx context.Context, sessionID string) ([]Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}

	if s.ttl > 0 && time.Since(data.lastTouched) > s.ttl {
		delete(s.sessions, sessionID)
		return nil, false, nil
	}

	// Возвращаем копию, чтобы избежать изменений снаружи.
	messages := make([]Message, len(data.messages))
	copy(messages, data.messages)
	return messages, true, nil
}

// Append добавляет новые сообщения к сессии, создавая её при необходимости.
func (s *MemoryHistoryStore) Append(ctx context.Context, sessionID string, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	data, ok := s.sessions[sessionID]
	if !ok {
		data = sessionData{
			messages:    make([]Message, 0, len(messages)),
			createdAt:   now,
			lastTouched: now,
		}
	}

	data.messages = append(data.messages, messages...)
	data.lastTouched = now
	s.sessions[sessionID] = data

	return nil
}

// Delete удаляет сессию.
func (s *MemoryHistoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// ClearExpired удаляет все сессии с истёкшим TTL относительно переданного now.
func (s *MemoryHistoryStore) ClearExpired(ctx context.Context, now time.Time) (int, error) {
	if s.ttl == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int
	for sessionID, data := range s.sessions {
		if now.Sub(data.lastTouched) > s.ttl {
			delete(s.sessions, sessionID)
			deleted++
		}
	}

	return deleted, nil
}
