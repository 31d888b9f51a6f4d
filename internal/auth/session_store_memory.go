package auth

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore keeps tokens in process memory. Used with
// STORE_DRIVER=memory and in tests.
type MemorySessionStore struct {
	mu     sync.RWMutex
	tokens map[string]Session
}

func NewInMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{tokens: make(map[string]Session)}
}

func (s *MemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[session.Token] = session
	return nil
}

func (s *MemorySessionStore) Find(_ context.Context, token string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.tokens[token]; ok {
		return session, nil
	}
	return Session{}, ErrSessionNotFound
}

// Delete mirrors the database store: unknown tokens yield ErrSessionNotFound.
func (s *MemorySessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token]; !ok {
		return ErrSessionNotFound
	}
	delete(s.tokens, token)
	return nil
}

func (s *MemorySessionStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for token, session := range s.tokens {
		if !session.ExpiresAt.After(cutoff) {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many tokens are held.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Has reports whether token is held.
func (s *MemorySessionStore) Has(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[token]
	return ok
}

var _ SessionStore = (*MemorySessionStore)(nil)
