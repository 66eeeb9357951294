package memory

import (
	"context"
	"sync"
)

// SessionStore keeps per-session values in process memory. Values are copied on the way in and out.
type SessionStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewSessionStore() *SessionStore {
	return &SessionStore{data: make(map[string]map[string][]byte)}
}

func (s *SessionStore) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[sessionID][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *SessionStore) Set(ctx context.Context, sessionID, key string, value []byte) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	scope, ok := s.data[sessionID]
	if !ok {
		scope = make(map[string][]byte)
		s.data[sessionID] = scope
	}
	scope[key] = append([]byte(nil), value...)
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID, key string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	scope, ok := s.data[sessionID]
	if !ok {
		return nil
	}
	delete(scope, key)
	if len(scope) == 0 {
		delete(s.data, sessionID)
	}
	return nil
}
