package memory

import (
	"context"
	"sync"

	"forms-response-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRegistry.
type SessionStore struct {
	mu     sync.Mutex
	owners map[string]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		owners: make(map[string]string),
	}
}

func (s *SessionStore) Acquire(_ context.Context, groupID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.owners[groupID]; ok && current != owner {
		return domain.ErrSessionActive
	}
	s.owners[groupID] = owner
	return nil
}

// Release is a no-op unless owner holds the group.
func (s *SessionStore) Release(_ context.Context, groupID, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owners[groupID] == owner {
		delete(s.owners, groupID)
	}
}
