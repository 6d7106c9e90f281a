// Package memory provides the in-process session store for chat history and
// topic state.
package memory

import (
	"sync"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
)

// SessionStore keeps per-session conversation turns and the derived topic.
// Safe for concurrent use across sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]domain.Turn
	topics   map[string]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string][]domain.Turn),
		topics:   make(map[string]string),
	}
}

// History returns a copy of the session's turns in append order.
func (s *SessionStore) History(sessionID string) []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	if len(turns) == 0 {
		return nil
	}
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out
}

func (s *SessionStore) Append(sessionID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], domain.Turn{Role: role, Content: content})
}

func (s *SessionStore) Topic(sessionID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topics[sessionID]
}

func (s *SessionStore) SetTopic(sessionID, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[sessionID] = topic
}

// Clear drops one session's history and topic.
func (s *SessionStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.topics, sessionID)
}
