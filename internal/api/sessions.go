package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/traversefi/traverse/internal/account"
	"github.com/traversefi/traverse/internal/processor"
)

// session is one transfer under construction, owned by one user.
type session struct {
	id        string
	owner     string
	source    account.Account
	proc      *processor.Processor
	createdAt time.Time
}

// sessionStore holds the live transfer sessions.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

func (s *sessionStore) create(owner string, source account.Account, proc *processor.Processor) *session {
	sess := &session{
		id:        uuid.New().String(),
		owner:     owner,
		source:    source,
		proc:      proc,
		createdAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func (s *sessionStore) get(id string) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *sessionStore) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// cancelAll abandons every live session, releasing any locked quotes.
func (s *sessionStore) cancelAll(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.proc.Cancel(ctx)
	}
}
