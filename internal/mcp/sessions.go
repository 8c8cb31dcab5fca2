// ABOUTME: In-memory MCP sessions keyed by the Mcp-Session-Id header
// ABOUTME: Sessions remember who they act as and expire after a period of disuse

package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// mcpSession is one initialized client.
type mcpSession struct {
	id         string
	username   string // fixed author for send_message, empty when anonymous
	ownerToken string // token the session was created with; required to end it
	lastUsed   time.Time
}

// sessionStore holds live sessions. A session idle for longer than idleTTL is
// dropped on the next lookup or sweep. A zero idleTTL keeps sessions forever.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*mcpSession
	idleTTL  time.Duration
	now      func() time.Time
}

func newSessionStore(idleTTL time.Duration, now func() time.Time) *sessionStore {
	if now == nil {
		now = time.Now
	}
	return &sessionStore{sessions: make(map[string]*mcpSession), idleTTL: idleTTL, now: now}
}

func (s *sessionStore) create(username, ownerToken string) *mcpSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	sess := &mcpSession{
		id:         uuid.New().String(),
		username:   username,
		ownerToken: ownerToken,
		lastUsed:   s.now(),
	}
	s.sessions[sess.id] = sess
	return sess
}

// touch returns the session and marks it used.
func (s *sessionStore) touch(id string) (*mcpSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.expiredLocked(sess) {
		delete(s.sessions, id)
		return nil, false
	}
	sess.lastUsed = s.now()
	return sess, true
}

func (s *sessionStore) delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *sessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.sessions)
}

func (s *sessionStore) expiredLocked(sess *mcpSession) bool {
	return s.idleTTL > 0 && s.now().Sub(sess.lastUsed) > s.idleTTL
}

func (s *sessionStore) sweepLocked() {
	for id, sess := range s.sessions {
		if s.expiredLocked(sess) {
			delete(s.sessions, id)
		}
	}
}
