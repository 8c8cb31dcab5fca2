// ABOUTME: MCP token store mapping access tokens to the username a session acts as
// ABOUTME: Tokens come from configuration and are checked when a session initializes

package mcp

import "sync"

// TokenStore maps MCP access tokens to usernames.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]string // token -> username
}

// NewTokenStore creates a token store holding tokens.
func NewTokenStore(tokens map[string]string) *TokenStore {
	s := &TokenStore{tokens: make(map[string]string, len(tokens))}
	for token, username := range tokens {
		s.tokens[token] = username
	}
	return s
}

// Add binds token to username, replacing any earlier binding.
func (s *TokenStore) Add(token, username string) {
	s.mu.Lock()
	s.tokens[token] = username
	s.mu.Unlock()
}

// Username returns the username bound to token.
func (s *TokenStore) Username(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	username, ok := s.tokens[token]
	return username, ok
}

// Revoke removes token from the store.
func (s *TokenStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// Len returns the number of tokens held.
func (s *TokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
