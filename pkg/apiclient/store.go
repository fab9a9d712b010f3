package apiclient

import "sync"

// TokenStore holds the client's current access and refresh tokens.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	SetAccessToken(token string)
	SetTokens(accessToken, refreshToken string)
	Clear()
}

type memoryStore struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

// NewMemoryStore returns a process-local TokenStore.
func NewMemoryStore() TokenStore {
	return &memoryStore{}
}

func (s *memoryStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *memoryStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

func (s *memoryStore) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = token
}

func (s *memoryStore) SetTokens(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
	s.refreshToken = refreshToken
}

func (s *memoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.refreshToken = ""
}
