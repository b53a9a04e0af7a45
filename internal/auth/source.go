package auth

import "sync"

// TokenSource yields the identity token a client dials with. ok is false
// while no identity exists yet; callers wait rather than dial anonymously.
type TokenSource interface {
	CurrentToken() (token string, ok bool)
}

// StaticToken is a TokenSource whose value can be swapped, e.g. after a
// fresh POST /session.
type StaticToken struct {
	mu    sync.RWMutex
	token string
}

func NewStaticToken(token string) *StaticToken { return &StaticToken{token: token} }

func (s *StaticToken) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *StaticToken) CurrentToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}
