// Package session owns the access credential for a running client session:
// a process-wide token store and a single-flight refresh broker.
package session

import "sync"

// TokenStore holds the current access token and the session-initialized
// flag. It performs no validation; expiry checks belong to the Broker.
type TokenStore struct {
	mu          sync.Mutex
	token       string
	initialized bool
	watchers    []func(token string)
}

// NewStore creates an empty TokenStore.
func NewStore() *TokenStore {
	return &TokenStore{}
}

// Token returns the current access token, or "" when logged out.
func (s *TokenStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken replaces the current token and notifies watchers synchronously.
func (s *TokenStore) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	watchers := make([]func(string), len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	for _, w := range watchers {
		w(token)
	}
}

// Clear drops the token (logout) and notifies watchers synchronously.
func (s *TokenStore) Clear() {
	s.SetToken("")
}

// Initialized reports whether the initial session bootstrap has run.
func (s *TokenStore) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// MarkInitialized records that the initial session bootstrap has run.
func (s *TokenStore) MarkInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
}

// Watch registers a callback invoked on every SetToken/Clear with the new
// token value ("" on logout). Watchers live for the whole session; there is
// no unregister. The callback runs outside the store's lock, so it may call
// back into the store.
func (s *TokenStore) Watch(fn func(token string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}
