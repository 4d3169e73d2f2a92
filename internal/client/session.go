package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Session is what survives a restart: the token pair and the user it belongs
// to. Either all fields are present or the session is absent; a partial
// session is never written.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

func (s Session) valid() bool {
	return s.AccessToken != "" && s.User.ID != "" && s.User.Role != ""
}

// SessionStore persists the session as a JSON file. Load is called once at
// startup to hydrate; afterwards every mutation goes straight to disk.
type SessionStore struct {
	path string

	mu      sync.RWMutex
	current *Session
}

func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Load hydrates the store from disk. A missing or corrupt file yields an
// empty session, never an error the caller has to handle at startup.
func (s *SessionStore) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		s.current = nil
		return
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil || !session.valid() {
		s.current = nil
		return
	}
	s.current = &session
}

func (s *SessionStore) Get() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

func (s *SessionStore) Save(session Session) error {
	if !session.valid() {
		return os.ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return err
	}
	s.current = &session
	return nil
}

func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	_ = os.Remove(s.path)
}
