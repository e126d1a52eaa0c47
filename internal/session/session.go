// Package session keeps per-caller state between requests. A Session is an
// explicit value handed to every identity-bearing call; stores persist it and
// a signed cookie carries its id.
package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// LoginStateKey is the attribute holding the id of the logged-in user.
const LoginStateKey = "user_login_state"

// Session is a keyed attribute map. It is safe for concurrent use.
type Session struct {
	mu      sync.RWMutex
	id      string
	retired string
	values  map[string]json.RawMessage
	dirty   bool
	fresh   bool
}

// New returns an empty session with a random id.
func New() *Session {
	return &Session{id: uuid.NewString(), values: map[string]json.RawMessage{}, fresh: true}
}

func restore(id string, values map[string]json.RawMessage) *Session {
	if values == nil {
		values = map[string]json.RawMessage{}
	}
	return &Session{id: id, values: values}
}

// ID returns the session id.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Regenerate moves the session to a new random id and keeps its attributes.
// The stored copy under the previous id is destroyed on the next commit, so a
// token issued before the change stops resolving.
func (s *Session) Regenerate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh && s.retired == "" {
		s.retired = s.id
	}
	s.id = uuid.NewString()
	s.dirty = true
}

// retiredID returns the id abandoned by Regenerate, if it was ever stored.
func (s *Session) retiredID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retired
}

func (s *Session) clearRetired() {
	s.mu.Lock()
	s.retired = ""
	s.mu.Unlock()
}

// Fresh reports whether the session was created during this request.
func (s *Session) Fresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fresh
}

// Dirty reports whether the session changed since it was loaded.
func (s *Session) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Empty reports whether the session holds no attributes.
func (s *Session) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values) == 0
}

// Set stores v under key as JSON.
func (s *Session) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: encode %q: %w", key, err)
	}
	s.mu.Lock()
	s.values[key] = raw
	s.dirty = true
	s.mu.Unlock()
	return nil
}

// Get decodes the attribute under key into dst. It reports false when the key is absent.
func (s *Session) Get(key string, dst any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("session: decode %q: %w", key, err)
	}
	return true, nil
}

// Delete removes key and reports whether it was present.
func (s *Session) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return false
	}
	delete(s.values, key)
	s.dirty = true
	return true
}

// BindUser records id as the logged-in user.
func (s *Session) BindUser(id uint) error {
	return s.Set(LoginStateKey, id)
}

// UserID returns the logged-in user id, if any. An undecodable value counts as absent.
func (s *Session) UserID() (uint, bool) {
	var id uint
	ok, err := s.Get(LoginStateKey, &id)
	if !ok || err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// ClearUser removes the login state and reports whether a user was bound.
func (s *Session) ClearUser() bool {
	return s.Delete(LoginStateKey)
}

func (s *Session) snapshot() map[string]json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Session) markClean() {
	s.mu.Lock()
	s.dirty = false
	s.fresh = false
	s.mu.Unlock()
}
