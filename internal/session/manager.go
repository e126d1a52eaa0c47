package session

import (
	"context"
	"errors"
	"time"
)

// Manager ties a Store to the signed token that names a session.
type Manager struct {
	store  Store
	signer *Signer
	ttl    time.Duration
}

// NewManager returns a Manager. Sessions idle for longer than ttl expire.
func NewManager(store Store, signer *Signer, ttl time.Duration) *Manager {
	return &Manager{store: store, signer: signer, ttl: ttl}
}

// Start resolves the session named by token. A blank, invalid or unknown token
// yields a fresh empty session; only store failures are returned as errors.
func (m *Manager) Start(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return New(), nil
	}
	id, err := m.signer.Parse(token)
	if err != nil {
		return New(), nil
	}
	s, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return New(), nil
	}
	return s, nil
}

// Commit persists s and returns the token the caller should hold next. An
// empty token with keep false means the cookie should be cleared. An id
// retired by Regenerate is destroyed first.
func (m *Manager) Commit(ctx context.Context, s *Session) (token string, keep bool, err error) {
	if s == nil {
		return "", false, errors.New("session: nil session")
	}
	if old := s.retiredID(); old != "" {
		if err := m.store.Destroy(ctx, old); err != nil {
			return "", false, err
		}
		s.clearRetired()
	}
	if s.Empty() {
		if !s.Fresh() {
			if err := m.store.Destroy(ctx, s.ID()); err != nil {
				return "", false, err
			}
		}
		return "", false, nil
	}
	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return "", true, err
	}
	token, err = m.signer.Sign(s.ID())
	if err != nil {
		return "", true, err
	}
	return token, true, nil
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
