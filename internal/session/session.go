// Package session manages admin sessions: opaque time-limited tokens minted
// when an administrator enters through the secret path. The session store is
// an injected capability — admin operations on the moderation engine assume
// the HTTP boundary has already validated a token through a Manager.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long an admin session stays valid after creation.
const DefaultTTL = time.Hour

// Session is a server-issued admin session token with its expiry.
type Session struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Store defines the persistence interface for admin sessions.
// Implementations must be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, s Session) error
	Get(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes all sessions expired at the given time and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Manager creates and validates admin sessions against a Store.
type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager creates a session manager. A zero ttl falls back to DefaultTTL.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl}
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create mints a new session token and persists it.
func (m *Manager) Create(ctx context.Context) (Session, error) {
	now := time.Now().UTC()
	s := Session{
		Token:     uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, s); err != nil {
		return Session{}, fmt.Errorf("save admin session: %w", err)
	}
	return s, nil
}

// Validate reports whether the token names a live session. Expired sessions
// are removed as a side effect.
func (m *Manager) Validate(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	s, err := m.store.Get(ctx, token)
	if err != nil {
		log.Error().Err(err).Msg("session: lookup failed")
		return false
	}
	if s == nil {
		return false
	}
	if s.Expired(time.Now().UTC()) {
		if err := m.store.Delete(ctx, token); err != nil {
			log.Error().Err(err).Msg("session: failed to drop expired session")
		}
		return false
	}
	return true
}

// Destroy removes a session, logging out the admin.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	return m.store.Delete(ctx, token)
}

// PurgeLoop deletes expired sessions on the given interval until ctx is
// cancelled. Run it in the background alongside the server.
func (m *Manager) PurgeLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := m.store.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				log.Error().Err(err).Msg("session: purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int("purged", n).Msg("session: expired admin sessions removed")
			}
		}
	}
}
