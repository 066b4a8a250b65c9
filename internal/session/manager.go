package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"havenresearch/internal/identity"
)

// Session is the client-held bearer-token session for the upload console.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Email        string    `json:"email,omitempty"`
}

// Expired reports whether the access token must not be used any more.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (identity.TokenPair, error)
}

// ErrSignedOut is returned when no session is stored.
var ErrSignedOut = errors.New("signed out")

// Manager owns the persisted session. All reads and writes go through it,
// so expiry checks and token use cannot race each other across call sites.
type Manager struct {
	path      string
	refresher Refresher
	now       func() time.Time
}

// NewManager creates a manager persisting the session at path.
func NewManager(path string, refresher Refresher) *Manager {
	return &Manager{path: path, refresher: refresher, now: time.Now}
}

// Get loads the stored session. ErrSignedOut when none exists.
func (m *Manager) Get() (Session, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, ErrSignedOut
		}
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		// A corrupt session file is a signed-out state, not a crash.
		return Session{}, ErrSignedOut
	}
	if s.AccessToken == "" || s.RefreshToken == "" {
		return Session{}, ErrSignedOut
	}
	return s, nil
}

// Set persists the session.
func (m *Manager) Set(s Session) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, raw, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Clear removes the stored session.
func (m *Manager) Clear() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// RefreshIfNeeded returns a session whose access token is safe to use.
// An expired session is refreshed synchronously first; on any refresh
// failure the whole session is cleared and ErrSignedOut is returned, so a
// half-valid session can never leak into a privileged call.
func (m *Manager) RefreshIfNeeded(ctx context.Context) (Session, error) {
	s, err := m.Get()
	if err != nil {
		return Session{}, err
	}
	if !s.Expired(m.now()) {
		return s, nil
	}
	pair, err := m.refresher.Refresh(ctx, s.RefreshToken)
	if err != nil {
		_ = m.Clear()
		return Session{}, ErrSignedOut
	}
	refreshed := Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    m.now().Add(time.Duration(pair.ExpiresIn) * time.Second),
		Email:        s.Email,
	}
	if err := m.Set(refreshed); err != nil {
		return Session{}, err
	}
	return refreshed, nil
}
