package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"havenresearch/internal/identity"
)

type stubRefresher struct {
	pair  identity.TokenPair
	err   error
	calls int
}

func (s *stubRefresher) Refresh(_ context.Context, refreshToken string) (identity.TokenPair, error) {
	s.calls++
	if s.err != nil {
		return identity.TokenPair{}, s.err
	}
	return s.pair, nil
}

func newTestManager(t *testing.T, refresher Refresher) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "session.json"), refresher)
}

func TestManagerGetMissingFileIsSignedOut(t *testing.T) {
	mgr := newTestManager(t, &stubRefresher{})
	if _, err := mgr.Get(); !errors.Is(err, ErrSignedOut) {
		t.Fatalf("expected ErrSignedOut, got %v", err)
	}
}

func TestManagerCorruptFileIsSignedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt session: %v", err)
	}
	mgr := NewManager(path, &stubRefresher{})
	if _, err := mgr.Get(); !errors.Is(err, ErrSignedOut) {
		t.Fatalf("expected ErrSignedOut for corrupt file, got %v", err)
	}
}

func TestManagerSetGetRoundTrip(t *testing.T) {
	mgr := newTestManager(t, &stubRefresher{})
	want := Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
		Email:        "analyst@haven.edu",
	}
	if err := mgr.Set(want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := mgr.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessToken != want.AccessToken || got.Email != want.Email {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestRefreshIfNeededSkipsFreshSession(t *testing.T) {
	refresher := &stubRefresher{}
	mgr := newTestManager(t, refresher)
	fresh := Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := mgr.Set(fresh); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := mgr.RefreshIfNeeded(context.Background())
	if err != nil {
		t.Fatalf("refresh if needed: %v", err)
	}
	if got.AccessToken != "access-1" || refresher.calls != 0 {
		t.Fatalf("fresh session must not be refreshed: %+v calls=%d", got, refresher.calls)
	}
}

func TestRefreshIfNeededRefreshesExpiredSession(t *testing.T) {
	refresher := &stubRefresher{pair: identity.TokenPair{
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
		ExpiresIn:    3600,
	}}
	mgr := newTestManager(t, refresher)
	expired := Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
		Email:        "analyst@haven.edu",
	}
	if err := mgr.Set(expired); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := mgr.RefreshIfNeeded(context.Background())
	if err != nil {
		t.Fatalf("refresh if needed: %v", err)
	}
	if got.AccessToken != "access-2" || got.RefreshToken != "refresh-2" {
		t.Fatalf("expected refreshed tokens, got %+v", got)
	}
	if got.Email != "analyst@haven.edu" {
		t.Fatalf("refresh must preserve the stored email, got %+v", got)
	}
	if !got.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", got.ExpiresAt)
	}

	persisted, err := mgr.Get()
	if err != nil {
		t.Fatalf("get after refresh: %v", err)
	}
	if persisted.AccessToken != "access-2" {
		t.Fatalf("refreshed session was not persisted: %+v", persisted)
	}
}

func TestRefreshIfNeededClearsOnFailure(t *testing.T) {
	refresher := &stubRefresher{err: errors.New("refresh_token revoked")}
	mgr := newTestManager(t, refresher)
	expired := Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	if err := mgr.Set(expired); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, err := mgr.RefreshIfNeeded(context.Background()); !errors.Is(err, ErrSignedOut) {
		t.Fatalf("expected ErrSignedOut, got %v", err)
	}
	if _, err := mgr.Get(); !errors.Is(err, ErrSignedOut) {
		t.Fatalf("failed refresh must clear the whole session, got %v", err)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	mgr := newTestManager(t, &stubRefresher{})
	if err := mgr.Clear(); err != nil {
		t.Fatalf("clear on missing session: %v", err)
	}
}
