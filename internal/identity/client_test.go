package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIntrospectResolvesEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		if got := r.Header.Get("apikey"); got != "anon-key" {
			t.Errorf("unexpected apikey header: %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"email": "analyst@haven.edu"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "anon-key")
	email, err := client.Introspect(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("introspect: %v", err)
	}
	if email != "analyst@haven.edu" {
		t.Fatalf("email = %q", email)
	}
}

func TestIntrospectRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "anon-key")
	_, err := client.Introspect(context.Background(), "bad-token")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestIntrospectRejectsMissingEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "user-1"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "anon-key")
	if _, err := client.Introspect(context.Background(), "token-1"); err == nil {
		t.Fatalf("expected error when user has no email")
	}
}

func TestRefreshExchangesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "refresh_token" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken != "refresh-1" {
			t.Errorf("unexpected refresh body: %+v err=%v", body, err)
		}
		_ = json.NewEncoder(w).Encode(TokenPair{
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
			ExpiresIn:    3600,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "anon-key")
	pair, err := client.Refresh(context.Background(), "refresh-1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pair.AccessToken != "access-2" || pair.RefreshToken != "refresh-2" || pair.ExpiresIn != 3600 {
		t.Fatalf("unexpected pair: %+v", pair)
	}
}

func TestRefreshRejectsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "only-half"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "anon-key")
	if _, err := client.Refresh(context.Background(), "refresh-1"); err == nil {
		t.Fatalf("expected error for response without refresh token")
	}
}

func TestLoginExchangesCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email != "analyst@haven.edu" {
			t.Errorf("unexpected login body: %+v err=%v", body, err)
		}
		_ = json.NewEncoder(w).Encode(TokenPair{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    3600,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "anon-key")
	pair, err := client.Login(context.Background(), "analyst@haven.edu", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken != "access-1" {
		t.Fatalf("unexpected pair: %+v", pair)
	}
}
