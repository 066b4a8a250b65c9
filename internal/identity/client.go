package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls the identity provider (GoTrue-compatible) over HTTP.
// All calls carry the service-level API key in the apikey header.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// TokenPair is the result of a successful refresh-token exchange.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// NewClient constructs an identity provider client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Introspect resolves a bearer token to the authenticated user's email.
// Any transport error, non-2xx status, or missing email is an error: the
// caller must treat the token as unresolvable.
func (c *Client) Introspect(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{Status: resp.StatusCode, Message: "introspect token: " + resp.Status}
	}
	var user struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	email := strings.TrimSpace(user.Email)
	if email == "" {
		return "", fmt.Errorf("token resolved to no email")
	}
	return email, nil
}

// Login exchanges email and password credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (TokenPair, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return TokenPair{}, err
	}
	url := c.baseURL + "/auth/v1/token?grant_type=password"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return TokenPair{}, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenPair{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TokenPair{}, &APIError{Status: resp.StatusCode, Message: "sign in: " + resp.Status}
	}
	var pair TokenPair
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&pair); err != nil {
		return TokenPair{}, fmt.Errorf("decode token pair: %w", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return TokenPair{}, fmt.Errorf("malformed token response")
	}
	return pair, nil
}

// Refresh exchanges a refresh token for a new token pair.
// On any failure the caller must discard the whole session, not part of it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return TokenPair{}, err
	}
	url := c.baseURL + "/auth/v1/token?grant_type=refresh_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return TokenPair{}, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenPair{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TokenPair{}, &APIError{Status: resp.StatusCode, Message: "refresh token: " + resp.Status}
	}
	var pair TokenPair
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&pair); err != nil {
		return TokenPair{}, fmt.Errorf("decode token pair: %w", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return TokenPair{}, fmt.Errorf("malformed token response")
	}
	return pair, nil
}

// APIError represents an identity provider error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}
