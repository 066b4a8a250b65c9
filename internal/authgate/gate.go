package authgate

import (
	"context"
	"strings"
)

// Introspector resolves a bearer token to the authenticated user's email.
type Introspector interface {
	Introspect(ctx context.Context, token string) (string, error)
}

// TokenVerifier optionally validates a token locally before the remote
// introspection call.
type TokenVerifier interface {
	Verify(token string) error
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Email   string `json:"email,omitempty"`
}

// Gate is the single authorization gate for the upload console. Both the
// UI-gating read path and the privileged write path go through Check, so the
// allow-list policy cannot drift between call sites.
type Gate struct {
	introspector Introspector
	verifier     TokenVerifier
	allowLists   Provider
}

// Config wires the gate's dependencies.
type Config struct {
	Introspector Introspector
	Verifier     TokenVerifier // optional
	AllowLists   Provider
}

// New constructs a Gate.
func New(cfg Config) *Gate {
	provider := cfg.AllowLists
	if provider == nil {
		provider = StaticProvider(AllowList{})
	}
	return &Gate{
		introspector: cfg.Introspector,
		verifier:     cfg.Verifier,
		allowLists:   provider,
	}
}

// Check resolves the token to an identity and evaluates the allow-lists.
// It fails closed: any error resolving the identity yields a deny decision
// alongside the error, and the gate itself has no side effects.
func (g *Gate) Check(ctx context.Context, token string) (Decision, error) {
	if g.verifier != nil {
		if err := g.verifier.Verify(token); err != nil {
			return Decision{}, err
		}
	}
	email, err := g.introspector.Introspect(ctx, token)
	if err != nil {
		return Decision{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Decision{}, errNoEmail
	}
	return Decision{Allowed: g.allowLists().Allows(email), Email: email}, nil
}

type gateError string

func (e gateError) Error() string { return string(e) }

const errNoEmail = gateError("token resolved to no email")
