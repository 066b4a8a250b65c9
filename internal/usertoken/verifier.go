package usertoken

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultAudience = "authenticated"
	defaultLeeway   = 30 * time.Second
)

// Config configures access-token verification.
type Config struct {
	// Secret is the shared HMAC signing secret of the identity provider.
	Secret string
	// Audience expected in the token; defaults to "authenticated".
	Audience string
	Leeway   time.Duration
}

// Verifier validates provider access tokens locally (HS256 + shared secret)
// before the remote introspection call. A failed local check saves the round
// trip; a passed check is still followed by introspection, which stays the
// authority on the user's identity.
type Verifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
}

// NewVerifier creates a token verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("token verifier requires a signing secret")
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Verifier{
		secret:   []byte(secret),
		audience: audience,
		leeway:   leeway,
	}, nil
}

// Verify validates the token signature, expiry, and audience.
func (v *Verifier) Verify(token string) error {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errors.New("invalid token")
	}
	return nil
}
