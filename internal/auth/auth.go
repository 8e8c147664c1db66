// Package auth verifies invocca bearer tokens and carries the caller's
// identity through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/MCT-Salman/invocca/pkg/types"
)

const (
	claimRole = "role"
	claimName = "name"

	defaultIssuer = "invocca"
	clockSkew     = 30 * time.Second
)

// DevSecret signs tokens when dev mode runs without a configured secret.
const DevSecret = "invocca-dev-secret"

var (
	// ErrMissingToken is returned when no bearer token is presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownRole is returned when a token carries an unrecognised role.
	ErrUnknownRole = errors.New("unknown role")
)

var knownRoles = []string{types.RoleAdmin, types.RoleManager, types.RoleClient, types.RoleEmployee}

// Claims is the verified caller identity.
type Claims struct {
	Subject string
	Role    string
	Name    string
}

// HasAnyRole reports whether the caller holds one of roles.
func (c Claims) HasAnyRole(roles ...string) bool {
	return slices.Contains(roles, c.Role)
}

// ValidRole reports whether role is one of the four application roles.
func ValidRole(role string) bool {
	return slices.Contains(knownRoles, role)
}

type claimsKey struct{}

// WithClaims returns a context carrying claims.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims stored by the middleware.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(Claims)
	return c, ok
}

// Verifier checks HS256 tokens issued for invocca.
type Verifier struct {
	key    []byte
	issuer string
}

// NewVerifier returns a verifier for tokens signed with secret.
func NewVerifier(secret []byte, issuer string) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if issuer == "" {
		issuer = defaultIssuer
	}
	return &Verifier{key: secret, issuer: issuer}, nil
}

// Verify parses raw and returns its claims.
func (v *Verifier) Verify(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrMissingToken
	}

	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, v.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAcceptableSkew(clockSkew),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tok.Subject() == "" {
		return Claims{}, fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}

	return claimsOf(tok)
}

// PeekClaims reads the claims of raw without verifying its signature or
// lifetime. Clients use it to pick which pages to show; the API still
// verifies every request.
func PeekClaims(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrMissingToken
	}
	tok, err := jwt.ParseInsecure([]byte(raw))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claimsOf(tok)
}

func claimsOf(tok jwt.Token) (Claims, error) {
	claims := Claims{Subject: tok.Subject()}
	if role, ok := tok.Get(claimRole); ok {
		claims.Role, _ = role.(string)
	}
	if name, ok := tok.Get(claimName); ok {
		claims.Name, _ = name.(string)
	}
	if !ValidRole(claims.Role) {
		return Claims{}, fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role)
	}
	return claims, nil
}

// Sign issues a token for claims that expires after ttl.
func (v *Verifier) Sign(claims Claims, ttl time.Duration) (string, error) {
	if !ValidRole(claims.Role) {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role)
	}
	now := time.Now()
	builder := jwt.NewBuilder().
		Issuer(v.issuer).
		Subject(claims.Subject).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim(claimRole, claims.Role)
	if claims.Name != "" {
		builder = builder.Claim(claimName, claims.Name)
	}

	tok, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("building token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, v.key))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return string(signed), nil
}
