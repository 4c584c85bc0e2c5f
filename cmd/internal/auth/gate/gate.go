// Package gate authorizes requests that carry a credential token.
//
// A token is accepted only if it verifies cryptographically and it is the
// token currently stored for its account in the session table. With an
// account lookup configured the account must also still exist and be active,
// and the returned claims carry its current role.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2impaoo-it/feedback-system/cmd/identity"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/accesstoken"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/session"
)

var (
	// ErrMissingToken is returned for an empty token.
	ErrMissingToken = errors.New("missing token")

	// ErrInvalidToken wraps codec failures.
	ErrInvalidToken = accesstoken.ErrInvalidToken

	// ErrSessionInvalid and ErrSessionExpired are passed through from the session table.
	ErrSessionInvalid = session.ErrSessionInvalid
	ErrSessionExpired = session.ErrSessionExpired

	// ErrAccountLookup means the account store could not be reached.
	ErrAccountLookup = errors.New("account lookup failed")
)

// SessionValidator is the part of session.Coordinator the gate needs.
type SessionValidator interface {
	Validate(accountID, token string) error
	RemoveSession(accountID string) bool
}

// AccountLookup loads the account behind a token.
type AccountLookup interface {
	FindByID(ctx context.Context, accountID string) (identity.Account, error)
}

// Gate combines token verification with the session table lookup.
type Gate struct {
	tokens   accesstoken.Verifier
	sessions SessionValidator
	accounts AccountLookup
	now      func() time.Time
}

type Option func(*Gate)

// WithClock overrides time.Now for token time checks.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithAccounts reloads the account on every request.
func WithAccounts(a AccountLookup) Option {
	return func(g *Gate) {
		if a != nil {
			g.accounts = a
		}
	}
}

// New builds a Gate.
func New(tokens accesstoken.Verifier, sessions SessionValidator, opts ...Option) *Gate {
	g := &Gate{tokens: tokens, sessions: sessions, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate returns the token's claims if the token is the account's live one.
// A successful call counts as activity on the Session.
//
// A missing or deactivated account ends its Session and yields ErrSessionInvalid.
func (g *Gate) Authenticate(ctx context.Context, token string) (accesstoken.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return accesstoken.Claims{}, ErrMissingToken
	}

	claims, err := g.tokens.Verify(token, g.now().UTC())
	if err != nil {
		return accesstoken.Claims{}, fmt.Errorf("gate: %w", ErrInvalidToken)
	}
	if err := g.sessions.Validate(claims.AccountID, token); err != nil {
		return accesstoken.Claims{}, fmt.Errorf("gate: %w", err)
	}
	if g.accounts == nil {
		return claims, nil
	}

	acc, err := g.accounts.FindByID(ctx, claims.AccountID)
	switch {
	case identity.IsNotFound(err), err == nil && !acc.Active:
		g.sessions.RemoveSession(claims.AccountID)
		return accesstoken.Claims{}, fmt.Errorf("gate: account unavailable: %w", ErrSessionInvalid)
	case err != nil:
		return accesstoken.Claims{}, fmt.Errorf("gate: %w: %w", ErrAccountLookup, err)
	}
	claims.Email = acc.Email
	claims.Role = string(acc.Role)
	return claims, nil
}

type claimsKey struct{}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, c accesstoken.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the claims stored by WithClaims.
func ClaimsFrom(ctx context.Context) (accesstoken.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(accesstoken.Claims)
	return c, ok
}
