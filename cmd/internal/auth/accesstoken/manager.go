package accesstoken

import (
	"strings"
	"time"

	"github.com/2impaoo-it/feedback-system/cmd/identity/ids"
)

// Subject is who a token is issued to.
type Subject struct {
	AccountID string
	Email     string
	Role      string
}

// Claims is the identity envelope carried by a verified token.
type Claims struct {
	AccountID string
	Email     string
	Role      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
}

// Verifier checks a token's signature and time claims.
type Verifier interface {
	Verify(token string, now time.Time) (Claims, error)
}

// Manager issues and verifies tokens.
type Manager interface {
	Verifier
	Issue(sub Subject, now time.Time) (token string, exp time.Time, err error)
}

// New builds the Manager selected by cfg.Kind.
func New(cfg Config) (Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindJWT:
		return NewJWTManager(cfg)
	default:
		return NewPasetoV4PublicManager(cfg)
	}
}

// newTokenID returns a ULID so that two tokens issued in the same second differ.
func newTokenID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

func validSubject(sub Subject) bool {
	return strings.TrimSpace(sub.AccountID) != ""
}
