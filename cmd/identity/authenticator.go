package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2impaoo-it/feedback-system/cmd/security/password"
)

// Authenticator verifies email/password pairs against a Store.
type Authenticator struct {
	store  Store
	pw     password.Config
	policy LockoutPolicy
	now    func() time.Time
	log    *slog.Logger

	// dummyHash is verified when the account does not exist so that unknown
	// and known emails take similar time.
	dummyHash string
}

// AuthenticatorOption customizes an Authenticator.
type AuthenticatorOption func(*Authenticator)

func WithLockoutPolicy(p LockoutPolicy) AuthenticatorOption {
	return func(a *Authenticator) { a.policy = p }
}

func WithAuthClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

func WithAuthLogger(log *slog.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if log != nil {
			a.log = log
		}
	}
}

// NewAuthenticator builds an Authenticator. The password config drives both
// dummy-hash cost and verification bounds.
func NewAuthenticator(store Store, pw password.Config, opts ...AuthenticatorOption) (*Authenticator, error) {
	if store == nil {
		return nil, OpError{Op: "identity.NewAuthenticator", Kind: ErrInvalidInput, Msg: "nil store"}
	}
	a := &Authenticator{
		store:  store,
		pw:     pw,
		policy: DefaultLockoutPolicy(),
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	dummyCfg := pw
	dummyCfg.Policy.MinLength = 1
	h, err := dummyCfg.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, err
	}
	a.dummyHash = h
	return a, nil
}

// Verify checks credentials.
//
// Errors:
//   - ErrInvalidCredentials for unknown, inactive, or wrong-password logins
//   - LockedError (ErrAccountLocked) while the account is locked
func (a *Authenticator) Verify(ctx context.Context, email, secret string) (Principal, error) {
	email = NormalizeEmail(email)
	if email == "" || secret == "" {
		return Principal{}, ErrInvalidCredentials
	}
	now := a.now()

	acc, err := a.store.FindByEmail(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			_, _ = a.pw.Verify(a.dummyHash, secret)
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, err
	}
	if !acc.Active {
		_, _ = a.pw.Verify(a.dummyHash, secret)
		return Principal{}, ErrInvalidCredentials
	}
	if acc.Locked(now) {
		return Principal{}, LockedError{Until: *acc.LockUntil}
	}

	ok, needsRehash, err := a.pw.VerifyAny(acc.PasswordHash, secret)
	if err != nil && !errors.Is(err, password.ErrInvalidHash) {
		return Principal{}, err
	}
	if err != nil {
		a.log.Warn("identity.password.invalid_hash", "account_id", acc.ID)
	}
	if !ok {
		updated, ferr := a.store.RecordLoginFailure(ctx, acc.ID, now, a.policy)
		if ferr != nil {
			return Principal{}, ferr
		}
		if updated.Locked(now) {
			a.log.Warn("identity.account.locked", "account_id", acc.ID, "attempts", updated.LoginAttempts)
		}
		return Principal{}, ErrInvalidCredentials
	}

	rehash := ""
	if needsRehash {
		if h, herr := a.rehash(secret); herr == nil {
			rehash = h
		}
	}
	if err := a.store.RecordLoginSuccess(ctx, acc.ID, now, rehash); err != nil {
		return Principal{}, err
	}
	return acc.principal(), nil
}

// rehash upgrades a legacy hash. Legacy passwords may be shorter than the
// current policy, so only the upper bound is enforced here.
func (a *Authenticator) rehash(secret string) (string, error) {
	cfg := a.pw
	cfg.Policy.MinLength = 1
	cfg.Policy.RejectVeryWeak = false
	return cfg.Hash(secret)
}
