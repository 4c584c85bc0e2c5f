package identity

import (
	"context"
	"time"
)

// Store is the account persistence boundary.
type Store interface {
	// FindByEmail loads an account by normalized email. Missing accounts return a NotFoundError.
	FindByEmail(ctx context.Context, email string) (Account, error)

	// FindByID loads an account by id. Missing accounts return a NotFoundError.
	FindByID(ctx context.Context, accountID string) (Account, error)

	// CreateAccount inserts a new account. Duplicate emails return a ConflictError.
	CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error)

	// RecordLoginFailure increments the failure counter and applies the lockout policy.
	RecordLoginFailure(ctx context.Context, accountID string, now time.Time, p LockoutPolicy) (Account, error)

	// RecordLoginSuccess clears the failure counter and lock and stamps lastLogin.
	// A non-empty rehash replaces the stored password hash.
	RecordLoginSuccess(ctx context.Context, accountID string, now time.Time, rehash string) error

	// Ping checks backend reachability.
	Ping(ctx context.Context) error
}
