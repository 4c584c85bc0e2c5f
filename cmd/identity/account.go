package identity

import "time"

// Role is an account's authorization level.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superAdmin"
)

// IsAdmin reports whether r may use administrative endpoints.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Account is the stored credential record.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool

	LoginAttempts int
	LockUntil     *time.Time
	LastLogin     *time.Time
	CreatedAt     time.Time
}

// Locked reports whether the account is locked at now.
func (a Account) Locked(now time.Time) bool {
	return a.LockUntil != nil && a.LockUntil.After(now)
}

// Principal is the verified identity returned by a successful login.
type Principal struct {
	AccountID string
	Email     string
	Role      Role
	Active    bool
}

func (a Account) principal() Principal {
	return Principal{AccountID: a.ID, Email: a.Email, Role: a.Role, Active: a.Active}
}

// LockoutPolicy controls failed-login locking.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// DefaultLockoutPolicy locks after 5 consecutive failures for 2 hours.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 5, LockDuration: 2 * time.Hour}
}

// nextFailureState computes attempts and lock after one more failure.
// An expired lock restarts the count at 1.
func nextFailureState(a Account, now time.Time, p LockoutPolicy) (int, *time.Time) {
	if a.LockUntil != nil && !a.LockUntil.After(now) {
		return 1, nil
	}
	attempts := a.LoginAttempts + 1
	lock := a.LockUntil
	if p.MaxAttempts > 0 && attempts >= p.MaxAttempts && !a.Locked(now) {
		until := now.Add(p.LockDuration)
		lock = &until
	}
	return attempts, lock
}

// CreateAccountInput describes a new account. PasswordHash must already be hashed.
type CreateAccountInput struct {
	Email        string
	PasswordHash string
	Role         Role
	Now          time.Time
}
