package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/2impaoo-it/feedback-system/cmd/identity/ids"
)

// MemoryStore keeps accounts in process memory. Used for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*Account
	byEmail map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.FindByEmail"
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return *s.byID[id], nil
}

func (s *MemoryStore) FindByID(ctx context.Context, accountID string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[accountID]
	if !ok {
		return Account{}, NotFoundError{Op: "identity.FindByID", Resource: "account"}
	}
	return *acc, nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	email := NormalizeEmail(in.Email)
	if email == "" || strings.TrimSpace(in.PasswordHash) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email and password hash are required"}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Account{}, err
	}
	role := in.Role
	if role == "" {
		role = RoleCustomer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}
	acc := &Account{
		ID:           id,
		Email:        email,
		PasswordHash: in.PasswordHash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
	}
	s.byID[id] = acc
	s.byEmail[email] = id
	return *acc, nil
}

func (s *MemoryStore) RecordLoginFailure(ctx context.Context, accountID string, now time.Time, p LockoutPolicy) (Account, error) {
	const op = "identity.RecordLoginFailure"
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[accountID]
	if !ok {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	acc.LoginAttempts, acc.LockUntil = nextFailureState(*acc, now, p)
	return *acc, nil
}

func (s *MemoryStore) RecordLoginSuccess(ctx context.Context, accountID string, now time.Time, rehash string) error {
	const op = "identity.RecordLoginSuccess"
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[accountID]
	if !ok {
		return NotFoundError{Op: op, Resource: "account"}
	}
	acc.LoginAttempts = 0
	acc.LockUntil = nil
	t := now
	acc.LastLogin = &t
	if rehash != "" {
		acc.PasswordHash = rehash
	}
	return nil
}

// SetRole changes an account's role.
func (s *MemoryStore) SetRole(accountID string, role Role) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[accountID]
	if ok {
		acc.Role = role
	}
	return ok
}

// SetActive toggles an account's active flag.
func (s *MemoryStore) SetActive(accountID string, active bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[accountID]
	if ok {
		acc.Active = active
	}
	return ok
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }
