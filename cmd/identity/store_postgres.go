package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/2impaoo-it/feedback-system/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store never closes it.
// Schema identifiers are validated and quoted.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema (default "feedback").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "feedback"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// PostgresSchemaSQL returns the DDL for the users table in schema.
func PostgresSchemaSQL(schema string) string {
	users := pgIdent(schema, "users")
	return fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  email_norm TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'customer',
  is_active BOOLEAN NOT NULL DEFAULT true,
  login_attempts INTEGER NOT NULL DEFAULT 0,
  lock_until TIMESTAMPTZ NULL,
  last_login TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT uq_users_email_norm UNIQUE (email_norm),
  CONSTRAINT chk_users_role CHECK (role IN ('customer', 'admin', 'superAdmin'))
);`, pgx.Identifier{schema}.Sanitize(), users)
}

// EnsureSchema applies PostgresSchemaSQL.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, PostgresSchemaSQL(s.schema))
	return err
}

const pgAccountColumns = `id, email, password_hash, role, is_active, login_attempts, lock_until, last_login, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a    Account
		role string
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &role, &a.Active, &a.LoginAttempts, &a.LockUntil, &a.LastLogin, &a.CreatedAt)
	if err != nil {
		return Account{}, err
	}
	a.Role = ParseRole(role)
	return a, nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.FindByEmail"

	row := s.pool.QueryRow(ctx,
		`SELECT `+pgAccountColumns+` FROM `+pgIdent(s.schema, "users")+` WHERE email_norm = $1`,
		NormalizeEmail(email))
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	return a, err
}

func (s *PostgresStore) FindByID(ctx context.Context, accountID string) (Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgAccountColumns+` FROM `+pgIdent(s.schema, "users")+` WHERE id = $1`, accountID)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: "identity.FindByID", Resource: "account"}
	}
	return a, err
}

func (s *PostgresStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	email := strings.TrimSpace(in.Email)
	if email == "" || strings.TrimSpace(in.PasswordHash) == "" {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email and password hash are required"}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	role := in.Role
	if role == "" {
		role = RoleCustomer
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Account{}, err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+pgIdent(s.schema, "users")+` (id, email, email_norm, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+pgAccountColumns,
		id, email, NormalizeEmail(email), in.PasswordHash, string(role), now)
	a, err := scanAccount(row)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Account{}, ConflictError{Op: op, Field: "email"}
		}
		return Account{}, err
	}
	return a, nil
}

// RecordLoginFailure locks the row so concurrent failures count correctly.
func (s *PostgresStore) RecordLoginFailure(ctx context.Context, accountID string, now time.Time, p LockoutPolicy) (Account, error) {
	const op = "identity.RecordLoginFailure"
	users := pgIdent(s.schema, "users")

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return Account{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	a, err := scanAccount(tx.QueryRow(ctx,
		`SELECT `+pgAccountColumns+` FROM `+users+` WHERE id = $1 FOR UPDATE`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, NotFoundError{Op: op, Resource: "account"}
	}
	if err != nil {
		return Account{}, err
	}

	a.LoginAttempts, a.LockUntil = nextFailureState(a, now, p)
	if _, err := tx.Exec(ctx,
		`UPDATE `+users+` SET login_attempts = $2, lock_until = $3 WHERE id = $1`,
		accountID, a.LoginAttempts, a.LockUntil); err != nil {
		return Account{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (s *PostgresStore) RecordLoginSuccess(ctx context.Context, accountID string, now time.Time, rehash string) error {
	const op = "identity.RecordLoginSuccess"

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "users")+`
		    SET login_attempts = 0,
		        lock_until = NULL,
		        last_login = $2,
		        password_hash = COALESCE(NULLIF($3, ''), password_hash)
		  WHERE id = $1`,
		accountID, now, rehash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}
