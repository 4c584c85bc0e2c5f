package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// IsBcrypt reports whether encoded looks like a bcrypt hash.
func IsBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

func (c Config) verifyBcrypt(encoded, password string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil {
		return false, ErrInvalidHash
	}
	if c.BcryptCost > 0 && cost > c.BcryptCost {
		return false, ErrInvalidHash
	}
	err = bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrInvalidHash
	}
}

// VerifyAny checks password against an Argon2id or bcrypt hash.
// needsRehash is true when a match was found against a non-Argon2id hash.
func (c Config) VerifyAny(encoded, password string) (ok bool, needsRehash bool, err error) {
	if IsBcrypt(encoded) {
		ok, err = c.verifyBcrypt(encoded, password)
		return ok, ok, err
	}
	ok, err = c.Verify(encoded, password)
	return ok, false, err
}
