package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "FEEDBACK_TOKEN_HMAC_KEY"

	// MinHMACKeyBytes is the smallest key accepted in enforced-HMAC mode.
	MinHMACKeyBytes = 32
)

var (
	ErrHMACKeyMissing  = errors.New("session token HMAC key not set")
	ErrHMACKeyTooShort = errors.New("session token HMAC key shorter than MinHMACKeyBytes")
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// Hasher turns a credential token into its stored digest.
type Hasher func(token string) string

// NewHasher returns an HMAC hasher when key is non-empty and a SHA-256 hasher otherwise.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return HashSHA256Hex
	}
	k := append([]byte(nil), key...)
	return func(token string) string {
		return HashHMACSHA256Hex(token, k)
	}
}

// HasherFromEnv builds a Hasher from FEEDBACK_TOKEN_HMAC_KEY.
// With requireHMAC set, a missing or short key is an error.
func HasherFromEnv(requireHMAC bool) (Hasher, error) {
	key, err := HMACKeyFromEnv(MinHMACKeyBytes)
	switch {
	case err == nil:
		return NewHasher(key), nil
	case requireHMAC:
		return nil, err
	default:
		raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
		return NewHasher([]byte(raw)), nil
	}
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
