package app

import (
	"errors"
	"fmt"

	"github.com/2impaoo-it/feedback-system/cmd/security/token"
)

// ValidateSecurityConfig fails startup when the token HMAC policy cannot be met,
// and returns the hasher the session table should use.
func ValidateSecurityConfig(cfg Config) (token.Hasher, error) {
	h, err := token.HasherFromEnv(cfg.RequireTokenHMAC)
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, token.ErrHMACKeyMissing):
		return nil, fmt.Errorf("security policy: FEEDBACK_REQUIRE_TOKEN_HMAC=true but %s is missing", token.HMACEnvKey)
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return nil, fmt.Errorf("security policy: %s is too short (min %d bytes)", token.HMACEnvKey, token.MinHMACKeyBytes)
	default:
		return nil, err
	}
}
