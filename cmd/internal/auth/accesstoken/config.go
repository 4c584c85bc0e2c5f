package accesstoken

import (
	"os"
	"strings"
	"time"
)

// Kind selects the token codec.
type Kind string

const (
	KindPaseto Kind = "paseto"
	KindJWT    Kind = "jwt"
)

// Config controls token issuing and verification.
type Config struct {
	Kind Kind

	// Issuer is the "iss" claim.
	Issuer string

	// TTL is the token lifetime. Liveness is enforced by the session table, so
	// this can be long.
	TTL time.Duration

	// ClockSkew is tolerated during verification.
	ClockSkew time.Duration

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key for KindPaseto.
	PasetoV4SecretKeyHex string

	// JWTSecret is the HS256 key for KindJWT.
	JWTSecret string
}

// MinJWTSecretBytes is the smallest accepted HS256 key.
const MinJWTSecretBytes = 32

// DefaultConfig returns defaults matching the legacy system (7 day tokens).
func DefaultConfig() Config {
	return Config{
		Kind:      KindPaseto,
		Issuer:    "feedback-system",
		TTL:       7 * 24 * time.Hour,
		ClockSkew: 30 * time.Second,
	}
}

// LoadConfigFromEnv loads token configuration.
//
// Keys:
//   - FEEDBACK_TOKEN_KIND: paseto (default) or jwt
//   - FEEDBACK_TOKEN_ISSUER
//   - FEEDBACK_TOKEN_TTL, FEEDBACK_TOKEN_CLOCK_SKEW
//   - FEEDBACK_PASETO_V4_SECRET_KEY_HEX (required for paseto)
//   - FEEDBACK_JWT_SECRET (required for jwt, >= 32 bytes)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("FEEDBACK_TOKEN_KIND")); v != "" {
		cfg.Kind = Kind(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("FEEDBACK_TOKEN_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("FEEDBACK_TOKEN_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}
	if v := strings.TrimSpace(os.Getenv("FEEDBACK_TOKEN_CLOCK_SKEW")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	cfg.PasetoV4SecretKeyHex = strings.TrimSpace(os.Getenv("FEEDBACK_PASETO_V4_SECRET_KEY_HEX"))
	cfg.JWTSecret = strings.TrimSpace(os.Getenv("FEEDBACK_JWT_SECRET"))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TTL <= 0 || c.ClockSkew < 0 || strings.TrimSpace(c.Issuer) == "" {
		return ErrConfig
	}
	switch c.Kind {
	case KindPaseto:
		if c.PasetoV4SecretKeyHex == "" {
			return ErrConfig
		}
	case KindJWT:
		if len(c.JWTSecret) < MinJWTSecretBytes {
			return ErrConfig
		}
	default:
		return ErrConfig
	}
	return nil
}
