package identity

import (
	"github.com/2impaoo-it/feedback-system/cmd/security/password"
)

// HashPassword returns an Argon2id PHC hash using the env-configured cost and policy.
func HashPassword(plain string) (string, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		return "", err
	}
	return cfg.Hash(plain)
}
