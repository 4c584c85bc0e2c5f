package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionInvalid is returned when no live Session matches the presented token.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrSessionExpired is returned when the Session was idle past the timeout.
	// Callers remediate it the same way as ErrSessionInvalid.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidInput is returned for blank account ids or tokens.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// ConfigError names the env key that failed validation.
type ConfigError struct {
	Key   string
	Value string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s=%q", ErrConfig.Error(), e.Key, e.Value)
}

func (e ConfigError) Unwrap() error { return ErrConfig }
