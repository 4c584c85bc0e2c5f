package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// Per-IP login attempt limit.
	LoginIPMax    int
	LoginIPWindow time.Duration

	// AuditToLog mirrors audit records to the logger even when a database is configured.
	AuditToLog bool
}

const (
	defaultMaxBodyBytes  = 1 << 20
	defaultLoginIPMax    = 20
	defaultLoginIPWindow = 5 * time.Minute
)

// DefaultConfig returns the defaults LoadConfigFromEnv falls back to.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:  defaultMaxBodyBytes,
		LoginIPMax:    defaultLoginIPMax,
		LoginIPWindow: defaultLoginIPWindow,
	}
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:    envBool("FEEDBACK_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:  envInt64("FEEDBACK_AUTH_MAX_BODY_BYTES", defaultMaxBodyBytes),
		LoginIPMax:    envInt("FEEDBACK_AUTH_LOGIN_IP_MAX", defaultLoginIPMax),
		LoginIPWindow: envDuration("FEEDBACK_AUTH_LOGIN_IP_WINDOW", defaultLoginIPWindow),
		AuditToLog:    envBool("FEEDBACK_AUTH_AUDIT_LOG", false),
	}
	return cfg.normalized()
}

func (c Config) normalized() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.LoginIPMax <= 0 {
		c.LoginIPMax = defaultLoginIPMax
	}
	if c.LoginIPWindow <= 0 {
		c.LoginIPWindow = defaultLoginIPWindow
	}
	return c
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
