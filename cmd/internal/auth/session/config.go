package session

import (
	"os"
	"strings"
	"time"
)

// Config controls idle expiry.
//
// The sweep cadence is independent of the idle timeout, so an abandoned
// Session can linger up to IdleTimeout+SweepInterval before the sweeper
// reclaims it. Lazy expiry in Validate still rejects it on time.
type Config struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// DefaultConfig returns the production defaults: 30m idle timeout, 5m sweep.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:   30 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// LoadConfigFromEnv reads:
//   - FEEDBACK_SESSION_IDLE_TIMEOUT
//   - FEEDBACK_SESSION_SWEEP_INTERVAL
//
// Both must be positive Go durations. Returns a ConfigError (wrapping ErrConfig)
// otherwise.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	var err error
	if cfg.IdleTimeout, err = envPositiveDuration("FEEDBACK_SESSION_IDLE_TIMEOUT", cfg.IdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = envPositiveDuration("FEEDBACK_SESSION_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envPositiveDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, ConfigError{Key: key, Value: v}
	}
	return d, nil
}
