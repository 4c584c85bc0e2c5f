package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation.
type Policy struct {
	MinLength int
	MaxLength int
	// RejectVeryWeak enables a minimal weak-pattern check.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy

	// BcryptCost is the maximum bcrypt cost accepted during verification.
	BcryptCost int
}

// DefaultConfig returns the baseline used for new hashes.
func DefaultConfig() Config {
	// Clamp parallelism to [1..4] to keep container resource usage predictable.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above; safe conversion.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
		BcryptCost: 14,
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
//   - FEEDBACK_PASSWORD_MIN_LEN, FEEDBACK_PASSWORD_MAX_LEN
//   - FEEDBACK_PASSWORD_REJECT_VERY_WEAK (true/false)
//   - FEEDBACK_ARGON2_MEMORY_KIB, FEEDBACK_ARGON2_ITERATIONS, FEEDBACK_ARGON2_PARALLELISM
//   - FEEDBACK_ARGON2_SALT_LEN, FEEDBACK_ARGON2_KEY_LEN
//   - FEEDBACK_BCRYPT_MAX_COST
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		key      string
		min, max int
		set      func(int)
	}{
		{"FEEDBACK_PASSWORD_MIN_LEN", 1, 1024, func(n int) { cfg.Policy.MinLength = n }},
		{"FEEDBACK_PASSWORD_MAX_LEN", 1, 4096, func(n int) { cfg.Policy.MaxLength = n }},
		{"FEEDBACK_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, func(n int) { cfg.Params.MemoryKiB = uint32(n) }}, // #nosec G115 -- range-checked.
		{"FEEDBACK_ARGON2_ITERATIONS", 1, 20, func(n int) { cfg.Params.Iterations = uint32(n) }},                 // #nosec G115 -- range-checked.
		{"FEEDBACK_ARGON2_PARALLELISM", 1, math.MaxUint8, func(n int) { cfg.Params.Parallelism = uint8(n) }},     // #nosec G115 -- range-checked.
		{"FEEDBACK_ARGON2_SALT_LEN", 8, 64, func(n int) { cfg.Params.SaltLength = uint32(n) }},                   // #nosec G115 -- range-checked.
		{"FEEDBACK_ARGON2_KEY_LEN", 16, 64, func(n int) { cfg.Params.KeyLength = uint32(n) }},                    // #nosec G115 -- range-checked.
		{"FEEDBACK_BCRYPT_MAX_COST", 4, 31, func(n int) { cfg.BcryptCost = n }},
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := atoiInRange(v, e.min, e.max)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", e.key, err)
		}
		e.set(n)
	}

	if v, ok := os.LookupEnv("FEEDBACK_PASSWORD_REJECT_VERY_WEAK"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("FEEDBACK_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func atoiInRange(s string, minVal, maxVal int) (int, error) {
	i64, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}
