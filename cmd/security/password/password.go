package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrInvalidHash      = errors.New("invalid password hash")
)

var phcEncoding = base64.RawStdEncoding

// phc is a parsed "$argon2id$v=19$m=<kib>,t=<iter>,p=<par>$<salt>$<key>" string.
type phc struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.params.MemoryKiB, p.params.Iterations, p.params.Parallelism,
		phcEncoding.EncodeToString(p.salt), phcEncoding.EncodeToString(p.key))
}

func parsePHC(encoded string) (phc, error) {
	rest, ok := strings.CutPrefix(encoded, "$argon2id$")
	if !ok {
		return phc{}, ErrInvalidHash
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 || fields[0] != "v="+strconv.Itoa(argon2.Version) {
		return phc{}, ErrInvalidHash
	}

	var out phc
	for _, kv := range strings.Split(fields[1], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return phc{}, ErrInvalidHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return phc{}, ErrInvalidHash
		}
		switch k {
		case "m":
			out.params.MemoryKiB = uint32(n)
		case "t":
			out.params.Iterations = uint32(n)
		case "p":
			if n > 255 {
				return phc{}, ErrInvalidHash
			}
			out.params.Parallelism = uint8(n)
		default:
			return phc{}, ErrInvalidHash
		}
	}
	if out.params.MemoryKiB == 0 || out.params.Iterations == 0 || out.params.Parallelism == 0 {
		return phc{}, ErrInvalidHash
	}

	var err error
	if out.salt, err = phcEncoding.DecodeString(fields[2]); err != nil {
		return phc{}, ErrInvalidHash
	}
	if out.key, err = phcEncoding.DecodeString(fields[3]); err != nil {
		return phc{}, ErrInvalidHash
	}
	out.params.SaltLength = uint32(len(out.salt)) // #nosec G115 -- bounded by the encoded length.
	out.params.KeyLength = uint32(len(out.key))   // #nosec G115 -- bounded by the encoded length.
	return out, nil
}

// Hash validates password against the policy and returns an Argon2id PHC string.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	p := phc{params: c.Params, salt: salt}
	p.key = p.derive(password, c.Params.KeyLength)
	return p.String(), nil
}

// Verify checks password against an Argon2id hash.
// A mismatch is (false, nil); a malformed hash, or one whose cost exceeds
// twice the configured cost, is ErrInvalidHash.
func (c Config) Verify(encodedHash, password string) (bool, error) {
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	if !c.acceptable(p.params) {
		return false, ErrInvalidHash
	}
	got := p.derive(password, p.params.KeyLength)
	return subtle.ConstantTimeCompare(got, p.key) == 1, nil
}

func (p phc) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.params.Iterations, p.params.MemoryKiB, p.params.Parallelism, keyLen)
}

// acceptable caps the work a stored hash can make Verify do.
func (c Config) acceptable(got Argon2idParams) bool {
	lim := c.Params
	return got.MemoryKiB <= lim.MemoryKiB*2 &&
		got.Iterations <= lim.Iterations*2 &&
		uint32(got.Parallelism) <= uint32(lim.Parallelism)*2 &&
		got.SaltLength >= 8 && got.SaltLength <= 64 &&
		got.KeyLength >= 16 && got.KeyLength <= 128
}
