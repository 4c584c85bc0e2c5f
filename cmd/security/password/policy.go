package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// trivialPasswords are refused outright when RejectVeryWeak is on.
var trivialPasswords = map[string]struct{}{
	"password": {}, "password123": {}, "123456": {}, "123456789": {},
	"qwerty": {}, "qwerty123": {}, "11111111": {}, "admin123": {},
	"feedback": {}, "feedback123": {}, "support123": {}, "letmein": {},
}

// Validate checks the policy. Length counts runes, not bytes.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.RejectVeryWeak && isTrivial(password):
		return ErrWeakPassword
	}
	return nil
}

// isTrivial catches blank, single-character, short all-digit and well-known passwords.
func isTrivial(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	first, _ := utf8.DecodeRuneInString(s)
	if strings.Count(s, string(first)) == utf8.RuneCountInString(s) {
		return true
	}
	if strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 && utf8.RuneCountInString(s) < 12 {
		return true
	}
	_, common := trivialPasswords[strings.ToLower(s)]
	return common
}
