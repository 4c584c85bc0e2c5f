package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseRole maps a stored role string to a Role. Unknown values fall back to RoleCustomer.
func ParseRole(s string) Role {
	switch strings.TrimSpace(s) {
	case string(RoleAdmin):
		return RoleAdmin
	case string(RoleSuperAdmin):
		return RoleSuperAdmin
	default:
		return RoleCustomer
	}
}
