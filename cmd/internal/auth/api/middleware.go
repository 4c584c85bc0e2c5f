package authapi

import (
	"errors"
	"net/http"

	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/gate"
)

// RequireAuth runs the request gate on the bearer token and stores the claims
// in the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := h.gate.Authenticate(r.Context(), token)
		if errors.Is(err, gate.ErrAccountLookup) {
			h.log.Error("auth.account_lookup.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable")
			return
		}
		if err != nil {
			code, msg := gateErrorCode(err)
			writeError(w, http.StatusUnauthorized, code, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(gate.WithClaims(r.Context(), claims)))
	})
}

// RequireRole allows the request through only if the account's current role
// is one of roles. It must run behind RequireAuth, whose gate refreshes the
// role from the account store.
func RequireRole(next http.Handler, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := gate.ClaimsFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		for _, role := range roles {
			if claims.Role == role {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusForbidden, "forbidden", "admin access required")
	})
}

func gateErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, gate.ErrSessionExpired):
		return "session_expired", "session expired, please log in again"
	case errors.Is(err, gate.ErrSessionInvalid):
		return "session_invalid", "session is no longer active"
	default:
		return "invalid_token", "invalid token"
	}
}
