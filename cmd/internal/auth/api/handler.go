// Package authapi exposes login, logout, session introspection and the admin
// session endpoints over HTTP.
package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/2impaoo-it/feedback-system/cmd/identity"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/accesstoken"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/gate"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/login"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/session"

	"github.com/go-playground/validator/v10"
)

const conflictMessage = "This account is already logged in on another device"

// LoginProtocol runs one login attempt.
type LoginProtocol interface {
	Login(ctx context.Context, req login.Request) (login.Result, error)
}

// Authenticator is the request gate.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (accesstoken.Claims, error)
}

// Sessions is the part of session.Coordinator the endpoints read and mutate.
type Sessions interface {
	Lookup(accountID string) (session.Summary, bool)
	RemoveSession(accountID string) bool
	ListActive() []session.Summary
	EvictAll(n session.Notifier) int
}

// Handler wires HTTP auth endpoints to the login protocol and session table.
type Handler struct {
	log *slog.Logger
	cfg Config

	logins   LoginProtocol
	gate     Authenticator
	sessions Sessions
	notifier session.Notifier

	limiter  Limiter
	audit    Auditor
	validate *validator.Validate
	now      func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithNotifier sets the eviction notifier used by logout-all.
func WithNotifier(n session.Notifier) HandlerOption {
	return func(h *Handler) { h.notifier = n }
}

// WithLimiter overrides the default in-memory login limiter.
func WithLimiter(l Limiter) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.limiter = l
		}
	}
}

// WithAuditor overrides the default log auditor.
func WithAuditor(a Auditor) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.audit = a
		}
	}
}

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, logins LoginProtocol, g Authenticator, sessions Sessions, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.normalized()

	h := &Handler{
		log:      log,
		cfg:      cfg,
		logins:   logins,
		gate:     g,
		sessions: sessions,
		limiter:  NewMemoryLimiter(cfg.LoginIPMax, cfg.LoginIPWindow),
		audit:    LogAuditor{Log: log},
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/force-login", h.handleForceLogin)
	mux.Handle("/api/auth/logout", h.RequireAuth(http.HandlerFunc(h.handleLogout)))
	mux.Handle("/api/auth/session", h.RequireAuth(http.HandlerFunc(h.handleSession)))
	mux.Handle("/api/auth/me", h.RequireAuth(http.HandlerFunc(h.handleMe)))

	admin := func(next http.HandlerFunc) http.Handler {
		return h.RequireAuth(RequireRole(next, string(identity.RoleAdmin), string(identity.RoleSuperAdmin)))
	}
	mux.Handle("/api/admin/sessions", admin(h.handleAdminSessions))
	mux.Handle("/api/admin/sessions/logout-all", admin(h.handleAdminLogoutAll))
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	h.login(w, r, req.Email, req.Password, req.ForceLogin)
}

func (h *Handler) handleForceLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req forceLoginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	h.login(w, r, req.Email, req.Password, true)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, email, password string, force bool) {
	ctx := r.Context()
	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())
	email = identity.NormalizeEmail(email)

	if ip != nil {
		ok, retryAfter, err := h.limiter.Allow(ctx, "login:ip:"+ip.String(), now)
		if err != nil {
			h.log.Error("auth.login.throttle_ip.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
			return
		}
		if !ok {
			h.audit.Record(ctx, AuditRecord{Action: auditLoginRateLimited, IP: ip, UserAgent: ua, Meta: map[string]any{
				"email":         email,
				"retry_after_s": int64(retryAfter.Seconds()),
			}})
			writeRetryAfter(w, retryAfter)
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
			return
		}
	}

	res, err := h.logins.Login(ctx, login.Request{
		Email:         email,
		Password:      password,
		Force:         force,
		UserAgent:     ua,
		OriginAddress: ipString(ip),
	})
	if err != nil {
		var locked identity.LockedError
		switch {
		case errors.Is(err, login.ErrAuthenticationFailed):
			h.audit.Record(ctx, AuditRecord{Action: auditLoginFailed, IP: ip, UserAgent: ua, Meta: map[string]any{"email": email}})
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		case errors.As(err, &locked):
			h.audit.Record(ctx, AuditRecord{Action: auditLoginFailed, IP: ip, UserAgent: ua, Meta: map[string]any{"email": email, "reason": "locked"}})
			writeRetryAfter(w, locked.Until.Sub(now))
			writeError(w, http.StatusLocked, "account_locked", "Account temporarily locked due to multiple failed login attempts")
		case errors.Is(err, login.ErrAccountLocked):
			writeError(w, http.StatusLocked, "account_locked", "Account temporarily locked due to multiple failed login attempts")
		default:
			h.log.Error("auth.login.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	rec := AuditRecord{AccountID: res.Principal.AccountID, IP: ip, UserAgent: ua}
	switch res.Outcome {
	case login.Conflict:
		rec.Action = auditLoginConflict
		h.audit.Record(ctx, rec)
		writeJSON(w, http.StatusConflict, conflictResponse{
			Conflict: true,
			Message:  conflictMessage,
			ExistingSession: sessionInfoResponse{
				LoginTime:     res.Existing.Time,
				UserAgent:     res.Existing.UserAgent,
				OriginAddress: res.Existing.OriginAddress,
			},
			Device: describeDevice(res.Existing.UserAgent),
		})

	case login.Forced:
		rec.Action = auditLoginForced
		rec.Meta = map[string]any{"old_session_terminated": res.OldSessionTerminated}
		h.audit.Record(ctx, rec)
		terminated := res.OldSessionTerminated
		writeJSON(w, http.StatusOK, loginResponse{
			Token:                res.Token,
			ExpiresAt:            res.ExpiresAt,
			User:                 toUserResponse(res.Principal),
			SessionInfo:          toSessionInfo(res.Session),
			OldSessionTerminated: &terminated,
		})

	default:
		rec.Action = auditLoginSuccess
		h.audit.Record(ctx, rec)
		writeJSON(w, http.StatusCreated, loginResponse{
			Token:       res.Token,
			ExpiresAt:   res.ExpiresAt,
			User:        toUserResponse(res.Principal),
			SessionInfo: toSessionInfo(res.Session),
		})
	}
}

// handleLogout removes the caller's Session unconditionally.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, _ := gate.ClaimsFrom(r.Context())

	h.sessions.RemoveSession(claims.AccountID)
	h.audit.Record(r.Context(), AuditRecord{
		Action:    auditLogout,
		AccountID: claims.AccountID,
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: strings.TrimSpace(r.UserAgent()),
	})
	writeJSON(w, http.StatusOK, logoutResponse{Success: true})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, _ := gate.ClaimsFrom(r.Context())

	sum, ok := h.sessions.Lookup(claims.AccountID)
	if !ok {
		// Removed between the gate check and now (logout or sweep).
		writeError(w, http.StatusUnauthorized, "session_invalid", "session is no longer active")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sum))
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, _ := gate.ClaimsFrom(r.Context())
	writeJSON(w, http.StatusOK, claimsUserResponse(claims))
}

func (h *Handler) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	active := h.sessions.ListActive()
	out := adminSessionsResponse{Sessions: make([]adminSessionResponse, 0, len(active)), Count: len(active)}
	for _, s := range active {
		out.Sessions = append(out.Sessions, adminSessionResponse{AccountID: s.AccountID, sessionResponse: toSessionResponse(s)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAdminLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, _ := gate.ClaimsFrom(r.Context())

	n := h.sessions.EvictAll(h.notifier)
	h.log.Warn("auth.admin.logout_all", "by", claims.AccountID, "evicted", n)
	h.audit.Record(r.Context(), AuditRecord{
		Action:    auditLogoutAll,
		AccountID: claims.AccountID,
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: strings.TrimSpace(r.UserAgent()),
		Meta:      map[string]any{"evicted": n},
	})
	writeJSON(w, http.StatusOK, logoutAllResponse{Evicted: n})
}

// ---- helpers ----

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
