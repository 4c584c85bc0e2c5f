package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/2impaoo-it/feedback-system/cmd/identity"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/accesstoken"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/gate"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/login"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/session"
	"github.com/2impaoo-it/feedback-system/cmd/security/password"
)

const (
	testPassword = "correct horse battery"
	chromeUA     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iphoneUA     = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAuditor) Record(_ context.Context, rec AuditRecord) {
	a.mu.Lock()
	a.actions = append(a.actions, rec.Action)
	a.mu.Unlock()
}

func (a *recordingAuditor) has(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, got := range a.actions {
		if got == action {
			return true
		}
	}
	return false
}

type apiFixture struct {
	srv     *httptest.Server
	store   *identity.MemoryStore
	coord   *session.Coordinator
	audit   *recordingAuditor
	evicted []string
	mu      sync.Mutex
}

func newAPIFixture(t *testing.T, cfg Config, opts ...HandlerOption) *apiFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1
	pw.Params.Parallelism = 1

	store := identity.NewMemoryStore()
	for _, acc := range []struct {
		email string
		role  identity.Role
	}{
		{"alice@example.com", identity.RoleCustomer},
		{"boss@example.com", identity.RoleAdmin},
	} {
		hash, err := pw.Hash(testPassword)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		if _, err := store.CreateAccount(ctx, identity.CreateAccountInput{Email: acc.email, PasswordHash: hash, Role: acc.role}); err != nil {
			t.Fatalf("CreateAccount: %v", err)
		}
	}
	creds, err := identity.NewAuthenticator(store, pw, identity.WithAuthLogger(log))
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	tcfg := accesstoken.DefaultConfig()
	tcfg.Kind = accesstoken.KindJWT
	tcfg.JWTSecret = strings.Repeat("k", accesstoken.MinJWTSecretBytes)
	tokens, err := accesstoken.New(tcfg)
	if err != nil {
		t.Fatalf("accesstoken.New: %v", err)
	}

	f := &apiFixture{store: store, audit: &recordingAuditor{}}
	f.coord = session.NewCoordinator(session.DefaultConfig(), session.WithLogger(log))
	notifier := session.NotifierFunc(func(channelID string, _ session.Eviction) {
		f.mu.Lock()
		f.evicted = append(f.evicted, channelID)
		f.mu.Unlock()
	})

	proto := login.New(creds, tokens, f.coord, login.WithNotifier(notifier), login.WithLogger(log))
	all := append([]HandlerOption{WithNotifier(notifier), WithAuditor(f.audit)}, opts...)
	h := NewHandler(log, cfg, proto, gate.New(tokens, f.coord, gate.WithAccounts(store)), f.coord, all...)

	mux := http.NewServeMux()
	h.Register(mux)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, token, ua string, body any) (int, http.Header, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, resp.Header, out
}

func (f *apiFixture) login(t *testing.T, email string, force bool, ua string) loginResponse {
	t.Helper()
	status, _, body := f.do(t, http.MethodPost, "/api/auth/login", "", ua, loginRequest{Email: email, Password: testPassword, ForceLogin: force})
	want := http.StatusCreated
	if force {
		want = http.StatusOK
	}
	if status != want {
		t.Fatalf("login %s: want %d got %d body=%s", email, want, status, body)
	}
	var out loginResponse
	mustDecode(t, body, &out)
	return out
}

func mustDecode(t *testing.T, b []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}

func errorCode(t *testing.T, b []byte) string {
	t.Helper()
	var e errorResponse
	mustDecode(t, b, &e)
	return e.Error.Code
}

func TestLogin_SuccessConflictForce(t *testing.T) {
	f := newAPIFixture(t, DefaultConfig())

	first := f.login(t, "Alice@Example.com", false, chromeUA)
	if first.Token == "" || first.User.Role != "customer" || first.OldSessionTerminated != nil {
		t.Fatalf("unexpected first login: %+v", first)
	}
	if first.SessionInfo.OriginAddress != "127.0.0.1" || first.SessionInfo.UserAgent != chromeUA {
		t.Fatalf("session info mismatch: %+v", first.SessionInfo)
	}

	status, _, body := f.do(t, http.MethodPost, "/api/auth/login", "", iphoneUA, loginRequest{Email: "alice@example.com", Password: testPassword})
	if status != http.StatusConflict {
		t.Fatalf("second login: want 409 got %d body=%s", status, body)
	}
	var conflict conflictResponse
	mustDecode(t, body, &conflict)
	if !conflict.Conflict || conflict.ExistingSession.UserAgent != chromeUA {
		t.Fatalf("conflict payload mismatch: %+v", conflict)
	}
	if conflict.Device.Browser != "Chrome" || conflict.Device.OS != "Windows" {
		t.Fatalf("device mismatch: %+v", conflict.Device)
	}

	// The conflicting attempt did not revoke the first token.
	if status, _, body := f.do(t, http.MethodGet, "/api/auth/me", first.Token, "", nil); status != http.StatusOK {
		t.Fatalf("first token should still work, got %d body=%s", status, body)
	}

	status, _, body = f.do(t, http.MethodPost, "/api/auth/force-login", "", iphoneUA, forceLoginRequest{Email: "alice@example.com", Password: testPassword})
	if status != http.StatusOK {
		t.Fatalf("force login: want 200 got %d body=%s", status, body)
	}
	var forced loginResponse
	mustDecode(t, body, &forced)
	if forced.OldSessionTerminated == nil || !*forced.OldSessionTerminated {
		t.Fatalf("expected oldSessionTerminated=true: %s", body)
	}

	status, _, body = f.do(t, http.MethodGet, "/api/auth/me", first.Token, "", nil)
	if status != http.StatusUnauthorized || errorCode(t, body) != "session_invalid" {
		t.Fatalf("old token: want 401 session_invalid, got %d body=%s", status, body)
	}
	if status, _, _ := f.do(t, http.MethodGet, "/api/auth/me", forced.Token, "", nil); status != http.StatusOK {
		t.Fatalf("new token rejected: %d", status)
	}

	for _, a := range []string{auditLoginSuccess, auditLoginConflict, auditLoginForced} {
		if !f.audit.has(a) {
			t.Fatalf("missing audit action %s", a)
		}
	}
}

func TestLogin_Failures(t *testing.T) {
	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"wrong password", loginRequest{Email: "alice@example.com", Password: "nope"}, http.StatusUnauthorized, "invalid_credentials"},
		{"unknown email", loginRequest{Email: "ghost@example.com", Password: testPassword}, http.StatusUnauthorized, "invalid_credentials"},
		{"missing password", loginRequest{Email: "alice@example.com"}, http.StatusBadRequest, "invalid_request"},
		{"bad email", loginRequest{Email: "not-an-email", Password: testPassword}, http.StatusBadRequest, "invalid_request"},
		{"unknown field", map[string]any{"email": "alice@example.com", "password": testPassword, "remember": true}, http.StatusBadRequest, "invalid_json"},
	}
	f := newAPIFixture(t, DefaultConfig())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _, body := f.do(t, http.MethodPost, "/api/auth/login", "", "", tc.body)
			if status != tc.status || errorCode(t, body) != tc.code {
				t.Fatalf("want %d/%s got %d body=%s", tc.status, tc.code, status, body)
			}
		})
	}
	if f.coord.Count() != 0 {
		t.Fatalf("failed logins must not create sessions")
	}
}

func TestLogin_LockedReturns423(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoginIPMax = 100
	f := newAPIFixture(t, cfg)

	for i := 0; i < 5; i++ {
		status, _, _ := f.do(t, http.MethodPost, "/api/auth/login", "", "", loginRequest{Email: "alice@example.com", Password: "wrong"})
		if status != http.StatusUnauthorized {
			t.Fatalf("attempt %d: want 401 got %d", i, status)
		}
	}
	status, hdr, body := f.do(t, http.MethodPost, "/api/auth/login", "", "", loginRequest{Email: "alice@example.com", Password: testPassword})
	if status != http.StatusLocked || errorCode(t, body) != "account_locked" {
		t.Fatalf("want 423 got %d body=%s", status, body)
	}
	if hdr.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}

func TestLogin_RateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoginIPMax = 2
	cfg.LoginIPWindow = time.Minute
	f := newAPIFixture(t, cfg)

	for i := 0; i < 2; i++ {
		f.do(t, http.MethodPost, "/api/auth/login", "", "", loginRequest{Email: "ghost@example.com", Password: "x"})
	}
	status, hdr, body := f.do(t, http.MethodPost, "/api/auth/login", "", "", loginRequest{Email: "alice@example.com", Password: testPassword})
	if status != http.StatusTooManyRequests || errorCode(t, body) != "rate_limited" {
		t.Fatalf("want 429 got %d body=%s", status, body)
	}
	if hdr.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	if !f.audit.has(auditLoginRateLimited) {
		t.Fatalf("rate limit not audited")
	}
}

func TestLogin_RedisLimiter(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := DefaultConfig()
	f := newAPIFixture(t, cfg, WithLimiter(NewRedisLimiter(rdb, 1, time.Minute)))

	f.login(t, "alice@example.com", false, "")
	status, _, _ := f.do(t, http.MethodPost, "/api/auth/login", "", "", loginRequest{Email: "boss@example.com", Password: testPassword})
	if status != http.StatusTooManyRequests {
		t.Fatalf("want 429 got %d", status)
	}
}

func TestLogout_RemovesSession(t *testing.T) {
	f := newAPIFixture(t, DefaultConfig())
	tok := f.login(t, "alice@example.com", false, "").Token
	_, _, body := f.do(t, http.MethodGet, "/api/auth/me", tok, "", nil)
	var me userResponse
	mustDecode(t, body, &me)

	status, _, body := f.do(t, http.MethodPost, "/api/auth/logout", tok, "", nil)
	if status != http.StatusOK {
		t.Fatalf("logout: %d %s", status, body)
	}
	var out logoutResponse
	mustDecode(t, body, &out)
	if !out.Success {
		t.Fatalf("expected success")
	}
	if _, ok := f.coord.Lookup(me.AccountID); ok {
		t.Fatalf("session should be gone")
	}

	status, _, body = f.do(t, http.MethodPost, "/api/auth/logout", tok, "", nil)
	if status != http.StatusUnauthorized || errorCode(t, body) != "session_invalid" {
		t.Fatalf("second logout: want 401 session_invalid, got %d %s", status, body)
	}

	// A fresh login is a plain success again.
	f.login(t, "alice@example.com", false, "")
}

func TestSessionIntrospection(t *testing.T) {
	f := newAPIFixture(t, DefaultConfig())
	tok := f.login(t, "alice@example.com", false, iphoneUA).Token

	status, _, body := f.do(t, http.MethodGet, "/api/auth/session", tok, "", nil)
	if status != http.StatusOK {
		t.Fatalf("session: %d %s", status, body)
	}
	var s sessionResponse
	mustDecode(t, body, &s)
	if s.UserAgent != iphoneUA || s.IsChannelAttached || s.LoginTime.IsZero() {
		t.Fatalf("unexpected session: %+v", s)
	}
	if s.LastActivity.Before(s.LoginTime) {
		t.Fatalf("last activity before login time")
	}
	if s.Device.Device != "iPhone" || s.Device.OS != "iOS" {
		t.Fatalf("device mismatch: %+v", s.Device)
	}

	status, _, body = f.do(t, http.MethodGet, "/api/auth/me", tok, "", nil)
	var me userResponse
	mustDecode(t, body, &me)
	if status != http.StatusOK || me.Email != "alice@example.com" || me.Role != "customer" {
		t.Fatalf("me mismatch: %d %+v", status, me)
	}
}

func TestGate_Rejections(t *testing.T) {
	f := newAPIFixture(t, DefaultConfig())
	cases := []struct {
		name   string
		header string
		code   string
	}{
		{"missing", "", "unauthorized"},
		{"not bearer", "Basic abc", "unauthorized"},
		{"garbage", "Bearer not-a-token", "invalid_token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/api/auth/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := f.srv.Client().Do(req)
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			defer func() { _ = resp.Body.Close() }()
			b, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusUnauthorized || errorCode(t, b) != tc.code {
				t.Fatalf("want 401/%s got %d %s", tc.code, resp.StatusCode, b)
			}
		})
	}
}

func TestAdmin_ListAndLogoutAll(t *testing.T) {
	f := newAPIFixture(t, DefaultConfig())
	customer := f.login(t, "alice@example.com", false, chromeUA).Token
	admin := f.login(t, "boss@example.com", false, "").Token

	status, _, body := f.do(t, http.MethodGet, "/api/admin/sessions", customer, "", nil)
	if status != http.StatusForbidden || errorCode(t, body) != "forbidden" {
		t.Fatalf("customer: want 403 got %d %s", status, body)
	}

	status, _, body = f.do(t, http.MethodGet, "/api/admin/sessions", admin, "", nil)
	if status != http.StatusOK {
		t.Fatalf("list: %d %s", status, body)
	}
	var list adminSessionsResponse
	mustDecode(t, body, &list)
	if list.Count != 2 || len(list.Sessions) != 2 {
		t.Fatalf("list mismatch: %+v", list)
	}

	// Attach a channel so the eviction reaches the notifier.
	if !f.coord.AttachChannel(list.Sessions[0].AccountID, "ch-1") {
		t.Fatalf("AttachChannel failed")
	}

	status, _, body = f.do(t, http.MethodPost, "/api/admin/sessions/logout-all", admin, "", nil)
	if status != http.StatusOK {
		t.Fatalf("logout-all: %d %s", status, body)
	}
	var out logoutAllResponse
	mustDecode(t, body, &out)
	if out.Evicted != 2 || f.coord.Count() != 0 {
		t.Fatalf("evicted=%d remaining=%d", out.Evicted, f.coord.Count())
	}

	f.mu.Lock()
	evicted := append([]string(nil), f.evicted...)
	f.mu.Unlock()
	if len(evicted) != 1 || evicted[0] != "ch-1" {
		t.Fatalf("notified channels mismatch: %v", evicted)
	}

	status, _, _ = f.do(t, http.MethodGet, "/api/admin/sessions", admin, "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("admin token should be revoked too, got %d", status)
	}
}

func TestGate_AccountStateRechecked(t *testing.T) {
	t.Run("deactivated admin", func(t *testing.T) {
		f := newAPIFixture(t, DefaultConfig())
		admin := f.login(t, "boss@example.com", false, "")
		if !f.store.SetActive(admin.User.AccountID, false) {
			t.Fatalf("SetActive failed")
		}

		status, _, body := f.do(t, http.MethodGet, "/api/admin/sessions", admin.Token, "", nil)
		if status != http.StatusUnauthorized || errorCode(t, body) != "session_invalid" {
			t.Fatalf("list: want 401 session_invalid got %d %s", status, body)
		}
		status, _, body = f.do(t, http.MethodPost, "/api/admin/sessions/logout-all", admin.Token, "", nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("logout-all: want 401 got %d %s", status, body)
		}
		if _, ok := f.coord.Lookup(admin.User.AccountID); ok {
			t.Fatalf("session of a deactivated account must be removed")
		}
	})

	t.Run("demoted admin", func(t *testing.T) {
		f := newAPIFixture(t, DefaultConfig())
		admin := f.login(t, "boss@example.com", false, "")
		if !f.store.SetRole(admin.User.AccountID, identity.RoleCustomer) {
			t.Fatalf("SetRole failed")
		}

		status, _, body := f.do(t, http.MethodGet, "/api/admin/sessions", admin.Token, "", nil)
		if status != http.StatusForbidden || errorCode(t, body) != "forbidden" {
			t.Fatalf("want 403 forbidden got %d %s", status, body)
		}
		if _, ok := f.coord.Lookup(admin.User.AccountID); !ok {
			t.Fatalf("a demoted account keeps its session")
		}
	})
}

func TestMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t, DefaultConfig())
	status, _, _ := f.do(t, http.MethodGet, "/api/auth/login", "", "", nil)
	if status != http.StatusMethodNotAllowed {
		t.Fatalf("want 405 got %d", status)
	}
}

func TestDescribeDevice(t *testing.T) {
	cases := []struct {
		ua   string
		want deviceResponse
	}{
		{"", deviceResponse{Browser: "Unknown Browser", OS: "Unknown OS", Device: "Desktop"}},
		{chromeUA, deviceResponse{Browser: "Chrome", OS: "Windows", Device: "Desktop"}},
	}
	for _, tc := range cases {
		if got := describeDevice(tc.ua); got != tc.want {
			t.Fatalf("describeDevice(%q)=%+v want %+v", tc.ua, got, tc.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.2:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientIP(r, false).String(); got != "10.0.0.2" {
		t.Fatalf("untrusted proxy: got %s", got)
	}
	if got := clientIP(r, true).String(); got != "203.0.113.9" {
		t.Fatalf("trusted proxy: got %s", got)
	}
}
