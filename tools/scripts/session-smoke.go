// Package main is a CI-friendly end-to-end smoke test for a running feedbackd.
//
// It validates:
//   - login over HTTP
//   - websocket handshake, subprotocol selection and authenticate
//   - a second login is refused with 409 while the first session lives
//   - force-login pushes force_logout to the old channel and closes it with 4001
//   - the old token is rejected and the new one is accepted
//   - logout
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "github.com/2impaoo-it/feedback-system/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20

type loginResult struct {
	Token string `json:"token"`
	User  struct {
		AccountID string `json:"accountId"`
		Role      string `json:"role"`
	} `json:"user"`
	OldSessionTerminated *bool `json:"oldSessionTerminated"`
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "server base URL")
		origin   = flag.String("origin", "http://localhost", "Origin header for the websocket handshake")
		email    = flag.String("email", os.Getenv("FEEDBACK_SMOKE_EMAIL"), "account email")
		password = flag.String("password", os.Getenv("FEEDBACK_SMOKE_PASSWORD"), "account password")
		timeout  = flag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose  = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	if *email == "" || *password == "" {
		fatalf("-email and -password (or FEEDBACK_SMOKE_EMAIL / FEEDBACK_SMOKE_PASSWORD) are required")
	}
	base, err := url.Parse(strings.TrimRight(*baseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid -url %q", *baseURL)
	}
	wsURL := *base
	wsURL.Scheme = map[string]string{"http": "ws", "https": "wss"}[base.Scheme]
	wsURL.Path = "/ws"

	root := context.Background()
	hc := &http.Client{Timeout: *timeout}

	// Start from a clean slate: a leftover session from an earlier run would
	// make the first login conflict.
	first := mustPostLogin(hc, base.String()+"/api/auth/force-login", *email, *password, http.StatusOK, http.StatusCreated)
	if *verbose {
		fmt.Printf("login ok: account=%s role=%s\n", first.User.AccountID, first.User.Role)
	}

	conn := mustConnect(root, wsURL.String(), *origin, *timeout)
	defer conn.CloseNow()
	mustAuthenticate(root, conn, first, *timeout)
	if *verbose {
		fmt.Println("ws authenticated")
	}

	mustPostLogin(hc, base.String()+"/api/auth/login", *email, *password, http.StatusConflict)
	if *verbose {
		fmt.Println("conflict ok")
	}

	second := mustPostLogin(hc, base.String()+"/api/auth/force-login", *email, *password, http.StatusOK)
	if second.OldSessionTerminated == nil || !*second.OldSessionTerminated {
		fatalf("force-login did not report oldSessionTerminated")
	}

	env := mustReadUntilType(root, conn, v1.TypeForceLogout, *timeout)
	var fl v1.ForceLogoutPayload
	if err := json.Unmarshal(env.Payload, &fl); err != nil {
		fatalf("unmarshal force_logout: %v", err)
	}
	if fl.Reason != "session_replaced" || fl.NewLoginInfo == nil {
		fatalf("unexpected force_logout payload: %+v", fl)
	}
	mustSeeClose(root, conn, v1.CloseSessionEnded, *timeout)
	if *verbose {
		fmt.Println("force_logout + 4001 ok")
	}

	if code := getStatus(hc, base.String()+"/api/auth/session", first.Token); code != http.StatusUnauthorized {
		fatalf("old token still accepted: status=%d", code)
	}
	if code := getStatus(hc, base.String()+"/api/auth/session", second.Token); code != http.StatusOK {
		fatalf("new token rejected: status=%d", code)
	}

	req, _ := http.NewRequest(http.MethodPost, base.String()+"/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+second.Token)
	resp, err := hc.Do(req)
	if err != nil {
		fatalf("logout: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fatalf("logout status=%d", resp.StatusCode)
	}

	fmt.Println("session smoke: OK")
}

func mustPostLogin(hc *http.Client, endpoint, email, password string, want ...int) loginResult {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := hc.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		fatalf("POST %s: %v", endpoint, err)
	}
	defer resp.Body.Close()

	ok := false
	for _, w := range want {
		ok = ok || resp.StatusCode == w
	}
	if !ok {
		fatalf("POST %s: status=%d want=%v", endpoint, resp.StatusCode, want)
	}
	var out loginResult
	if resp.StatusCode != http.StatusConflict {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fatalf("decode login response: %v", err)
		}
		if out.Token == "" || out.User.AccountID == "" {
			fatalf("login response missing token or accountId")
		}
	}
	return out
}

func getStatus(hc *http.Client, endpoint, tok string) int {
	req, _ := http.NewRequest(http.MethodGet, endpoint, nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.Do(req)
	if err != nil {
		fatalf("GET %s: %v", endpoint, err)
	}
	_ = resp.Body.Close()
	return resp.StatusCode
}

func mustConnect(parent context.Context, wsURL, origin string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustAuthenticate(parent context.Context, conn *websocket.Conn, lr loginResult, stepTimeout time.Duration) {
	env, err := v1.NewEnvelope(v1.TypeAuthenticate, "smoke-auth", time.Now().UTC(), v1.AuthenticatePayload{
		Token:     lr.Token,
		AccountID: lr.User.AccountID,
	})
	if err != nil {
		fatalf("build authenticate: %v", err)
	}
	mustWrite(parent, conn, env, stepTimeout)

	ack := mustReadUntilType(parent, conn, v1.TypeAuthenticated, stepTimeout)
	var p v1.AuthenticatedPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal authenticated: %v", err)
	}
	if p.AccountID != lr.User.AccountID || p.ChannelID == "" {
		fatalf("unexpected authenticated payload: %+v", p)
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal %s: %v", env.Type, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write %s: %v", env.Type, err)
	}
}

// mustReadUntilType skips connection_stats and other pushes until typ arrives.
func mustReadUntilType(parent context.Context, conn *websocket.Conn, typ string, timeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			fatalf("waiting for %s: %v", typ, err)
		}
		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			fatalf("bad json while waiting for %s: %v", typ, err)
		}
		if env.Type == v1.TypeAuthError || env.Type == v1.TypeError {
			if typ != env.Type {
				fatalf("got %s while waiting for %s: %s", env.Type, typ, string(env.Payload))
			}
		}
		if env.Type == typ {
			return env
		}
	}
}

func mustSeeClose(parent context.Context, conn *websocket.Conn, want websocket.StatusCode, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	for {
		_, _, err := conn.Read(ctx)
		if err == nil {
			continue
		}
		var ce websocket.CloseError
		if errors.As(err, &ce) && ce.Code == want {
			return
		}
		fatalf("expected close %d, got %v", want, err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "session smoke: "+format+"\n", args...)
	os.Exit(1)
}
