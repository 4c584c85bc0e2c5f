package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/accesstoken"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/session"
	v1 "github.com/2impaoo-it/feedback-system/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	wsCloseGrace      = 1 * time.Second
	wsMaxPingFailures = 3
)

// Authenticator is the request gate.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (accesstoken.Claims, error)
}

// ChannelBinder is the part of session.Coordinator the gateway drives.
type ChannelBinder interface {
	AttachChannelFor(accountID, token, channelID string) error
	RemoveByChannel(channelID string) bool
	Count() int
}

// ConnObserver is told about connection opens and closes.
type ConnObserver interface {
	WSConnected()
	WSDisconnected()
}

// WSGateway is the websocket entrypoint.
//
// It enforces origin policy, subprotocol selection, the authenticate
// handshake, rate limits and heartbeats. Authenticated channels are linked
// to their session and registered in the Hub so evictions can reach them.
type WSGateway struct {
	log      *slog.Logger
	hub      *Hub
	auth     Authenticator
	sessions ChannelBinder
	obs      ConnObserver
	cfg      Config

	// websocket.Accept authorizes same-host origins by itself; cross-origin
	// requests need OriginPatterns derived from the allowlist.
	originPatterns []string
}

type GatewayOption func(*WSGateway)

func WithConnObserver(o ConnObserver) GatewayOption {
	return func(g *WSGateway) { g.obs = o }
}

// NewWSGateway constructs a gateway.
func NewWSGateway(log *slog.Logger, hub *Hub, auth Authenticator, sessions ChannelBinder, cfg Config, opts ...GatewayOption) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log)
	}
	cfg = cfg.normalized()

	g := &WSGateway{
		log:            log,
		hub:            hub,
		auth:           auth,
		sessions:       sessions,
		cfg:            cfg,
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Hub returns the gateway's hub (the eviction notifier).
func (g *WSGateway) Hub() *Hub { return g.hub }

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and runs the connection until it closes.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	if g.obs != nil {
		g.obs.WSConnected()
		defer g.obs.WSDisconnected()
	}

	client := NewClient(NewChannelID(time.Now().UTC()), g.cfg.SendQueueSize)
	channelID := client.ChannelID

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		closeOnce sync.Once
		bound     atomic.Bool
	)

	// shutdown is idempotent. It unlinks the channel from its session (the
	// session itself survives) and never closes the client's send queue.
	// Unlinking an unknown channel is a no-op.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unregister(channelID)
			g.sessions.RemoveByChannel(channelID)
			if bound.Load() {
				g.log.Info("ws.disconnect", "channel_id", channelID, "account_id", client.AccountID(), "reason", reason)
			}
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				shutdown(closeCodeFor(client))
				return
			case out := <-client.send:
				if err := writeEnvelope(ctx, conn, out.env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "channel_id", channelID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
				if out.closeAfter {
					shutdown(closeCodeFor(client))
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "channel_id", channelID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	// The library closes the connection when a read context expires, so the
	// auth deadline runs beside the read instead of bounding it.
	authTimer := time.AfterFunc(g.cfg.AuthTimeout, func() {
		if bound.Load() {
			return
		}
		env, err := newEnvelope(v1.TypeAuthError, v1.AuthErrorPayload{Message: "authentication timeout"})
		if err != nil || !client.enqueue(outbound{env: env, closeAfter: true}) {
			shutdown(websocket.StatusPolicyViolation, "authentication timeout")
		}
	})
	defer authTimer.Stop()

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)
	attempts := 0

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				if ctx.Err() != nil {
					shutdown(websocket.StatusNormalClosure, "context done")
					break readLoop
				}
				shutdown(websocket.StatusGoingAway, "idle timeout")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "channel_id", channelID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if !rl.Allow(time.Now().UTC()) {
			g.trySendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypeAuthenticate:
			if bound.Load() {
				g.trySendError(client, "already_authenticated", "channel is already authenticated")
				continue readLoop
			}
			attempts++
			if err := g.onAuthenticate(ctx, client, env); err != nil {
				left := maxAuthAttempts - attempts
				g.log.Info("ws.auth.fail", "channel_id", channelID, "attempt", attempts, "err", err)
				if left <= 0 {
					g.closeWithAuthError(client, writerDone, err.Error(), 0)
					shutdown(websocket.StatusPolicyViolation, "authentication failed")
					break readLoop
				}
				g.sendAuthError(client, err.Error(), left)
				continue readLoop
			}
			bound.Store(true)
			authTimer.Stop()

		default:
			if !bound.Load() {
				g.trySendError(client, "unauthenticated", "authenticate first")
				continue readLoop
			}
			g.trySendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// RunStats pushes connection_stats to the admin rooms every StatsInterval
// until ctx is done.
func (g *WSGateway) RunStats(ctx context.Context) {
	t := time.NewTicker(g.cfg.StatsInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			g.BroadcastStats()
		}
	}
}

// BroadcastStats sends one connection_stats snapshot to role:admin and role:superAdmin.
func (g *WSGateway) BroadcastStats() {
	env, err := newEnvelope(v1.TypeConnectionStats, v1.ConnectionStatsPayload{
		ConnectedUsers: g.hub.ConnectedUsers(),
		ActiveSessions: g.sessions.Count(),
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		g.log.Error("ws.stats.encode.fail", "err", err)
		return
	}
	g.hub.Broadcast(RoleRoom("admin"), env)
	g.hub.Broadcast(RoleRoom("superAdmin"), env)
}

// ---- handlers ----

var (
	errAuthPayload  = errors.New("token and accountId are required")
	errAuthSession  = errors.New("invalid or expired session")
	errAuthMismatch = errors.New("token does not belong to accountId")
)

// onAuthenticate binds the channel. The client is registered in the hub
// before its channel is linked so that an eviction racing the link still
// finds it.
func (g *WSGateway) onAuthenticate(ctx context.Context, client *Client, env v1.Envelope) error {
	var p v1.AuthenticatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return errAuthPayload
	}
	p.Token = strings.TrimSpace(p.Token)
	p.AccountID = strings.TrimSpace(p.AccountID)
	if p.Token == "" || p.AccountID == "" {
		return errAuthPayload
	}

	claims, err := g.auth.Authenticate(ctx, p.Token)
	if err != nil {
		return errAuthSession
	}
	if claims.AccountID != p.AccountID {
		return errAuthMismatch
	}

	client.bind(claims.AccountID, claims.Role)
	g.hub.Register(client)
	if err := g.sessions.AttachChannelFor(claims.AccountID, p.Token, client.ChannelID); err != nil {
		g.hub.Unregister(client.ChannelID)
		client.bind("", "")
		return errAuthSession
	}

	ack, err := newEnvelope(v1.TypeAuthenticated, v1.AuthenticatedPayload{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Role:      claims.Role,
		ChannelID: client.ChannelID,
	})
	if err == nil {
		client.Enqueue(ack)
	}
	g.log.Info("ws.auth.ok", "channel_id", client.ChannelID, "account_id", claims.AccountID, "role", claims.Role)
	return nil
}

// ---- send helpers ----

func (g *WSGateway) trySendError(client *Client, code, msg string) {
	env, err := newEnvelope(v1.TypeError, v1.ErrorPayload{Code: code, Message: msg})
	if err != nil {
		return
	}
	_ = client.Enqueue(env)
}

func (g *WSGateway) sendAuthError(client *Client, msg string, attemptsLeft int) {
	env, err := newEnvelope(v1.TypeAuthError, v1.AuthErrorPayload{Message: msg, AttemptsLeft: attemptsLeft})
	if err != nil {
		return
	}
	_ = client.Enqueue(env)
}

// closeWithAuthError queues a final auth_error and waits briefly for the writer to flush it.
func (g *WSGateway) closeWithAuthError(client *Client, writerDone <-chan struct{}, msg string, attemptsLeft int) {
	env, err := newEnvelope(v1.TypeAuthError, v1.AuthErrorPayload{Message: msg, AttemptsLeft: attemptsLeft})
	if err != nil || !client.enqueue(outbound{env: env, closeAfter: true}) {
		return
	}
	select {
	case <-writerDone:
	case <-time.After(wsCloseGrace):
	}
}

func closeCodeFor(c *Client) (websocket.StatusCode, string) {
	if c.Evicted() {
		return websocket.StatusCode(v1.CloseSessionEnded), "session ended"
	}
	return websocket.StatusPolicyViolation, "closed by server"
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, errBadJSON{err}
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type errBadJSON struct{ err error }

func (e errBadJSON) Error() string { return "bad json: " + e.err.Error() }
func (e errBadJSON) Unwrap() error { return e.err }

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	var bad errBadJSON
	if errors.As(err, &bad) {
		return readErrBadJSON
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		if a == "*" {
			return nil
		}
		if origin == a {
			return nil
		}
		// Host match ignores scheme and port.
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins turns the allowlist into
// websocket.Accept host patterns. The library matches against host:port, so
// each host is allowed bare and with any port. "*" allows every origin.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, 2*len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			return []string{"*"}
		}
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
		seen[h+":*"] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

var _ session.Notifier = (*Hub)(nil)
