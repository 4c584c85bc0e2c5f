package login

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/2impaoo-it/feedback-system/cmd/identity"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/accesstoken"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/session"
)

type stubCredentials map[string]identity.Principal

func (s stubCredentials) Verify(_ context.Context, email, secret string) (identity.Principal, error) {
	if email == "locked@example.com" {
		return identity.Principal{}, identity.LockedError{Until: time.Now().Add(time.Hour)}
	}
	p, ok := s[email]
	if !ok || secret != "pw" {
		return identity.Principal{}, identity.ErrInvalidCredentials
	}
	return p, nil
}

type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) LoginOutcome(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, o)
}

type evictions struct {
	mu  sync.Mutex
	got map[string]session.Eviction
}

func (e *evictions) NotifyEviction(channelID string, ev session.Eviction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got[channelID] = ev
}

type fixture struct {
	coord   *session.Coordinator
	tokens  accesstoken.Manager
	proto   *Protocol
	rec     *recorder
	evicted *evictions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := accesstoken.DefaultConfig()
	cfg.Kind = accesstoken.KindJWT
	cfg.JWTSecret = strings.Repeat("k", accesstoken.MinJWTSecretBytes)
	tokens, err := accesstoken.New(cfg)
	if err != nil {
		t.Fatalf("accesstoken.New: %v", err)
	}
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		coord:   session.NewCoordinator(session.DefaultConfig(), session.WithLogger(discard)),
		tokens:  tokens,
		rec:     &recorder{},
		evicted: &evictions{got: map[string]session.Eviction{}},
	}
	creds := stubCredentials{
		"u1@example.com": {AccountID: "u1", Email: "u1@example.com", Role: identity.RoleCustomer, Active: true},
	}
	f.proto = New(creds, tokens, f.coord,
		WithNotifier(f.evicted),
		WithRecorder(f.rec),
		WithLogger(discard))
	return f
}

func TestLogin_SuccessThenConflictThenForced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.proto.Login(ctx, Request{Email: "u1@example.com", Password: "pw", UserAgent: "UA-1", OriginAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if first.Outcome != Success || first.Token == "" {
		t.Fatalf("expected Success with token, got %+v", first)
	}
	if !f.coord.AttachChannel("u1", "ch-1") {
		t.Fatalf("attach failed")
	}

	second, err := f.proto.Login(ctx, Request{Email: "u1@example.com", Password: "pw", UserAgent: "UA-2"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if second.Outcome != Conflict || second.Token != "" {
		t.Fatalf("expected Conflict without token, got %+v", second)
	}
	if second.Existing.UserAgent != "UA-1" || second.Existing.OriginAddress != "10.0.0.1" {
		t.Fatalf("existing info mismatch: %+v", second.Existing)
	}
	if err := f.coord.Validate("u1", first.Token); err != nil {
		t.Fatalf("conflict must not touch the live session: %v", err)
	}

	third, err := f.proto.Login(ctx, Request{Email: "u1@example.com", Password: "pw", Force: true, UserAgent: "UA-2", OriginAddress: "10.0.0.2"})
	if err != nil {
		t.Fatalf("forced login: %v", err)
	}
	if third.Outcome != Forced || !third.OldSessionTerminated {
		t.Fatalf("expected Forced with termination, got %+v", third)
	}
	if err := f.coord.Validate("u1", first.Token); !errors.Is(err, session.ErrSessionInvalid) {
		t.Fatalf("old token must be revoked, got %v", err)
	}
	if err := f.coord.Validate("u1", third.Token); err != nil {
		t.Fatalf("new token must validate: %v", err)
	}

	ev, ok := f.evicted.got["ch-1"]
	if !ok || ev.Reason != session.ReasonReplaced || ev.NewLogin == nil || ev.NewLogin.UserAgent != "UA-2" {
		t.Fatalf("expected replacement notice on ch-1, got %+v (ok=%v)", ev, ok)
	}

	want := []string{"success", "conflict", "forced"}
	if strings.Join(f.rec.got, ",") != strings.Join(want, ",") {
		t.Fatalf("recorded outcomes %v, want %v", f.rec.got, want)
	}
}

func TestLogin_ForceWithoutPriorSession(t *testing.T) {
	f := newFixture(t)

	res, err := f.proto.Login(context.Background(), Request{Email: "u1@example.com", Password: "pw", Force: true})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Outcome != Forced || res.OldSessionTerminated {
		t.Fatalf("expected Forced without termination, got %+v", res)
	}
	if len(f.evicted.got) != 0 {
		t.Fatalf("no channel should be notified")
	}
}

func TestLogin_Failures(t *testing.T) {
	cases := []struct {
		name    string
		email   string
		pw      string
		want    error
		outcome string
	}{
		{"wrong password", "u1@example.com", "nope", ErrAuthenticationFailed, "failed"},
		{"unknown account", "ghost@example.com", "pw", ErrAuthenticationFailed, "failed"},
		{"locked", "locked@example.com", "pw", ErrAccountLocked, "locked"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.proto.Login(context.Background(), Request{Email: tc.email, Password: tc.pw, Force: true})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if f.coord.Count() != 0 {
				t.Fatalf("failed login must not create a session")
			}
			if len(f.rec.got) != 1 || f.rec.got[0] != tc.outcome {
				t.Fatalf("recorded %v, want %s", f.rec.got, tc.outcome)
			}
		})
	}
}

func TestLogin_ConcurrentFirstLogins(t *testing.T) {
	f := newFixture(t)

	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.proto.Login(context.Background(), Request{Email: "u1@example.com", Password: "pw"})
			if err != nil {
				t.Errorf("login: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch res.Outcome {
			case Success:
				successes++
			case Conflict:
				conflicts++
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d/%d", n-1, successes, conflicts)
	}
}
