// Package login runs the login decision: verify credentials, then either
// create a Session, report a conflict, or force-replace the existing Session.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2impaoo-it/feedback-system/cmd/identity"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/accesstoken"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/session"
)

// Outcome is the terminal state of a successful login call.
type Outcome int

const (
	Success Outcome = iota + 1
	Conflict
	Forced
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Conflict:
		return "conflict"
	case Forced:
		return "forced"
	default:
		return "unknown"
	}
}

var (
	// ErrAuthenticationFailed is returned for any credential failure. It is terminal.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAccountLocked is returned while the account is locked; see identity.LockedError for the expiry.
	ErrAccountLocked = identity.ErrAccountLocked
)

// Credentials verifies an email/password pair.
type Credentials interface {
	Verify(ctx context.Context, email, secret string) (identity.Principal, error)
}

// Sessions is the subset of session.Coordinator used by the protocol.
type Sessions interface {
	CreateSession(req session.NewSession) (session.Outcome, error)
	ForceCreateSession(req session.NewSession, n session.Notifier) (session.Outcome, error)
}

// Recorder counts outcomes. Labels: success, conflict, forced, failed, locked, error.
type Recorder interface {
	LoginOutcome(outcome string)
}

// Request is one login attempt.
type Request struct {
	Email    string
	Password string
	Force    bool

	ChannelID     string
	UserAgent     string
	OriginAddress string
}

// Result describes a Success, Conflict or Forced login.
type Result struct {
	Outcome   Outcome
	Principal identity.Principal

	// Token and ExpiresAt are empty on Conflict.
	Token     string
	ExpiresAt time.Time

	Session              session.Summary
	Existing             session.LoginInfo
	OldSessionTerminated bool
}

// Protocol wires the credential verifier, token codec and session table.
type Protocol struct {
	creds    Credentials
	tokens   accesstoken.Manager
	sessions Sessions
	notifier session.Notifier
	recorder Recorder
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Protocol)

func WithNotifier(n session.Notifier) Option {
	return func(p *Protocol) { p.notifier = n }
}

func WithRecorder(r Recorder) Option {
	return func(p *Protocol) { p.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(p *Protocol) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(p *Protocol) {
		if log != nil {
			p.log = log
		}
	}
}

// New builds a Protocol.
func New(creds Credentials, tokens accesstoken.Manager, sessions Sessions, opts ...Option) *Protocol {
	p := &Protocol{
		creds:    creds,
		tokens:   tokens,
		sessions: sessions,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Login runs one attempt.
//
// Without Force an existing Session yields Conflict and nothing is mutated.
// With Force the existing Session is replaced and its channel notified; the
// Forced path never returns Conflict.
func (p *Protocol) Login(ctx context.Context, req Request) (Result, error) {
	principal, err := p.creds.Verify(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			p.record("failed")
			return Result{}, fmt.Errorf("login: %w", ErrAuthenticationFailed)
		case errors.Is(err, identity.ErrAccountLocked):
			p.record("locked")
			return Result{}, err
		default:
			p.record("error")
			return Result{}, fmt.Errorf("login: verify: %w", err)
		}
	}

	now := p.now().UTC()
	tok, exp, err := p.tokens.Issue(accesstoken.Subject{
		AccountID: principal.AccountID,
		Email:     principal.Email,
		Role:      string(principal.Role),
	}, now)
	if err != nil {
		p.record("error")
		return Result{}, fmt.Errorf("login: issue token: %w", err)
	}

	ns := session.NewSession{
		AccountID:     principal.AccountID,
		Token:         tok,
		ChannelID:     req.ChannelID,
		UserAgent:     req.UserAgent,
		OriginAddress: req.OriginAddress,
	}

	if req.Force {
		out, err := p.sessions.ForceCreateSession(ns, p.notifier)
		if err != nil {
			p.record("error")
			return Result{}, fmt.Errorf("login: force create: %w", err)
		}
		p.record(Forced.String())
		p.log.Info("login.forced", "account_id", principal.AccountID, "old_session_terminated", out.OldSessionTerminated)
		return Result{
			Outcome:              Forced,
			Principal:            principal,
			Token:                tok,
			ExpiresAt:            exp,
			Session:              out.Session,
			OldSessionTerminated: out.OldSessionTerminated,
		}, nil
	}

	out, err := p.sessions.CreateSession(ns)
	if err != nil {
		p.record("error")
		return Result{}, fmt.Errorf("login: create: %w", err)
	}
	if out.Status == session.StatusConflict {
		p.record(Conflict.String())
		p.log.Info("login.conflict", "account_id", principal.AccountID, "origin", req.OriginAddress)
		return Result{Outcome: Conflict, Principal: principal, Existing: out.Existing}, nil
	}

	p.record(Success.String())
	p.log.Info("login.success", "account_id", principal.AccountID)
	return Result{
		Outcome:   Success,
		Principal: principal,
		Token:     tok,
		ExpiresAt: exp,
		Session:   out.Session,
	}, nil
}

func (p *Protocol) record(outcome string) {
	if p.recorder != nil {
		p.recorder.LoginOutcome(outcome)
	}
}
