package session

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/2impaoo-it/feedback-system/cmd/security/token"
)

// Status is the result kind of a create call.
type Status int

const (
	StatusCreated Status = iota + 1
	StatusConflict
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// NewSession carries the inputs of a create call.
type NewSession struct {
	AccountID     string
	Token         string
	ChannelID     string
	UserAgent     string
	OriginAddress string
}

// Outcome is returned by CreateSession and ForceCreateSession.
type Outcome struct {
	Status Status

	// Session is the stored Session on StatusCreated.
	Session Summary

	// Existing describes the live Session on StatusConflict.
	Existing LoginInfo

	// OldSessionTerminated is set by ForceCreateSession when a prior Session was replaced.
	OldSessionTerminated bool
}

// Coordinator owns the session table. All mutation goes through it.
type Coordinator struct {
	cfg      Config
	now      func() time.Time
	hash     token.Hasher
	log      *slog.Logger
	observer Observer
	// ended hears about Sessions that end without a caller-supplied Notifier:
	// logout, idle expiry and sweeps.
	ended Notifier

	mu sync.Mutex
	st *table
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTokenHasher sets the digest used for stored tokens.
func WithTokenHasher(h token.Hasher) Option {
	return func(c *Coordinator) {
		if h != nil {
			c.hash = h
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithEndNotifier sets the Notifier told when a Session with an attached
// channel ends through logout or idle expiry.
func WithEndNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.ended = n
		}
	}
}

// NewCoordinator builds an empty Coordinator.
func NewCoordinator(cfg Config, opts ...Option) *Coordinator {
	def := DefaultConfig()
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	c := &Coordinator{
		cfg:      cfg,
		now:      time.Now,
		hash:     token.HashSHA256Hex,
		log:      slog.Default(),
		observer: nopObserver{},
		st:       newTable(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config { return c.cfg }

func (c *Coordinator) newSession(req NewSession, now time.Time) *Session {
	return &Session{
		AccountID:     req.AccountID,
		TokenHash:     c.hash(req.Token),
		ChannelID:     strings.TrimSpace(req.ChannelID),
		LoginTime:     now,
		LastActivity:  now,
		UserAgent:     req.UserAgent,
		OriginAddress: req.OriginAddress,
	}
}

func validNewSession(req NewSession) error {
	if strings.TrimSpace(req.AccountID) == "" || req.Token == "" {
		return ErrInvalidInput
	}
	return nil
}

// CreateSession inserts a Session unless the account already has one.
// On conflict the table is left untouched and the live Session's login info is returned.
func (c *Coordinator) CreateSession(req NewSession) (Outcome, error) {
	if err := validNewSession(req); err != nil {
		return Outcome{}, err
	}
	now := c.now()

	c.mu.Lock()
	if existing, ok := c.st.get(req.AccountID); ok {
		info := existing.loginInfo()
		active := c.st.len()
		c.mu.Unlock()

		c.observer.SessionEvent(EventConflict, 1, active)
		return Outcome{Status: StatusConflict, Existing: info}, nil
	}
	s := c.newSession(req, now)
	c.st.put(s)
	sum := s.summary()
	active := c.st.len()
	c.mu.Unlock()

	c.log.Info("session.created", "account_id", req.AccountID, "origin", req.OriginAddress, "channel", sum.ChannelAttached)
	c.observer.SessionEvent(EventCreated, 1, active)
	return Outcome{Status: StatusCreated, Session: sum}, nil
}

// ForceCreateSession replaces any live Session for the account.
//
// The old Session is gone before n is invoked; n receives the old channel id
// (if any) and the new login's info. n may be nil.
func (c *Coordinator) ForceCreateSession(req NewSession, n Notifier) (Outcome, error) {
	if err := validNewSession(req); err != nil {
		return Outcome{}, err
	}
	now := c.now()

	var pending []delivery

	c.mu.Lock()
	var oldChannel string
	if old, ok := c.st.get(req.AccountID); ok {
		oldChannel = old.ChannelID
	}
	_, replaced := c.st.delete(req.AccountID)
	s := c.newSession(req, now)
	if oldChannel != "" && oldChannel != s.ChannelID {
		pending = append(pending, delivery{
			channelID: oldChannel,
			ev: Eviction{
				Reason:   ReasonReplaced,
				Message:  messageReplaced,
				NewLogin: &LoginInfo{Time: now, UserAgent: req.UserAgent, OriginAddress: req.OriginAddress},
			},
		})
	}
	c.st.put(s)
	sum := s.summary()
	active := c.st.len()
	c.mu.Unlock()

	c.observer.SessionEvent(EventCreated, 1, active)
	if replaced {
		c.log.Info("session.replaced", "account_id", req.AccountID, "origin", req.OriginAddress)
		c.observer.SessionEvent(EventReplaced, 1, active)
	}
	c.deliver(n, pending)

	return Outcome{Status: StatusCreated, Session: sum, OldSessionTerminated: replaced}, nil
}

// Validate checks token against the account's Session and bumps its activity.
//
// It returns ErrSessionInvalid when there is no Session or the token does not
// match, and ErrSessionExpired (after removing the Session) when it was idle
// past the timeout.
func (c *Coordinator) Validate(accountID, tok string) error {
	if accountID == "" || tok == "" {
		return ErrSessionInvalid
	}
	digest := c.hash(tok)
	now := c.now()

	c.mu.Lock()
	s, ok := c.st.get(accountID)
	if !ok || !token.Equal(s.TokenHash, digest) {
		c.mu.Unlock()
		return ErrSessionInvalid
	}
	if now.Sub(s.LastActivity) > c.cfg.IdleTimeout {
		pending := endedDelivery(s, ReasonExpired, messageExpired)
		c.st.delete(accountID)
		active := c.st.len()
		c.mu.Unlock()

		c.log.Info("session.expired", "account_id", accountID)
		c.observer.SessionEvent(EventExpired, 1, active)
		c.deliver(c.ended, pending)
		return ErrSessionExpired
	}
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
	c.mu.Unlock()
	return nil
}

// ValidateSession reports whether tok is the live token for accountID.
func (c *Coordinator) ValidateSession(accountID, tok string) bool {
	return c.Validate(accountID, tok) == nil
}

// AttachChannel links channelID to the account's Session, replacing any
// previous link. It reports false (and does nothing) when no Session exists.
func (c *Coordinator) AttachChannel(accountID, channelID string) bool {
	channelID = strings.TrimSpace(channelID)
	if accountID == "" || channelID == "" {
		return false
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.st.get(accountID)
	if !ok {
		return false
	}
	c.st.link(s, channelID)
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
	return true
}

// AttachChannelFor links channelID only if tok is still the account's live
// token, checked under the same lock as the link. It returns the same errors
// as Validate.
func (c *Coordinator) AttachChannelFor(accountID, tok, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if accountID == "" || tok == "" || channelID == "" {
		return ErrSessionInvalid
	}
	digest := c.hash(tok)
	now := c.now()

	c.mu.Lock()
	s, ok := c.st.get(accountID)
	if !ok || !token.Equal(s.TokenHash, digest) {
		c.mu.Unlock()
		return ErrSessionInvalid
	}
	if now.Sub(s.LastActivity) > c.cfg.IdleTimeout {
		pending := endedDelivery(s, ReasonExpired, messageExpired)
		c.st.delete(accountID)
		active := c.st.len()
		c.mu.Unlock()

		c.log.Info("session.expired", "account_id", accountID)
		c.observer.SessionEvent(EventExpired, 1, active)
		c.deliver(c.ended, pending)
		return ErrSessionExpired
	}
	c.st.link(s, channelID)
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
	c.mu.Unlock()
	return nil
}

// RemoveSession deletes the account's Session (explicit logout).
// An attached channel is told through the end notifier.
func (c *Coordinator) RemoveSession(accountID string) bool {
	c.mu.Lock()
	var pending []delivery
	if s, ok := c.st.get(accountID); ok {
		pending = endedDelivery(s, ReasonLoggedOut, messageLoggedOut)
	}
	_, ok := c.st.delete(accountID)
	active := c.st.len()
	c.mu.Unlock()

	if ok {
		c.log.Info("session.removed", "account_id", accountID)
		c.observer.SessionEvent(EventLogout, 1, active)
		c.deliver(c.ended, pending)
	}
	return ok
}

// RemoveByChannel unlinks a disconnected channel. The Session survives.
//
// A disconnect that arrives after the account re-attached a newer channel
// is ignored.
func (c *Coordinator) RemoveByChannel(channelID string) bool {
	if channelID == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	accountID, ok := c.st.channelOwner(channelID)
	if !ok {
		return false
	}
	s, ok := c.st.get(accountID)
	if !ok || s.ChannelID != channelID {
		return false
	}
	c.st.unlink(s)
	return true
}

// Sweep removes every Session idle past the timeout as of now.
func (c *Coordinator) Sweep(now time.Time) int {
	c.mu.Lock()
	var (
		expired []string
		pending []delivery
	)
	c.st.each(func(s *Session) {
		if now.Sub(s.LastActivity) > c.cfg.IdleTimeout {
			expired = append(expired, s.AccountID)
			pending = append(pending, endedDelivery(s, ReasonExpired, messageExpired)...)
		}
	})
	for _, id := range expired {
		c.st.delete(id)
	}
	active := c.st.len()
	c.mu.Unlock()

	if len(expired) > 0 {
		c.log.Info("session.sweep", "removed", len(expired), "active", active)
		c.observer.SessionEvent(EventSwept, len(expired), active)
	}
	c.deliver(c.ended, pending)
	return len(expired)
}

// Lookup returns the account's Session summary.
func (c *Coordinator) Lookup(accountID string) (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.st.get(accountID)
	if !ok {
		return Summary{}, false
	}
	return s.summary(), true
}

// ListActive returns all Sessions ordered by login time.
func (c *Coordinator) ListActive() []Summary {
	c.mu.Lock()
	out := make([]Summary, 0, c.st.len())
	c.st.each(func(s *Session) {
		out = append(out, s.summary())
	})
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LoginTime.Equal(out[j].LoginTime) {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].LoginTime.Before(out[j].LoginTime)
	})
	return out
}

// Count returns the number of live Sessions.
func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.len()
}

// EvictAll clears the table and notifies every attached channel.
// It returns the number of Sessions removed.
func (c *Coordinator) EvictAll(n Notifier) int {
	c.mu.Lock()
	count := c.st.len()
	var pending []delivery
	c.st.each(func(s *Session) {
		if s.ChannelID != "" {
			pending = append(pending, delivery{
				channelID: s.ChannelID,
				ev:        Eviction{Reason: ReasonAdminLogoutAll, Message: messageAdminLogoutAll},
			})
		}
	})
	c.st.reset()
	c.mu.Unlock()

	c.log.Warn("session.evict_all", "evicted", count, "notified", len(pending))
	if count > 0 {
		c.observer.SessionEvent(EventEvicted, count, 0)
	}
	c.deliver(n, pending)
	return count
}

// endedDelivery captures s's channel before the table unlinks it.
func endedDelivery(s *Session, reason, msg string) []delivery {
	if s.ChannelID == "" {
		return nil
	}
	return []delivery{{channelID: s.ChannelID, ev: Eviction{Reason: reason, Message: msg}}}
}

func (c *Coordinator) deliver(n Notifier, pending []delivery) {
	if n == nil {
		return
	}
	for _, d := range pending {
		n.NotifyEviction(d.channelID, d.ev)
	}
}
