package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls map[string][]Eviction
}

func (r *recordingNotifier) NotifyEviction(channelID string, ev Eviction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string][]Eviction)
	}
	r.calls[channelID] = append(r.calls[channelID], ev)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evs := range r.calls {
		n += len(evs)
	}
	return n
}

type countingObserver struct {
	mu     sync.Mutex
	events map[Event]int
	active int
}

func (o *countingObserver) SessionEvent(ev Event, n int, active int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.events == nil {
		o.events = make(map[Event]int)
	}
	o.events[ev] += n
	o.active = active
}

func newTestCoordinator(t *testing.T, clk *fakeClock, opts ...Option) *Coordinator {
	t.Helper()
	base := []Option{
		WithClock(clk.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewCoordinator(DefaultConfig(), append(base, opts...)...)
}

// assertInvariants checks one Session per account and the two-way channel link.
func assertInvariants(t *testing.T, c *Coordinator) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	for accountID, s := range c.st.sessions {
		if s.AccountID != accountID {
			t.Fatalf("session keyed %q carries account %q", accountID, s.AccountID)
		}
		if s.ChannelID == "" {
			continue
		}
		if owner, ok := c.st.channels[s.ChannelID]; !ok || owner != accountID {
			t.Fatalf("session %q channel %q missing reverse entry (owner=%q ok=%v)", accountID, s.ChannelID, owner, ok)
		}
	}
	for channelID, accountID := range c.st.channels {
		s, ok := c.st.sessions[accountID]
		if !ok || s.ChannelID != channelID {
			t.Fatalf("orphaned channel index entry %q -> %q", channelID, accountID)
		}
	}
}

func mustCreate(t *testing.T, c *Coordinator, req NewSession) Outcome {
	t.Helper()
	out, err := c.CreateSession(req)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return out
}

func TestCreateAndValidate_RoundTrip(t *testing.T) {
	clk := newFakeClock()
	c := newTestCoordinator(t, clk)

	out := mustCreate(t, c, NewSession{AccountID: "A", Token: "T1", UserAgent: "ua", OriginAddress: "10.0.0.1"})
	if out.Status != StatusCreated {
		t.Fatalf("expected created, got %v", out.Status)
	}
	if !c.ValidateSession("A", "T1") {
		t.Fatalf("expected T1 to validate")
	}
	if c.ValidateSession("A", "wrong") {
		t.Fatalf("expected wrong token to be rejected")
	}
	if c.ValidateSession("B", "T1") {
		t.Fatalf("expected unknown account to be rejected")
	}
	assertInvariants(t, c)
}

func TestCreateSession_RejectsBlankInput(t *testing.T) {
	c := newTestCoordinator(t, newFakeClock())
	cases := []NewSession{
		{AccountID: "", Token: "T"},
		{AccountID: "  ", Token: "T"},
		{AccountID: "A", Token: ""},
	}
	for _, req := range cases {
		if _, err := c.CreateSession(req); err != ErrInvalidInput {
			t.Fatalf("CreateSession(%+v): expected ErrInvalidInput, got %v", req, err)
		}
		if _, err := c.ForceCreateSession(req, nil); err != ErrInvalidInput {
			t.Fatalf("ForceCreateSession(%+v): expected ErrInvalidInput, got %v", req, err)
		}
	}
	if c.Count() != 0 {
		t.Fatalf("expected empty table, got %d", c.Count())
	}
}

func TestConflictThenForce(t *testing.T) {
	clk := newFakeClock()
	c := newTestCoordinator(t, clk)
	n := &recordingNotifier{}

	mustCreate(t, c, NewSession{AccountID: "A", Token: "T1", ChannelID: "C1", UserAgent: "old-ua", OriginAddress: "1.1.1.1"})
	loginTime := clk.Now()
	clk.Advance(time.Minute)

	out := mustCreate(t, c, NewSession{AccountID: "A", Token: "T2", UserAgent: "new-ua", OriginAddress: "2.2.2.2"})
	if out.Status != StatusConflict {
		t.Fatalf("expected conflict, got %v", out.Status)
	}
	if !out.Existing.Time.Equal(loginTime) || out.Existing.UserAgent != "old-ua" || out.Existing.OriginAddress != "1.1.1.1" {
		t.Fatalf("conflict info mismatch: %+v", out.Existing)
	}
	if !c.ValidateSession("A", "T1") {
		t.Fatalf("conflict must leave T1 live")
	}
	if c.ValidateSession("A", "T2") {
		t.Fatalf("conflict must not store T2")
	}

	forced, err := c.ForceCreateSession(NewSession{AccountID: "A", Token: "T2", UserAgent: "new-ua", OriginAddress: "2.2.2.2"}, n)
	if err != nil {
		t.Fatalf("ForceCreateSession: %v", err)
	}
	if forced.Status != StatusCreated || !forced.OldSessionTerminated {
		t.Fatalf("unexpected forced outcome: %+v", forced)
	}
	if c.ValidateSession("A", "T1") {
		t.Fatalf("T1 must be revoked after force")
	}
	if !c.ValidateSession("A", "T2") {
		t.Fatalf("T2 must be live after force")
	}

	evs := n.calls["C1"]
	if len(evs) != 1 {
		t.Fatalf("expected one eviction on C1, got %d", len(evs))
	}
	if evs[0].Reason != ReasonReplaced || evs[0].NewLogin == nil {
		t.Fatalf("unexpected eviction: %+v", evs[0])
	}
	if evs[0].NewLogin.UserAgent != "new-ua" || evs[0].NewLogin.OriginAddress != "2.2.2.2" {
		t.Fatalf("eviction carries wrong login info: %+v", evs[0].NewLogin)
	}
	if _, ok := c.st.channelOwner("C1"); ok {
		t.Fatalf("C1 index entry should be gone")
	}
	if c.Count() != 1 {
		t.Fatalf("expected one session, got %d", c.Count())
	}
	assertInvariants(t, c)
}

func TestForceCreate_NoPriorSession(t *testing.T) {
	c := newTestCoordinator(t, newFakeClock())
	n := &recordingNotifier{}

	out, err := c.ForceCreateSession(NewSession{AccountID: "A", Token: "T1"}, n)
	if err != nil {
		t.Fatalf("ForceCreateSession: %v", err)
	}
	if out.OldSessionTerminated {
		t.Fatalf("nothing was terminated")
	}
	if n.count() != 0 {
		t.Fatalf("expected no notifications, got %d", n.count())
	}
}

func TestForceCreate_PriorWithoutChannelIsNotNotified(t *testing.T) {
	c := newTestCoordinator(t, newFakeClock())
	n := &recordingNotifier{}

	mustCreate(t, c, NewSession{AccountID: "A", Token: "T1"})
	out, err := c.ForceCreateSession(NewSession{AccountID: "A", Token: "T2"}, n)
	if err != nil {
		t.Fatalf("ForceCreateSession: %v", err)
	}
	if !out.OldSessionTerminated {
		t.Fatalf("expected old session terminated")
	}
	if n.count() != 0 {
		t.Fatalf("expected no notifications, got %d", n.count())
	}
}

func TestForceCreate_NotifierRunsAfterRemoval(t *testing.T) {
	c := newTestCoordinator(t, newFakeClock())
	mustCreate(t, c, NewSession{AccountID: "A", Token: "T1", ChannelID: "C1"})

	var sawT1Live bool
	n := NotifierFunc(func(channelID string, ev Eviction) {
		// Runs outside the lock, so calling back into the coordinator is safe.
		sawT1Live = c.ValidateSession("A", "T1")
	})
	if _, err := c.ForceCreateSession(NewSession{AccountID: "A", Token: "T2"}, n); err != nil {
		t.Fatalf("ForceCreateSession: %v", err)
	}
	if sawT1Live {
		t.Fatalf("old session still live while notifier ran")
	}
}

func TestSoftDisconnect_SessionSurvives(t *testing.T) {
	clk := newFakeClock()
	c := newTestCoordinator(t, clk)

	mustCreate(t, c, NewSession{AccountID: "A", Token: "T1", ChannelID: "C1"})
	if !c.RemoveByChannel("C1") {
		t.Fatalf("expected C1 to be unlinked")
	}
	if !c.ValidateSession("A", "T1") {
		t.Fatalf("session must survive a channel disconnect")
	}
	sum, ok := c.Lookup("A")
	if !ok || sum.ChannelAttached {
		t.Fatalf("expected detached session, got %+v ok=%v", sum, ok)
	}
	if _, ok := c.st.channelOwner("C1"); ok {
		t.Fatalf("C1 index entry should be gone")
	}

	if !c.AttachChannel("A", "C2") {
		t.Fatalf("expected reattach to succeed")
	}
	if owner, ok := c.st.channelOwner("C2"); !ok || owner != "A" {
		t.Fatalf("C2 should map to A, got %q ok=%v", owner, ok)
	}
	assertInvariants(t, c)
}

func TestRemoveByChannel_StaleDisconnectIgnored(t *testing.T) {
	c := newTestCoordinator(t, newFakeClock())

	mustCreate(t, c, NewSession{AccountID: "A", Token: "T1", ChannelID: "C1"})
	if !c.AttachChannel("A", "C2") {
		t.Fatalf("attach C2")
	}
	if c.RemoveByChannel("C1") {
		t.Fatalf("stale disconnect for C1 must be ignored")
	}
	sum, _ := c.Lookup("A")
	if !sum.ChannelAttached {
		t.Fatalf("C2 link must survive a stale C1 disconnect")
	}
	if c.RemoveByChannel("unknown") {
		t.Fatalf("unknown channel must be a no-op")
	}
	assertInvariants(t, c)
}

func TestAttachChannel(t *testing.T) {
	clk := newFakeClock()
	c := newTestCoordinator(t, clk)

	if c.AttachChannel("ghost", "C9") {
		t.Fatalf("attach without a session must be a no-op")
	}
	if _, ok := c.st.channelOwner("C9"); ok {
		t.Fatalf("no-op attach must not touch the index")
	}

	mustCreate(t, c, NewSession{AccountID: "A", Token: "T1", ChannelID: "C1"})
	mustCreate(t, c, NewSession{AccountID: "B", Token: "T2"})
	clk.Advance(10 * time.Minute)

	if !c.AttachChannel("A", "C1") {
		t.Fatalf("re-attaching the same channel is idempotent")
	}
	sum, _ := c.Lookup("A")
	if !sum.LastActivity.Equal(clk.Now()) {
		t.Fatalf("attach must bump lastActivity")
	}

	// A channel id can only belong to one account.
	if !c.AttachChannel("B", "C1") {
		t.Fatalf("attach C1 to B")
	}
	if owner, _ := c.st.channelOwner("C1"); owner != "B" {
		t.Fatalf("C1 should now belong to B, got %q", owner)
	}
	a, _ := c.Lookup("A")
	if a.ChannelAttached {
		t.Fatalf("A must lose C1 once B claims it")
	}
	assertInvariants(t, c)
}

func TestAttachChannelFor_RequiresLiveToken(t *testing.T) {
	clk := newFakeClock()
	c := newTestCoordinator(t, clk)

	mustCreate(t, c, NewSession{AccountID: "A", Token: "T1"})
	if _, err := c.ForceCreateSession(NewSession{AccountID: "A", Token: "T2"}, nil); err != nil {
		t.Fatalf("ForceCreateSession: %v", err)
	}

	if err := c.AttachChannelFor("A", "T1", "C-old"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("replaced token must not attach, got %v", err)
	}
	if _, ok := c.st.channelOwner("C-old"); ok {
		t.Fatalf("rejected attach must not touch the index")
	}
	if err := c.AttachChannelFor("A", "T2", "C-new"); err != nil {
		t.Fatalf("AttachChannelFor: %v", err)
	}
	if sum, _ := c.Lookup("A"); !sum.ChannelAttached {
		t.Fatalf("expected channel attached")
	}

	clk.Advance(31 * time.Minute)
	if err := c.AttachChannelFor("A", "T2", "C-later"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if c.Count() != 0 {
		t.Fatalf("expired session must be removed")
	}
	assertInvariants(t, c)
}

func TestIdleExpiry_LazyOnValidate(t *testing.T) {
	clk := newFakeClock()
	obs := &countingObserver{}
	c := newTestCoordinator(t, clk, WithObserver(obs))

	mustCreate(t, c, NewSession{AccountID: "A", Token: "T1", ChannelID: "C1"})
	clk.Advance(c.Config().IdleTimeout + time.Millisecond)

	if err := c.Validate("A", "T1"); err != ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, ok := c.Lookup("A"); ok {
		t.Fatalf("expired session must be removed")
	}
	if _, ok := c.st.channelOwner("C1"); ok {
		t.Fatalf("expired session's channel entry must be removed")
	}
	if err := c.Validate("A", "T1"); err != ErrSessionInvalid {
		t.Fatalf("expected ErrSessionInvalid after removal, got %v", err)
	}
	if obs.events[EventExpired] != 1 {
		t.Fatalf("expected one expired event, got %d", obs.events[EventExpired])
	}
}

func TestIdleExpiry_BoundaryIsInclusive(t *testing.T) {
	clk := newFakeClock()
	c := newTestCoordinator(t, clk)

	mustCreate(t, c, NewSession{AccountID: "A", Token: "T1"})
	clk.Advance(c.Config().IdleTimeout)
	if !c.ValidateSession("A", "T1") {
		t.Fatalf("exactly idleTimeout of inactivity is still live")
	}
}

func TestValidate_BumpsActivityMonotonically(t *testing.T) {
	clk := newFakeClock()
	c := newTestCoordinator(t, clk)

	mustCreate(t, c, NewSession{AccountID: "A", Token: "T1"})
	for i := 0; i < 5; i++ {
		clk.Advance(20 * time.Minute)
		if !c.ValidateSession("A", "T1") {
			t.Fatalf("round %d: activity should keep the session alive", i)
		}
	}

	before, _ := c.Lookup("A")
	clk.Advance(-time.Minute)
	if !c.ValidateSession("A", "T1") {
		t.Fatalf("validate with a lagging clock")
	}
	after, _ := c.Lookup("A")
	if after.LastActivity.Before(before.LastActivity) {
		t.Fatalf("lastActivity went backwards: %v -> %v", before.LastActivity, after.LastActivity)
	}
}

func TestSweep(t *testing.T) {
	clk := newFakeClock()
	c := newTestCoordinator(t, clk)

	mustCreate(t, c, NewSession{AccountID: "idle", Token: "T1", ChannelID: "C1"})
	clk.Advance(20 * time.Minute)
	mustCreate(t, c, NewSession{AccountID: "fresh", Token: "T2"})
	clk.Advance(11 * time.Minute)

	if n := c.Sweep(clk.Now()); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	if _, ok := c.Lookup("idle"); ok {
		t.Fatalf("idle session should be swept")
	}
	if _, ok := c.Lookup("fresh"); !ok {
		t.Fatalf("fresh session should survive")
	}
	if n := c.Sweep(clk.Now()); n != 0 {
		t.Fatalf("second sweep should be a no-op, got %d", n)
	}
	assertInvariants(t, c)
}

func TestRemoveSession(t *testing.T) {
	c := newTestCoordinator(t, newFakeClock())

	mustCreate(t, c, NewSession{AccountID: "A", Token: "T1", ChannelID: "C1"})
	if !c.RemoveSession("A") {
		t.Fatalf("expected removal")
	}
	if c.RemoveSession("A") {
		t.Fatalf("second removal should report false")
	}
	if c.ValidateSession("A", "T1") {
		t.Fatalf("removed session must not validate")
	}
	out := mustCreate(t, c, NewSession{AccountID: "A", Token: "T3"})
	if out.Status != StatusCreated {
		t.Fatalf("login after logout must not conflict")
	}
	assertInvariants(t, c)
}

func TestEvictAll(t *testing.T) {
	c := newTestCoordinator(t, newFakeClock())
	n := &recordingNotifier{}

	mustCreate(t, c, NewSession{AccountID: "A", Token: "TA", ChannelID: "CA"})
	mustCreate(t, c, NewSession{AccountID: "B", Token: "TB", ChannelID: "CB"})
	mustCreate(t, c, NewSession{AccountID: "C", Token: "TC", ChannelID: "CC"})

	if got := c.EvictAll(n); got != 3 {
		t.Fatalf("expected 3 evicted, got %d", got)
	}
	for _, ch := range []string{"CA", "CB", "CC"} {
		evs := n.calls[ch]
		if len(evs) != 1 {
			t.Fatalf("channel %s: expected 1 notification, got %d", ch, len(evs))
		}
		if evs[0].Reason != ReasonAdminLogoutAll {
			t.Fatalf("channel %s: unexpected reason %q", ch, evs[0].Reason)
		}
	}
	if c.Count() != 0 || len(c.ListActive()) != 0 {
		t.Fatalf("table must be empty after evict-all")
	}
	if len(c.st.channels) != 0 {
		t.Fatalf("channel index must be empty after evict-all")
	}
	if c.ValidateSession("A", "TA") {
		t.Fatalf("evicted token must not validate")
	}
}

func TestEvictAll_CountsDetachedSessions(t *testing.T) {
	c := newTestCoordinator(t, newFakeClock())
	n := &recordingNotifier{}

	mustCreate(t, c, NewSession{AccountID: "A", Token: "TA", ChannelID: "CA"})
	mustCreate(t, c, NewSession{AccountID: "B", Token: "TB"})

	if got := c.EvictAll(n); got != 2 {
		t.Fatalf("expected 2 evicted, got %d", got)
	}
	if n.count() != 1 {
		t.Fatalf("only attached channels are notified, got %d", n.count())
	}
}

func TestListActive_OrderedByLoginTime(t *testing.T) {
	clk := newFakeClock()
	c := newTestCoordinator(t, clk)

	for _, id := range []string{"c", "a", "b"} {
		mustCreate(t, c, NewSession{AccountID: id, Token: "T-" + id, UserAgent: "ua-" + id})
		clk.Advance(time.Second)
	}
	list := c.ListActive()
	if len(list) != 3 || c.Count() != 3 {
		t.Fatalf("expected 3 sessions, got %d / %d", len(list), c.Count())
	}
	want := []string{"c", "a", "b"}
	for i, s := range list {
		if s.AccountID != want[i] {
			t.Fatalf("position %d: got %q want %q", i, s.AccountID, want[i])
		}
		if s.UserAgent != "ua-"+want[i] {
			t.Fatalf("position %d: user agent %q", i, s.UserAgent)
		}
	}
}

func TestStoresOnlyTokenDigest(t *testing.T) {
	c := newTestCoordinator(t, newFakeClock(), WithTokenHasher(func(s string) string { return "h:" + s }))

	mustCreate(t, c, NewSession{AccountID: "A", Token: "secret"})
	c.mu.Lock()
	stored := c.st.sessions["A"].TokenHash
	c.mu.Unlock()
	if stored != "h:secret" {
		t.Fatalf("expected hashed token, got %q", stored)
	}
	if !c.ValidateSession("A", "secret") {
		t.Fatalf("validation must hash the presented token")
	}
}

func TestConcurrentCreate_SingleSessionPerAccount(t *testing.T) {
	c := newTestCoordinator(t, newFakeClock())

	const workers = 64
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		winner  string
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tok := fmt.Sprintf("T%d", i)
			out, err := c.CreateSession(NewSession{AccountID: "u1", Token: tok})
			if err != nil {
				t.Errorf("CreateSession: %v", err)
				return
			}
			if out.Status == StatusCreated {
				mu.Lock()
				created++
				winner = tok
				mu.Unlock()
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one created outcome, got %d", created)
	}
	if c.Count() != 1 {
		t.Fatalf("expected one session, got %d", c.Count())
	}
	if !c.ValidateSession("u1", winner) {
		t.Fatalf("winner token %q must validate", winner)
	}
}

func TestConcurrentMixedOperations_KeepInvariants(t *testing.T) {
	clk := newFakeClock()
	c := newTestCoordinator(t, clk)
	n := NotifierFunc(func(string, Eviction) {})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				acct := fmt.Sprintf("acct-%d", i%5)
				ch := fmt.Sprintf("ch-%d-%d", w, i)
				switch i % 6 {
				case 0:
					_, _ = c.CreateSession(NewSession{AccountID: acct, Token: ch, ChannelID: ch})
				case 1:
					_, _ = c.ForceCreateSession(NewSession{AccountID: acct, Token: ch, ChannelID: ch}, n)
				case 2:
					c.AttachChannel(acct, ch)
				case 3:
					c.RemoveByChannel(fmt.Sprintf("ch-%d-%d", w, i-1))
				case 4:
					c.ValidateSession(acct, ch)
				case 5:
					if i%30 == 5 {
						c.RemoveSession(acct)
					} else {
						c.Sweep(clk.Now())
					}
				}
			}
		}(w)
	}
	wg.Wait()

	if c.Count() > 5 {
		t.Fatalf("more sessions than accounts: %d", c.Count())
	}
	assertInvariants(t, c)
}

func TestScenario_ForceLoginRevokesEarlierToken(t *testing.T) {
	clk := newFakeClock()
	c := newTestCoordinator(t, clk)
	n := &recordingNotifier{}

	mustCreate(t, c, NewSession{AccountID: "u1", Token: "T1", UserAgent: "Firefox", OriginAddress: "10.0.0.5"})
	firstLogin := clk.Now()
	if c.Count() != 1 {
		t.Fatalf("expected one session")
	}

	clk.Advance(5 * time.Minute)
	conflict := mustCreate(t, c, NewSession{AccountID: "u1", Token: "T2", UserAgent: "Chrome", OriginAddress: "10.0.0.9"})
	if conflict.Status != StatusConflict {
		t.Fatalf("expected conflict")
	}
	if !conflict.Existing.Time.Equal(firstLogin) || conflict.Existing.UserAgent != "Firefox" {
		t.Fatalf("conflict must echo the original login: %+v", conflict.Existing)
	}
	if c.Count() != 1 || !c.ValidateSession("u1", "T1") {
		t.Fatalf("conflict must leave the store unchanged")
	}

	forced, err := c.ForceCreateSession(NewSession{AccountID: "u1", Token: "T2", UserAgent: "Chrome", OriginAddress: "10.0.0.9"}, n)
	if err != nil || !forced.OldSessionTerminated {
		t.Fatalf("expected forced login to terminate the old session: %+v err=%v", forced, err)
	}
	if err := c.Validate("u1", "T1"); err != ErrSessionInvalid {
		t.Fatalf("T1 must be rejected with ErrSessionInvalid, got %v", err)
	}
}

func TestEndNotifier_SessionEnds(t *testing.T) {
	cases := []struct {
		name   string
		end    func(c *Coordinator, clk *fakeClock)
		reason string
	}{
		{"logout", func(c *Coordinator, _ *fakeClock) { c.RemoveSession("A") }, ReasonLoggedOut},
		{"sweep", func(c *Coordinator, clk *fakeClock) {
			clk.Advance(31 * time.Minute)
			c.Sweep(clk.Now())
		}, ReasonExpired},
		{"lazy expiry", func(c *Coordinator, clk *fakeClock) {
			clk.Advance(31 * time.Minute)
			_ = c.Validate("A", "T1")
		}, ReasonExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clk := newFakeClock()
			n := &recordingNotifier{}
			c := newTestCoordinator(t, clk, WithEndNotifier(n))

			mustCreate(t, c, NewSession{AccountID: "A", Token: "T1", ChannelID: "C1"})
			mustCreate(t, c, NewSession{AccountID: "B", Token: "T2"})
			tc.end(c, clk)

			n.mu.Lock()
			evs := n.calls["C1"]
			n.mu.Unlock()
			if len(evs) != 1 || evs[0].Reason != tc.reason || evs[0].NewLogin != nil {
				t.Fatalf("expected one %s eviction for C1, got %+v", tc.reason, evs)
			}
			if _, ok := c.st.channelOwner("C1"); ok {
				t.Fatalf("channel index still owns C1")
			}
			assertInvariants(t, c)
		})
	}
}

func TestEndNotifier_NoChannelNoEvent(t *testing.T) {
	n := &recordingNotifier{}
	c := newTestCoordinator(t, newFakeClock(), WithEndNotifier(n))

	mustCreate(t, c, NewSession{AccountID: "A", Token: "T1"})
	c.RemoveSession("A")
	c.RemoveSession("A")

	if got := n.count(); got != 0 {
		t.Fatalf("sessions without a channel must not notify, got %d", got)
	}
}
