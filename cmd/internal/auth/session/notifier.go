package session

// Eviction reasons pushed to a channel whose Session was removed.
const (
	ReasonReplaced       = "session_replaced"
	ReasonAdminLogoutAll = "admin_logout_all"
	ReasonLoggedOut      = "logged_out"
	ReasonExpired        = "session_expired"
)

const (
	messageReplaced       = "Your account was logged in from another device"
	messageAdminLogoutAll = "System requires re-login"
	messageLoggedOut      = "You have been logged out"
	messageExpired        = "Session expired due to inactivity"
)

// Eviction is the event delivered to an evicted channel.
type Eviction struct {
	Reason  string
	Message string
	// NewLogin describes the login that replaced the Session. Nil for every other reason.
	NewLogin *LoginInfo
}

// Notifier pushes an eviction to a realtime channel.
//
// Delivery is at most once. Implementations must not block and must drop the
// event silently when the channel is gone. The Session has already been
// removed by the time NotifyEviction runs.
type Notifier interface {
	NotifyEviction(channelID string, ev Eviction)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(channelID string, ev Eviction)

func (f NotifierFunc) NotifyEviction(channelID string, ev Eviction) { f(channelID, ev) }

type delivery struct {
	channelID string
	ev        Eviction
}

// Event names a session lifecycle transition reported to an Observer.
type Event string

const (
	EventCreated  Event = "created"
	EventConflict Event = "conflict"
	EventReplaced Event = "replaced"
	EventLogout   Event = "logout"
	EventExpired  Event = "expired"
	EventSwept    Event = "swept"
	EventEvicted  Event = "evicted"
)

// Observer receives lifecycle events outside the coordinator lock.
// n is the number of sessions the event applied to; active is the table size afterwards.
type Observer interface {
	SessionEvent(ev Event, n int, active int)
}

type nopObserver struct{}

func (nopObserver) SessionEvent(Event, int, int) {}
