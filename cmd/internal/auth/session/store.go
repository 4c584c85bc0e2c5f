package session

import "time"

// Session is one account's live login.
type Session struct {
	AccountID string
	// TokenHash is the digest of the credential token that created the Session.
	TokenHash     string
	ChannelID     string
	LoginTime     time.Time
	LastActivity  time.Time
	UserAgent     string
	OriginAddress string
}

// LoginInfo is the non-sensitive part of a Session shown to other clients.
type LoginInfo struct {
	Time          time.Time `json:"time"`
	UserAgent     string    `json:"userAgent"`
	OriginAddress string    `json:"originAddress"`
}

// Summary is a read-only view of a Session for introspection and admin listing.
type Summary struct {
	AccountID       string
	LoginTime       time.Time
	LastActivity    time.Time
	UserAgent       string
	OriginAddress   string
	ChannelAttached bool
}

func (s *Session) summary() Summary {
	return Summary{
		AccountID:       s.AccountID,
		LoginTime:       s.LoginTime,
		LastActivity:    s.LastActivity,
		UserAgent:       s.UserAgent,
		OriginAddress:   s.OriginAddress,
		ChannelAttached: s.ChannelID != "",
	}
}

func (s *Session) loginInfo() LoginInfo {
	return LoginInfo{Time: s.LoginTime, UserAgent: s.UserAgent, OriginAddress: s.OriginAddress}
}

// table is the session store: sessions keyed by account id plus the reverse
// channel index. It is not safe for concurrent use; the Coordinator owns it.
//
// Every method that touches a channel id updates both maps.
type table struct {
	sessions map[string]*Session
	channels map[string]string
}

func newTable() *table {
	return &table{
		sessions: make(map[string]*Session),
		channels: make(map[string]string),
	}
}

func (t *table) get(accountID string) (*Session, bool) {
	s, ok := t.sessions[accountID]
	return s, ok
}

// put stores s, replacing any Session for the same account. The replaced
// Session's channel link is dropped.
func (t *table) put(s *Session) {
	if old, ok := t.sessions[s.AccountID]; ok {
		t.unlink(old)
	}
	channelID := s.ChannelID
	s.ChannelID = ""
	t.sessions[s.AccountID] = s
	if channelID != "" {
		t.link(s, channelID)
	}
}

func (t *table) delete(accountID string) (*Session, bool) {
	s, ok := t.sessions[accountID]
	if !ok {
		return nil, false
	}
	t.unlink(s)
	delete(t.sessions, accountID)
	return s, true
}

func (t *table) channelOwner(channelID string) (string, bool) {
	accountID, ok := t.channels[channelID]
	return accountID, ok
}

// link points s at channelID. A channel belongs to one account, so a
// previous owner of the same channel id loses it.
func (t *table) link(s *Session, channelID string) {
	if s.ChannelID == channelID {
		return
	}
	t.unlink(s)
	if owner, ok := t.channels[channelID]; ok {
		if prev, ok := t.sessions[owner]; ok {
			prev.ChannelID = ""
		}
	}
	s.ChannelID = channelID
	t.channels[channelID] = s.AccountID
}

func (t *table) unlink(s *Session) {
	if s.ChannelID == "" {
		return
	}
	if t.channels[s.ChannelID] == s.AccountID {
		delete(t.channels, s.ChannelID)
	}
	s.ChannelID = ""
}

func (t *table) each(fn func(*Session)) {
	for _, s := range t.sessions {
		fn(s)
	}
}

func (t *table) len() int { return len(t.sessions) }

func (t *table) reset() {
	t.sessions = make(map[string]*Session)
	t.channels = make(map[string]string)
}
