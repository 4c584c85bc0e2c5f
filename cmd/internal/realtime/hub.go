package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/session"
	v1 "github.com/2impaoo-it/feedback-system/shared/contracts/realtime/v1"
)

// Hub tracks authenticated channels and their rooms.
// It implements session.Notifier.
type Hub struct {
	log *slog.Logger

	mu       sync.RWMutex
	channels map[string]*Client
	rooms    map[string]*Room
	// accounts counts live channels per account for connection stats.
	accounts map[string]int
}

// NewHub constructs an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:      log,
		channels: make(map[string]*Client),
		rooms:    make(map[string]*Room),
		accounts: make(map[string]int),
	}
}

// Register adds an authenticated client and joins it to its role and user rooms.
func (h *Hub) Register(c *Client) {
	accountID, role := c.AccountID(), c.Role()

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.channels[c.ChannelID]; ok {
		return
	}
	h.channels[c.ChannelID] = c
	h.accounts[accountID]++
	for _, name := range []string{RoleRoom(role), UserRoom(accountID)} {
		r, ok := h.rooms[name]
		if !ok {
			r = newRoom(name)
			h.rooms[name] = r
		}
		r.join(c)
	}
}

// Unregister removes the channel from the hub and all rooms.
func (h *Hub) Unregister(channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.channels[channelID]
	if !ok {
		return
	}
	delete(h.channels, channelID)

	accountID := c.AccountID()
	if h.accounts[accountID]--; h.accounts[accountID] <= 0 {
		delete(h.accounts, accountID)
	}
	for _, name := range []string{RoleRoom(c.Role()), UserRoom(accountID)} {
		if r, ok := h.rooms[name]; ok && r.leave(channelID) {
			delete(h.rooms, name)
		}
	}
}

// Client returns the live client for channelID.
func (h *Hub) Client(channelID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.channels[channelID]
	return c, ok
}

// Broadcast sends env to every member of room. Unknown rooms are a no-op.
func (h *Hub) Broadcast(room string, env v1.Envelope) int {
	h.mu.RLock()
	r, ok := h.rooms[room]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	return r.Broadcast(env)
}

// ConnectedUsers is the number of distinct accounts with a live channel.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.accounts)
}

// Channels is the number of live authenticated channels.
func (h *Hub) Channels() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// NotifyEviction implements session.Notifier. The channel leaves the hub and
// its rooms at once, so no later broadcast reaches it. The force_logout frame
// is its last; the connection closes once it is written. Unknown channels are
// ignored.
func (h *Hub) NotifyEviction(channelID string, ev session.Eviction) {
	c, ok := h.Client(channelID)
	if !ok {
		return
	}
	h.Unregister(channelID)

	p := v1.ForceLogoutPayload{Reason: ev.Reason, Message: ev.Message}
	if ev.NewLogin != nil {
		p.NewLoginInfo = &v1.LoginInfo{
			Time:          ev.NewLogin.Time,
			UserAgent:     ev.NewLogin.UserAgent,
			OriginAddress: ev.NewLogin.OriginAddress,
		}
	}
	env, err := newEnvelope(v1.TypeForceLogout, p)
	if err != nil {
		h.log.Error("ws.force_logout.encode.fail", "err", err)
		c.Close()
		return
	}
	c.Evict(env)
	h.log.Info("ws.force_logout", "channel_id", channelID, "account_id", c.AccountID(), "reason", ev.Reason)
}

func newEnvelope(typ string, payload any) (v1.Envelope, error) {
	now := time.Now().UTC()
	return v1.NewEnvelope(typ, NewEnvelopeID(now), now, payload)
}
