package realtime

import (
	"sync"

	v1 "github.com/2impaoo-it/feedback-system/shared/contracts/realtime/v1"
)

// Room names.
func RoleRoom(role string) string      { return "role:" + role }
func UserRoom(accountID string) string { return "user:" + accountID }

// Room is an in-memory membership and broadcast fanout.
//
// Join and Leave are safe under concurrent Broadcast. Broadcast never blocks
// and drops frames for members whose queue is full.
type Room struct {
	Name string

	mu      sync.RWMutex
	members map[string]*Client
}

func newRoom(name string) *Room {
	return &Room{Name: name, members: make(map[string]*Client)}
}

func (r *Room) join(c *Client) {
	r.mu.Lock()
	r.members[c.ChannelID] = c
	r.mu.Unlock()
}

// leave reports whether the room is now empty.
func (r *Room) leave(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, channelID)
	return len(r.members) == 0
}

// Size returns the member count.
func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast fans env out to all members and returns how many accepted it.
func (r *Room) Broadcast(env v1.Envelope) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, m := range r.members {
		if m.Enqueue(env) {
			n++
		}
	}
	return n
}
