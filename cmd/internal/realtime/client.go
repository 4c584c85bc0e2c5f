package realtime

import (
	"sync"
	"sync/atomic"

	v1 "github.com/2impaoo-it/feedback-system/shared/contracts/realtime/v1"
)

// outbound is one queued frame. closeAfter ends the connection once the frame is written.
type outbound struct {
	env        v1.Envelope
	closeAfter bool
}

// Client is one websocket connection (a realtime channel).
//
// Send is never closed by the server, so concurrent broadcasters cannot panic.
// done signals the connection goroutines to stop. Close is idempotent.
type Client struct {
	ChannelID string

	mu        sync.RWMutex
	accountID string
	role      string

	send chan outbound

	evicted   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(channelID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		ChannelID: channelID,
		send:      make(chan outbound, sendQueueSize),
		done:      make(chan struct{}),
	}
}

func (c *Client) bind(accountID, role string) {
	c.mu.Lock()
	c.accountID, c.role = accountID, role
	c.mu.Unlock()
}

// AccountID is empty until the channel authenticated.
func (c *Client) AccountID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountID
}

func (c *Client) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// Enqueue queues env without blocking. It reports false when the queue is
// full or the client is shutting down.
func (c *Client) Enqueue(env v1.Envelope) bool {
	return c.enqueue(outbound{env: env})
}

// Evict queues env as the final frame. If it cannot be queued the client is
// closed right away.
func (c *Client) Evict(env v1.Envelope) {
	c.evicted.Store(true)
	if !c.enqueue(outbound{env: env, closeAfter: true}) {
		c.Close()
	}
}

// Evicted reports whether the session behind this channel was ended by the server.
func (c *Client) Evicted() bool { return c.evicted.Load() }

func (c *Client) enqueue(o outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- o:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
