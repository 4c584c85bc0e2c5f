package realtime

import "time"

const (
	// Max bytes per websocket frame read.
	maxFrameBytes = 16 << 10

	// Authentication attempts allowed per connection before it is closed.
	maxAuthAttempts = 3
)

const (
	defaultAuthTimeout   = 10 * time.Second
	defaultStatsInterval = 30 * time.Second

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 30
	rateLimitWindow = 10 * time.Second
)
