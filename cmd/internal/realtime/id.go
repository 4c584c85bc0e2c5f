package realtime

import (
	"time"

	"github.com/2impaoo-it/feedback-system/cmd/identity/ids"
)

// NewChannelID returns a ULID identifying one websocket connection.
func NewChannelID(now time.Time) string {
	return ids.MustULID(now)
}

// NewEnvelopeID returns a ULID used as envelope id.
func NewEnvelopeID(now time.Time) string {
	return ids.MustULID(now)
}
