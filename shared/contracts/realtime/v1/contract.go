// Package v1 defines the feedback realtime protocol v1 wire contract.
//
// It is shared between the server and smoke clients and has no dependencies
// outside the standard library.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is embedded into every envelope.
const Version = "v1"

// Subprotocol is negotiated during the websocket upgrade.
const Subprotocol = "feedback.v1"

// Type constants (wire-stable).
const (
	// TypeAuthenticate binds the connection to a session (client -> server).
	TypeAuthenticate = "authenticate"
	// TypeAuthenticated confirms the binding (server -> client).
	TypeAuthenticated = "authenticated"
	// TypeAuthError rejects an authenticate attempt (server -> client).
	TypeAuthError = "auth_error"

	// TypeForceLogout tells the client its session was ended elsewhere (server -> client).
	TypeForceLogout = "force_logout"

	// TypeConnectionStats is pushed periodically to admin rooms (server -> client).
	TypeConnectionStats = "connection_stats"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// CloseSessionEnded is the websocket close code sent after force_logout.
const CloseSessionEnded = 4001

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation of a client envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeAuthenticate,
		TypeAuthenticated,
		TypeAuthError,
		TypeForceLogout,
		TypeConnectionStats,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// NewEnvelope marshals payload into an envelope of type typ.
func NewEnvelope(typ, id string, ts time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{V: Version, Type: typ, ID: id, TS: ts, Payload: raw}, nil
}
