package v1

import "time"

// AuthenticatePayload carries the credential token and the account it claims.
type AuthenticatePayload struct {
	Token     string `json:"token"`
	AccountID string `json:"accountId"`
}

// AuthenticatedPayload confirms the connection is bound to the account's session.
type AuthenticatedPayload struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role"`
	ChannelID string `json:"channelId"`
}

// AuthErrorPayload rejects an authenticate attempt. AttemptsLeft reaches 0
// right before the server closes the connection.
type AuthErrorPayload struct {
	Message      string `json:"message"`
	AttemptsLeft int    `json:"attemptsLeft"`
}

// LoginInfo describes the login that replaced the session.
type LoginInfo struct {
	Time          time.Time `json:"time"`
	UserAgent     string    `json:"userAgent"`
	OriginAddress string    `json:"originAddress"`
}

// ForceLogoutPayload tells the client to discard its token.
type ForceLogoutPayload struct {
	Reason       string     `json:"reason"`
	Message      string     `json:"message"`
	NewLoginInfo *LoginInfo `json:"newLoginInfo,omitempty"`
}

// ConnectionStatsPayload is the periodic admin snapshot.
type ConnectionStatsPayload struct {
	ConnectedUsers int       `json:"connectedUsers"`
	ActiveSessions int       `json:"activeSessions"`
	Timestamp      time.Time `json:"timestamp"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
