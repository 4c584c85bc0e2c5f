package authapi

import "time"

type loginRequest struct {
	Email      string `json:"email" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"required,max=1024"`
	ForceLogin bool   `json:"forceLogin"`
}

type forceLoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

type userResponse struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

type sessionInfoResponse struct {
	LoginTime     time.Time `json:"loginTime"`
	UserAgent     string    `json:"userAgent"`
	OriginAddress string    `json:"originAddress"`
}

type deviceResponse struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Device  string `json:"device"`
}

type loginResponse struct {
	Token       string              `json:"token"`
	ExpiresAt   time.Time           `json:"expiresAt"`
	User        userResponse        `json:"user"`
	SessionInfo sessionInfoResponse `json:"sessionInfo"`

	// Set on the forced path only.
	OldSessionTerminated *bool `json:"oldSessionTerminated,omitempty"`
}

type conflictResponse struct {
	Conflict        bool                `json:"conflict"`
	Message         string              `json:"message"`
	ExistingSession sessionInfoResponse `json:"existingSession"`
	Device          deviceResponse      `json:"device"`
}

type sessionResponse struct {
	LoginTime         time.Time      `json:"loginTime"`
	LastActivity      time.Time      `json:"lastActivity"`
	UserAgent         string         `json:"userAgent"`
	OriginAddress     string         `json:"originAddress"`
	IsChannelAttached bool           `json:"isChannelAttached"`
	Device            deviceResponse `json:"device"`
}

type adminSessionResponse struct {
	AccountID string `json:"accountId"`
	sessionResponse
}

type adminSessionsResponse struct {
	Sessions []adminSessionResponse `json:"sessions"`
	Count    int                    `json:"count"`
}

type logoutResponse struct {
	Success bool `json:"success"`
}

type logoutAllResponse struct {
	Evicted int `json:"evicted"`
}
