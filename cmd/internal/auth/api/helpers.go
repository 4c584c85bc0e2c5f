package authapi

import (
	"strings"

	"github.com/2impaoo-it/feedback-system/cmd/identity"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/accesstoken"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/session"

	ua "github.com/mileusna/useragent"
)

func toUserResponse(p identity.Principal) userResponse {
	return userResponse{AccountID: p.AccountID, Email: p.Email, Role: string(p.Role)}
}

func claimsUserResponse(c accesstoken.Claims) userResponse {
	return userResponse{AccountID: c.AccountID, Email: c.Email, Role: c.Role}
}

func toSessionInfo(s session.Summary) sessionInfoResponse {
	return sessionInfoResponse{LoginTime: s.LoginTime, UserAgent: s.UserAgent, OriginAddress: s.OriginAddress}
}

func toSessionResponse(s session.Summary) sessionResponse {
	return sessionResponse{
		LoginTime:         s.LoginTime,
		LastActivity:      s.LastActivity,
		UserAgent:         s.UserAgent,
		OriginAddress:     s.OriginAddress,
		IsChannelAttached: s.ChannelAttached,
		Device:            describeDevice(s.UserAgent),
	}
}

// describeDevice turns a User-Agent header into a short browser/OS/device summary.
func describeDevice(userAgent string) deviceResponse {
	if strings.TrimSpace(userAgent) == "" {
		return deviceResponse{Browser: "Unknown Browser", OS: "Unknown OS", Device: "Desktop"}
	}

	parsed := ua.Parse(userAgent)
	d := deviceResponse{Browser: parsed.Name, OS: parsed.OS, Device: "Desktop"}
	if d.Browser == "" {
		d.Browser = "Unknown Browser"
	}
	if d.OS == "" {
		d.OS = "Unknown OS"
	}
	switch {
	case parsed.Tablet:
		d.Device = "Tablet"
	case parsed.Mobile && parsed.Device != "":
		d.Device = parsed.Device
	case parsed.Mobile:
		d.Device = "Mobile"
	case parsed.Bot:
		d.Device = "Bot"
	}
	return d
}
