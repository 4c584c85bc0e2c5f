package realtime

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 8

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute

	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Config controls the websocket gateway.
type Config struct {
	// DevInsecure disables the websocket library's own origin check. Dev only.
	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	AuthTimeout     time.Duration
	SendQueueSize   int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration

	StatsInterval time.Duration
}

// DefaultConfig returns the secure defaults.
func DefaultConfig() Config {
	return Config{
		OriginRequired:   wsDefaultOriginRequired,
		AllowedOrigins:   splitCSV(wsDefaultAllowedOrigins),
		WriteTimeout:     wsDefaultWriteTimeout,
		ReadIdleTimeout:  wsDefaultReadIdle,
		AuthTimeout:      defaultAuthTimeout,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
		StatsInterval:    defaultStatsInterval,
	}
}

// LoadConfigFromEnv reads FEEDBACK_WS_* overrides. Invalid values keep the default.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		DevInsecure:      envBoolWS("FEEDBACK_WS_DEV_INSECURE", false),
		OriginRequired:   envBoolWS("FEEDBACK_WS_ORIGIN_REQUIRED", def.OriginRequired),
		AllowedOrigins:   splitCSV(envStringWS("FEEDBACK_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)),
		WriteTimeout:     envDurationWS("FEEDBACK_WS_WRITE_TIMEOUT", def.WriteTimeout),
		ReadIdleTimeout:  envDurationWS("FEEDBACK_WS_READ_IDLE_TIMEOUT", def.ReadIdleTimeout),
		AuthTimeout:      envDurationWS("FEEDBACK_WS_AUTH_TIMEOUT", def.AuthTimeout),
		SendQueueSize:    envIntWS("FEEDBACK_WS_SEND_QUEUE", def.SendQueueSize),
		HeartbeatEvery:   envDurationWS("FEEDBACK_WS_HEARTBEAT_INTERVAL", def.HeartbeatEvery),
		HeartbeatTimeout: envDurationWS("FEEDBACK_WS_HEARTBEAT_TIMEOUT", def.HeartbeatTimeout),
		RateEvents:       envIntWS("FEEDBACK_WS_RATE_EVENTS", def.RateEvents),
		RateWindow:       envDurationWS("FEEDBACK_WS_RATE_WINDOW", def.RateWindow),
		StatsInterval:    envDurationWS("FEEDBACK_WS_STATS_INTERVAL", def.StatsInterval),
	}
	return cfg.normalized()
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = wsMinSendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = def.ReadIdleTimeout
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = def.AuthTimeout
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = def.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = def.StatsInterval
	}
	return c
}

func envStringWS(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
