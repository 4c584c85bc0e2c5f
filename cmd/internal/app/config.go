package app

import "time"

// Identity backends.
const (
	IdentityMemory   = "memory"
	IdentityPostgres = "postgres"
	IdentityMongo    = "mongo"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string
	// LogFormat is "json" (default) or "pretty".
	LogFormat string

	// PublicBaseURL is logged at startup. When empty it is derived from HTTPAddr.
	PublicBaseURL string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	MongoURI string
	MongoDB  string

	RedisURL string

	IdentityBackend        string
	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	// If true, /readyz returns 503 unless Postgres is configured and reachable.
	ReadinessRequireDB bool

	// If true, FEEDBACK_TOKEN_HMAC_KEY must be set (>= 32 bytes).
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	cfg := Config{
		HTTPAddr:      EnvString("FEEDBACK_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:      EnvString("FEEDBACK_LOG_LEVEL", "info"),
		LogFormat:     EnvString("FEEDBACK_LOG_FORMAT", "json"),
		PublicBaseURL: EnvString("FEEDBACK_PUBLIC_BASE_URL", ""),

		ReadHeaderTimeout: EnvDuration("FEEDBACK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("FEEDBACK_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("FEEDBACK_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("FEEDBACK_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("FEEDBACK_HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("FEEDBACK_SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL: EnvString("FEEDBACK_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("FEEDBACK_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("FEEDBACK_DB_MIN_CONNS", 0),

		MongoURI: EnvString("FEEDBACK_MONGO_URI", ""),
		MongoDB:  EnvString("FEEDBACK_MONGO_DB", "feedback_system"),

		RedisURL: EnvString("FEEDBACK_REDIS_URL", ""),

		IdentityBackend:        EnvString("FEEDBACK_IDENTITY_BACKEND", ""),
		BootstrapAdminEmail:    EnvString("FEEDBACK_BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword: EnvString("FEEDBACK_BOOTSTRAP_ADMIN_PASSWORD", ""),

		ReadinessRequireDB: EnvBool("FEEDBACK_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   EnvBool("FEEDBACK_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvCSV("FEEDBACK_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("FEEDBACK_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("FEEDBACK_CORS_MAX_AGE_SECONDS", 600),
	}
	if cfg.IdentityBackend == "" {
		cfg.IdentityBackend = defaultIdentityBackend(cfg)
	}
	return cfg
}

// defaultIdentityBackend picks the first configured store: Postgres, then Mongo, then memory.
func defaultIdentityBackend(cfg Config) string {
	switch {
	case cfg.DatabaseURL != "":
		return IdentityPostgres
	case cfg.MongoURI != "":
		return IdentityMongo
	default:
		return IdentityMemory
	}
}
