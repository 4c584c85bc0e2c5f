// Package app wires the feedback-system server runtime: config, logging,
// storage, the session coordinator, HTTP routes and the realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	authapi "github.com/2impaoo-it/feedback-system/cmd/internal/auth/api"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/accesstoken"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/gate"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/login"
	"github.com/2impaoo-it/feedback-system/cmd/internal/auth/session"
	"github.com/2impaoo-it/feedback-system/cmd/internal/metrics"
	"github.com/2impaoo-it/feedback-system/cmd/internal/realtime"
	"github.com/2impaoo-it/feedback-system/cmd/identity"
	"github.com/2impaoo-it/feedback-system/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// App is the server runtime. It owns every backend connection it opened.
type App struct {
	cfg Config
	log Logger

	metrics  *metrics.Metrics
	sessions *session.Coordinator
	gateway  *realtime.WSGateway
	handler  http.Handler

	db    *pgxpool.Pool
	mongo *mongo.Client
	redis *redis.Client

	readiness []readinessCheck
	closeOnce sync.Once
}

// New constructs a fully wired App. Backends named in cfg are dialed here;
// on error everything opened so far is closed.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	a := &App{cfg: cfg, log: log, metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	hasher, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	hub := realtime.NewHub(log.With("component", "hub"))
	a.sessions = session.NewCoordinator(sessCfg,
		session.WithEndNotifier(hub),
		session.WithTokenHasher(hasher),
		session.WithLogger(log.With("component", "session")),
		session.WithObserver(a.metrics),
	)

	tokCfg, err := accesstoken.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("access tokens: %w", err)
	}
	tokens, err := accesstoken.New(tokCfg)
	if err != nil {
		return nil, fmt.Errorf("access tokens: %w", err)
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("password config: %w", err)
	}

	if err := a.openBackends(ctx); err != nil {
		return nil, err
	}
	store, err := a.identityStore(ctx)
	if err != nil {
		return nil, err
	}
	a.readiness = append(a.readiness, readinessCheck{name: "identity", ping: store.Ping})
	if err := a.bootstrapAdmin(ctx, store, pwCfg); err != nil {
		return nil, err
	}

	creds, err := identity.NewAuthenticator(store, pwCfg, identity.WithAuthLogger(log.With("component", "identity")))
	if err != nil {
		return nil, err
	}

	g := gate.New(tokens, a.sessions, gate.WithAccounts(store))

	a.gateway = realtime.NewWSGateway(log.With("component", "ws"), hub, g, a.sessions,
		realtime.LoadConfigFromEnv(), realtime.WithConnObserver(a.metrics))

	logins := login.New(creds, tokens, a.sessions,
		login.WithNotifier(hub),
		login.WithRecorder(a.metrics),
		login.WithLogger(log.With("component", "login")),
	)

	authCfg := authapi.LoadConfigFromEnv()
	auth := authapi.NewHandler(log.With("component", "auth_api"), authCfg, logins, g, a.sessions,
		authapi.WithNotifier(hub),
		authapi.WithLimiter(a.limiter(authCfg)),
		authapi.WithAuditor(a.auditor(ctx, authCfg)),
	)

	mux := http.NewServeMux()
	a.registerHealth(mux)
	mux.Handle("GET /metrics", a.metrics.Handler())
	auth.Register(mux)
	mux.Handle("/ws", a.gateway)

	var h http.Handler = mux
	h = WithCORS(h, cfg, log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, log, a.metrics)
	h = WithRequestID(h)
	a.handler = h

	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) openBackends(ctx context.Context) error {
	if a.cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, a.cfg)
		if err != nil {
			return err
		}
		a.db = pool
		a.readiness = append(a.readiness, readinessCheck{name: "postgres", ping: func(ctx context.Context) error {
			return PingDB(ctx, pool, readyPingTimeout)
		}})
		a.log.Info("backend.postgres.enabled")
	}
	if a.cfg.MongoURI != "" {
		client, err := NewMongoClient(ctx, a.cfg)
		if err != nil {
			return err
		}
		a.mongo = client
		a.readiness = append(a.readiness, readinessCheck{name: "mongo", ping: func(ctx context.Context) error {
			return PingMongo(ctx, client, readyPingTimeout)
		}})
		a.log.Info("backend.mongo.enabled", "db", a.cfg.MongoDB)
	}
	if a.cfg.RedisURL != "" {
		rdb, err := NewRedisClient(ctx, a.cfg)
		if err != nil {
			return err
		}
		a.redis = rdb
		a.readiness = append(a.readiness, readinessCheck{name: "redis", ping: func(ctx context.Context) error {
			return PingRedis(ctx, rdb, readyPingTimeout)
		}})
		a.log.Info("backend.redis.enabled")
	}
	return nil
}

func (a *App) identityStore(ctx context.Context) (identity.Store, error) {
	switch a.cfg.IdentityBackend {
	case IdentityPostgres:
		if a.db == nil {
			return nil, errors.New("identity backend postgres requires FEEDBACK_DATABASE_URL")
		}
		st, err := identity.NewPostgresStore(a.db)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("identity schema: %w", err)
		}
		return st, nil
	case IdentityMongo:
		if a.mongo == nil {
			return nil, errors.New("identity backend mongo requires FEEDBACK_MONGO_URI")
		}
		st, err := identity.NewMongoStore(a.mongo.Database(a.cfg.MongoDB))
		if err != nil {
			return nil, err
		}
		if err := st.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("identity indexes: %w", err)
		}
		return st, nil
	case IdentityMemory:
		a.log.Warn("identity.memory_store", "note", "accounts are lost on restart")
		return identity.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown identity backend %q", a.cfg.IdentityBackend)
	}
}

// bootstrapAdmin creates the configured superAdmin account if it is missing.
func (a *App) bootstrapAdmin(ctx context.Context, store identity.Store, pw password.Config) error {
	if a.cfg.BootstrapAdminEmail == "" || a.cfg.BootstrapAdminPassword == "" {
		return nil
	}
	hash, err := pw.Hash(a.cfg.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	acc, err := store.CreateAccount(ctx, identity.CreateAccountInput{
		Email:        a.cfg.BootstrapAdminEmail,
		PasswordHash: hash,
		Role:         identity.RoleSuperAdmin,
		Now:          time.Now().UTC(),
	})
	switch {
	case identity.IsConflict(err):
		a.log.Info("bootstrap.admin.exists")
		return nil
	case err != nil:
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	a.log.Info("bootstrap.admin.created", "account_id", acc.ID)
	return nil
}

func (a *App) limiter(cfg authapi.Config) authapi.Limiter {
	if a.redis != nil {
		return authapi.NewRedisLimiter(a.redis, cfg.LoginIPMax, cfg.LoginIPWindow)
	}
	return authapi.NewMemoryLimiter(cfg.LoginIPMax, cfg.LoginIPWindow)
}

func (a *App) auditor(ctx context.Context, cfg authapi.Config) authapi.Auditor {
	var out authapi.MultiAuditor
	if cfg.AuditToLog || a.db == nil {
		out = append(out, authapi.LogAuditor{Log: a.log.With("component", "audit")})
	}
	if a.db != nil {
		pa := authapi.NewPostgresAuditor(a.db, a.log)
		if err := pa.EnsureSchema(ctx); err != nil {
			a.log.Error("audit.schema.fail", "err", err)
		} else {
			out = append(out, pa)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// Run serves HTTP and runs the sweeper and stats loops until ctx is done.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	bgCtx, stopBg := context.WithCancel(ctx)
	var bg sync.WaitGroup
	bg.Add(2)
	go func() { defer bg.Done(); a.sessions.RunSweeper(bgCtx) }()
	go func() { defer bg.Done(); a.gateway.RunStats(bgCtx) }()
	defer func() {
		stopBg()
		bg.Wait()
	}()

	base := a.cfg.PublicBaseURL
	if base == "" {
		base = runtimeBaseURL(a.cfg.HTTPAddr)
	}
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", base,
		"ws_url", wsBaseURL(base)+"/ws",
		"identity", a.cfg.IdentityBackend,
		"redis", a.redis != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}
	a.log.Info("server.stopped", "sessions", a.sessions.Count())
	return nil
}

// Close releases backend connections. It is safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				a.log.Warn("redis.close.fail", "err", err)
			}
		}
		if a.mongo != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.mongo.Disconnect(ctx); err != nil {
				a.log.Warn("mongo.close.fail", "err", err)
			}
			cancel()
		}
		if a.db != nil {
			a.db.Close()
		}
	})
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
