package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const readyPingTimeout = time.Second

// readinessCheck pings one dependency.
type readinessCheck struct {
	name string
	ping func(ctx context.Context) error
}

type readinessReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (a *App) registerHealth(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /readyz", a.handleReady)
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	rep := readinessReport{Status: "ready", Checks: map[string]string{}}
	code := http.StatusOK

	if a.cfg.ReadinessRequireDB && a.db == nil {
		rep.Checks["postgres"] = "not configured"
		code = http.StatusServiceUnavailable
	}
	for _, c := range a.readiness {
		ctx, cancel := context.WithTimeout(r.Context(), readyPingTimeout)
		err := c.ping(ctx)
		cancel()
		if err != nil {
			rep.Checks[c.name] = "unreachable"
			code = http.StatusServiceUnavailable
			a.log.Warn("readyz.not_ready", "dependency", c.name, "err", err)
			continue
		}
		rep.Checks[c.name] = "ok"
	}
	if code != http.StatusOK {
		rep.Status = "not_ready"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}
