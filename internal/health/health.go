// Package health serves liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) bool

// Pinger is satisfied by the store repositories.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) bool {
		return p.Ping(ctx) == nil
	}
}

// Checker answers the health questions for the event log and the store.
type Checker struct {
	log     CheckFunc
	store   CheckFunc
	timeout time.Duration
}

// NewChecker constructs a Checker. A nil check always reports healthy.
func NewChecker(log, store CheckFunc) *Checker {
	return &Checker{log: log, store: store, timeout: 2 * time.Second}
}

// LogHealthy reports whether the event log is reachable.
func (c *Checker) LogHealthy(ctx context.Context) bool {
	return c.run(ctx, c.log)
}

// StoreHealthy reports whether the store is reachable.
func (c *Checker) StoreHealthy(ctx context.Context) bool {
	return c.run(ctx, c.store)
}

func (c *Checker) run(ctx context.Context, check CheckFunc) bool {
	if check == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return check(ctx)
}

// RegisterRoutes adds /healthz and /readyz.
func (c *Checker) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", healthz)
	r.Get("/readyz", c.readyz)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readiness struct {
	Log   bool `json:"log"`
	Store bool `json:"store"`
}

func (c *Checker) readyz(w http.ResponseWriter, r *http.Request) {
	status := readiness{Log: c.LogHealthy(r.Context()), Store: c.StoreHealthy(r.Context())}

	code := http.StatusOK
	if !status.Log || !status.Store {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
