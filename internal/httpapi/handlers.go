// Package httpapi exposes the authorization core and the tenant services
// over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gestoria.cloud/internal/admin"
	"gestoria.cloud/internal/audit"
	"gestoria.cloud/internal/auth"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/cache"
	"gestoria.cloud/internal/casework"
	"gestoria.cloud/internal/obs"
)

const serviceName = "gestoria-api"

// ReadinessCheck reports whether the backing stores answer.
type ReadinessCheck interface {
	Check(ctx context.Context) error
}

// PingCheck adapts anything with Ping to ReadinessCheck.
type PingCheck struct {
	Pinger interface{ Ping(ctx context.Context) error }
}

func (p PingCheck) Check(ctx context.Context) error {
	if p.Pinger == nil {
		return nil
	}
	return p.Pinger.Ping(ctx)
}

// Deps are the services the API dispatches to.
type Deps struct {
	Auth     *auth.Service
	Pipeline *authz.Pipeline
	Casework *casework.Service
	Admin    *admin.TenantAdmin
	Platform *admin.Platform
	Audit    *audit.Trail
	Throttle cache.Throttle
	Ready    ReadinessCheck
}

// API is the HTTP layer.
type API struct {
	Deps

	version      string
	rateBurst    int
	ratePerSec   int
	maxBodyBytes int64
	corsOrigins  []string
}

// Option configures API.
type Option func(*API)

func WithVersion(v string) Option { return func(a *API) { a.version = v } }

func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst, a.ratePerSec = burst, perSecond
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

func WithCORSOrigins(origins []string) Option { return func(a *API) { a.corsOrigins = origins } }

// New validates deps and returns the API.
func New(deps Deps, opts ...Option) (*API, error) {
	switch {
	case deps.Auth == nil:
		return nil, errors.New("httpapi: auth service is required")
	case deps.Pipeline == nil:
		return nil, errors.New("httpapi: pipeline is required")
	case deps.Casework == nil:
		return nil, errors.New("httpapi: casework service is required")
	case deps.Admin == nil || deps.Platform == nil:
		return nil, errors.New("httpapi: admin services are required")
	case deps.Audit == nil:
		return nil, errors.New("httpapi: audit trail is required")
	case deps.Throttle == nil:
		return nil, errors.New("httpapi: login throttle is required")
	}
	a := &API{
		Deps:         deps,
		version:      "dev",
		rateBurst:    50,
		ratePerSec:   25,
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Handler builds the router with the full middleware chain.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, LoggingJSON, SecurityHeaders, CORS(a.corsOrigins), MaxBodyBytes(a.maxBodyBytes))
	r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.rateBurst, a.ratePerSec) })
	r.Use(obs.Instrument, WithRequestContext)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { writeError(w, r, errNotFound) })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
			"error":      "method_not_allowed",
			"message":    "Method not allowed.",
			"request_id": RequestIDFromContext(r.Context()),
		})
	})

	r.Get("/health", a.Health)
	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Readyz)
	r.Get("/info", a.Info)
	r.Handle("/metrics", obs.Handler())
	r.Get("/health/tenant", a.protect(guard{anonymous: true}, a.tenantHealth))

	a.authRoutes(r)
	a.rbacRoutes(r)
	a.companyRoutes(r)
	a.documentRoutes(r)
	a.adminRoutes(r)
	a.platformRoutes(r)
	r.Get("/audit", a.protect(guard{tenant: true, anyOf: []string{authz.PermAuditRead}}, a.listAudit))
	return r
}

// --- operations ---

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Readyz(w http.ResponseWriter, r *http.Request) {
	if a.Ready != nil {
		if err := a.Ready.Check(r.Context()); err != nil {
			obs.SetReady(false)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) tenantHealth(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"client_id":   nullable(rc.TenantID()),
		"tenant_mode": rc.Mode(),
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
