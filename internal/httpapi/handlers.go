package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mise.app/internal/auth"
	"mise.app/internal/obs"
	"mise.app/internal/staff"
	"mise.app/internal/stream"
)

const serviceName = "mise-auth"

// Pinger is anything that can report database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks dependencies before the service reports ready.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// API is the HTTP layer over the staff service.
type API struct {
	router   chi.Router
	staff    *staff.Service
	identity *auth.Validator
	tokens   *auth.TokenVerifier
	feed     *stream.Hub

	readyProbe ReadyProbe
	version    string
	siteURL    string
	secure     bool
	origins    []string
	rateBurst  int
	ratePerSec float64
	bodyLimit  int64
}

// Option configures API.
type Option func(*API)

func WithReadyProbe(rp ReadyProbe) Option {
	return func(a *API) { a.readyProbe = rp }
}

func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithSiteURL sets the public origin used to build OAuth callback URLs.
func WithSiteURL(u string) Option {
	return func(a *API) { a.siteURL = u }
}

// WithSecureCookies marks every cookie Secure. Enabled in production.
func WithSecureCookies(on bool) Option {
	return func(a *API) { a.secure = on }
}

func WithAllowedOrigins(origins []string) Option {
	return func(a *API) { a.origins = origins }
}

// WithActivityFeed enables GET /v1/activity/stream.
func WithActivityFeed(h *stream.Hub) Option {
	return func(a *API) { a.feed = h }
}

// WithRateLimit sets the per-client HTTP token bucket.
func WithRateLimit(burst int, perSecond float64) Option {
	return func(a *API) {
		if burst > 0 {
			a.rateBurst = burst
		}
		if perSecond > 0 {
			a.ratePerSec = perSecond
		}
	}
}

func New(svc *staff.Service, identity *auth.Validator, tokens *auth.TokenVerifier, opts ...Option) *API {
	a := &API{
		staff:      svc,
		identity:   identity,
		tokens:     tokens,
		version:    "dev",
		siteURL:    "http://localhost:3000",
		rateBurst:  20,
		ratePerSec: 10,
		bodyLimit:  1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/staff/login/business", a.bindBusiness)
		r.Post("/staff/login", a.staffLogin)
		r.Post("/staff/logout", a.staffLogout)
		r.Post("/staff/pin", a.staffChangePin)
		r.Get("/staff/me", a.staffMe)

		r.Group(func(r chi.Router) {
			r.Use(a.requireOwner)

			r.Get("/me", a.me)
			r.Get("/roles", a.roles)

			r.Get("/staff", a.listStaff)
			r.Post("/staff", a.createStaff)
			r.Get("/staff/{id}", a.getStaff)
			r.Patch("/staff/{id}", a.updateStaff)
			r.Delete("/staff/{id}", a.deleteStaff)
			r.Post("/staff/{id}/role", a.changeRole)
			r.Post("/staff/{id}/deactivate", a.deactivateStaff)
			r.Post("/staff/{id}/activate", a.activateStaff)
			r.Post("/staff/{id}/pin/reset", a.resetPin)
			r.Post("/staff/{id}/signin", a.signInStaff)

			r.Get("/sessions", a.listSessions)
			r.Delete("/sessions/{id}", a.terminateSession)
			r.Post("/sessions/terminate", a.terminateSessions)
			r.Post("/sessions/sign-out-all", a.signOutAll)

			r.Get("/admin-pin", a.adminPinStatus)
			r.Put("/admin-pin", a.setAdminPin)
			r.Post("/admin-pin/verify", a.verifyAdminPin)

			r.Get("/activity", a.activity)
			r.Get("/activity/stream", a.activityStream)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, r, http.StatusNotFound, "route_not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})
	return r
}

// Handler wraps the router with the middleware chain. ctx bounds the
// background sweeper of the per-client rate limiter.
func (a *API) Handler(ctx context.Context) http.Handler {
	var h http.Handler = obs.Instrument(a.router)
	h = MaxBodyBytes(h, a.bodyLimit)
	h = RateLimit(ctx, h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.origins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  "dependency_unavailable",
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
