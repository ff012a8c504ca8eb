package server

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cendari/cendari-auth/internal/bridge"
	"github.com/cendari/cendari-auth/internal/config"
	authmiddleware "github.com/cendari/cendari-auth/internal/middleware"
	"github.com/cendari/cendari-auth/internal/session"
)

// Route paths served by the host.
const (
	LoginPath     = "/user/login"
	LogoutPath    = "/user/logout"
	DashboardPath = "/user/dashboard"
	WhoAmIPath    = "/api/whoami"
	HealthPath    = "/health"
	MetricsPath   = "/metrics"
)

// Authenticator is what the handlers need from the identity bridge.
type Authenticator interface {
	bridge.Authenticator
	Settings() bridge.Settings
	IsSysadmin(ctx context.Context, username string) (bool, error)
}

// RouterOptions controls the construction of the HTTP router.
type RouterOptions struct {
	Authenticator Authenticator
	SessionStore  session.Store
	Cfg           *config.Config
	Logger        logr.Logger

	// Gatherer backs /metrics. The route is omitted when nil.
	Gatherer prometheus.Gatherer

	// CORSOptions overrides the policy derived from Cfg.CORS.
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
}

// CORSOptionsFromConfig returns the CORS policy for the JSON endpoints, or
// nil when no origins are configured.
func CORSOptionsFromConfig(cfg *config.Config) *cors.Options {
	if cfg == nil || len(cfg.CORS.AllowedOrigins) == 0 {
		return nil
	}
	return &cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// FederationLoginURL is the SP login handler with a target that sends the
// browser back to the login route once the assertion is in place.
func FederationLoginURL(cfg *config.Config) string {
	return cfg.Bridge.LoginURL + "?target=" + url.QueryEscape(LoginPath)
}

// NewRouter assembles a chi.Router with the shared middleware and the
// login, logout and dashboard routes mounted.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(authmiddleware.Logging(opts.Logger))
	r.Use(middleware.Recoverer)

	corsCfg := opts.CORSOptions
	if corsCfg == nil {
		corsCfg = CORSOptionsFromConfig(opts.Cfg)
	}
	if corsCfg != nil {
		r.Use(cors.Handler(*corsCfg))
	}

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = HandleHealth
	}
	r.Get(HealthPath, healthHandler)

	if opts.Gatherer != nil {
		r.Method(http.MethodGet, MetricsPath, promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(authmiddleware.NewSessionMiddleware(opts.SessionStore, opts.Authenticator))

		r.Get(LoginPath, HandleLogin(opts.Authenticator, opts.Cfg))

		// The dashboard logs out with POST, which a SameSite=Lax cookie
		// keeps same-site. GET stays for links from the federation side.
		logout := HandleLogout(opts.Authenticator, opts.Cfg)
		r.Get(LogoutPath, logout)
		r.Post(LogoutPath, logout)
		r.Get(WhoAmIPath, HandleWhoAmI(opts.Authenticator))

		r.With(authmiddleware.RequireUser(LoginPath)).
			Get(DashboardPath, HandleDashboard(opts.Authenticator))
	})

	return r
}
