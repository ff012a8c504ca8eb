package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-logr/logr"

	"github.com/cendari/cendari-auth/internal/auth"
	"github.com/cendari/cendari-auth/internal/bridge"
	"github.com/cendari/cendari-auth/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Messages shown on the login page. Internal error text never reaches the
// browser.
const (
	msgRejected     = "Your institutional identity could not be matched to a CENDARI account."
	msgFallbackMiss = "No CENDARI account is linked to your institutional identity."
	msgUnavailable  = "Login is temporarily unavailable. Please try again later."
)

type loginPage struct {
	FederationLoginURL string
	Message            string
}

type dashboardPage struct {
	Username  string
	Sysadmin  bool
	LogoutURL string
}

// WhoAmIResponse is the body of GET /api/whoami.
type WhoAmIResponse struct {
	Username string `json:"username"`
	Sysadmin bool   `json:"sysadmin"`
}

// HandleLogin runs the federation login for the request. A bound session
// is redirected to the dashboard; everything else renders the login page.
func HandleLogin(authn Authenticator, cfg *config.Config) http.HandlerFunc {
	federationLogin := FederationLoginURL(cfg)
	prefix := cfg.Bridge.AttributeHeaderPrefix

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logr.FromContextOrDiscard(ctx)
		page := loginPage{FederationLoginURL: federationLogin}

		sess, ok := auth.GetSessionFromContext(ctx)
		if !ok {
			page.Message = msgUnavailable
			render(w, r, "login.html", page, http.StatusOK)
			return
		}

		result, err := authn.Login(ctx, bridge.HeaderEnviron{Header: r.Header, Prefix: prefix}, sess)
		if err != nil {
			log.Error(err, "login failed", "outcome", result.Outcome.String())
		}

		switch result.Outcome {
		case bridge.OutcomeBound:
			http.Redirect(w, r, result.Redirect, http.StatusFound)
			return
		case bridge.OutcomeNoAssertion:
			if _, ok := auth.GetUserFromContext(ctx); ok {
				http.Redirect(w, r, authn.Settings().DashboardURL, http.StatusFound)
				return
			}
		case bridge.OutcomeRejected:
			page.Message = msgRejected
		case bridge.OutcomeFallbackMiss:
			page.Message = msgFallbackMiss
		default:
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render(w, r, "login.html", page, http.StatusOK)
	}
}

// HandleLogout drops the session binding and hands the browser to the
// federation logout handler.
func HandleLogout(authn Authenticator, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess, ok := auth.GetSessionFromContext(ctx)
		if !ok {
			http.Redirect(w, r, cfg.Bridge.LogoutURL, http.StatusFound)
			return
		}

		target, err := authn.Logout(ctx, sess)
		if err != nil {
			logr.FromContextOrDiscard(ctx).Error(err, "logout failed to clear session")
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// HandleDashboard renders the landing page for an identified user.
func HandleDashboard(authn Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity, ok := auth.GetUserFromContext(ctx)
		if !ok {
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}

		render(w, r, "dashboard.html", dashboardPage{
			Username:  identity.Username,
			Sysadmin:  lookupSysadmin(r, authn, identity.Username),
			LogoutURL: LogoutPath,
		}, http.StatusOK)
	}
}

// HandleWhoAmI returns the identified user as JSON.
func HandleWhoAmI(authn Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.GetUserFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		writeJSON(w, http.StatusOK, WhoAmIResponse{
			Username: identity.Username,
			Sysadmin: lookupSysadmin(r, authn, identity.Username),
		})
	}
}

// HandleHealth reports liveness.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// lookupSysadmin reads the stored flag. Users without a local account and
// lookup failures both read as false.
func lookupSysadmin(r *http.Request, authn Authenticator, username string) bool {
	sysadmin, err := authn.IsSysadmin(r.Context(), username)
	if err != nil && !errors.Is(err, bridge.ErrUserNotFound) {
		logr.FromContextOrDiscard(r.Context()).Error(err, "failed to read sysadmin flag", "username", username)
	}
	return sysadmin
}

func render(w http.ResponseWriter, r *http.Request, name string, data any, status int) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "failed to render template", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
