package middleware

import (
	"context"
	"net/http"

	"github.com/go-logr/logr"

	"github.com/cendari/cendari-auth/internal/auth"
	"github.com/cendari/cendari-auth/internal/session"
)

// Identifier resolves the user bound to a session.
type Identifier interface {
	Identify(ctx context.Context, sess session.Session) (string, bool)
}

// NewSessionMiddleware loads the session for every request, stores it on
// the context and, when a user is bound, marks the request as acting for
// that user.
//
// A session store failure is logged and the request continues without a
// session, which downstream handlers treat as unauthenticated.
func NewSessionMiddleware(store session.Store, identifier Identifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			sess, err := store.Load(w, r)
			if err != nil {
				logr.FromContextOrDiscard(ctx).Error(err, "failed to load session")
				next.ServeHTTP(w, r)
				return
			}
			ctx = auth.SetSessionContext(ctx, sess)

			if username, ok := identifier.Identify(ctx, sess); ok {
				ctx = auth.SetUserContext(ctx, auth.Identity{Username: username})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser sends unauthenticated requests to loginURL.
func RequireUser(loginURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.GetUserFromContext(r.Context()); !ok {
				http.Redirect(w, r, loginURL, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
