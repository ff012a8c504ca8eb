package auth

import (
	"context"

	"github.com/cendari/cendari-auth/internal/session"
)

// Identity is the user the current request acts as.
type Identity struct {
	// Username is the canonical local username bound to the session.
	Username string
}

type identityContextKey struct{}

// SetUserContext stores the identified user on the context for downstream consumers.
func SetUserContext(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// GetUserFromContext retrieves the identified user from the context.
func GetUserFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok && identity.Username != ""
}

type sessionContextKey struct{}

// SetSessionContext stores the request's session on the context.
func SetSessionContext(ctx context.Context, sess session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// GetSessionFromContext retrieves the request's session. It is absent
// when the session store could not be read.
func GetSessionFromContext(ctx context.Context) (session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(session.Session)
	return sess, ok && sess != nil
}
