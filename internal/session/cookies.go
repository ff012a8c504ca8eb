package session

import (
	"net/http"
	"time"
)

// CookieOptions controls the session cookie attributes.
type CookieOptions struct {
	Name   string
	Path   string
	Secure bool
	MaxAge time.Duration
}

func (o CookieOptions) withDefaults() CookieOptions {
	if o.Name == "" {
		o.Name = "cendari.session"
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}
	return o
}

// setSecureCookie sets an HttpOnly, SameSite=Lax cookie in the response.
func setSecureCookie(w http.ResponseWriter, opts CookieOptions, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Path:     opts.Path,
		Value:    value,
		Secure:   opts.Secure,
		HttpOnly: true,
		MaxAge:   int(opts.MaxAge.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

// deleteCookie deletes a cookie in the response.
func deleteCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Path:     opts.Path,
		Secure:   opts.Secure,
		HttpOnly: true,
		MaxAge:   -1,
	})
}
