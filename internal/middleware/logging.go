package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
)

// Logging injects a request-scoped logger into the context and logs each
// completed request.
func Logging(logger logr.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			log := logger
			if id := chimw.GetReqID(r.Context()); id != "" {
				log = log.WithValues("requestID", id)
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logr.NewContext(r.Context(), log)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.V(1).Info("HTTP request completed",
				"uri", r.RequestURI,
				"method", r.Method,
				"status", status,
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"latency_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
