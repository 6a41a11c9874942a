package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// ownerHeader carries the caller's opaque identity.
const ownerHeader = "X-Owner-ID"

type contextKey string

const ownerContextKey contextKey = "owner"

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// requireOwner rejects requests without an owner header and stores the
// owner in the request context.
func (s *Server) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(ownerHeader))
		if owner == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{"missing " + ownerHeader + " header"})
			return
		}

		ctx := context.WithValue(r.Context(), ownerContextKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerContextKey).(string)
	return owner
}
