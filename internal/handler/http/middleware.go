package http

import (
	"context"
	"net/http"
)

// Authorizer mirrors service.Authorizer for the middleware.
type Authorizer interface {
	IsAuthorized(email string) bool
}

type contextKey string

const userEmailKey contextKey = "user_email"

// RequireAuthorized gates the portal API on the configured allow-list. The
// upstream identity provider authenticates the user and forwards the verified
// email in X-User-Email; this middleware only decides whether that email may
// use the portal.
func RequireAuthorized(a Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := r.Header.Get("X-User-Email")
			if email == "" {
				respondWithError(w, http.StatusUnauthorized, "missing user identity")
				return
			}
			if !a.IsAuthorized(email) {
				respondWithError(w, http.StatusForbidden, "user is not allowed")
				return
			}
			ctx := context.WithValue(r.Context(), userEmailKey, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userEmail(ctx context.Context) string {
	email, _ := ctx.Value(userEmailKey).(string)
	return email
}
