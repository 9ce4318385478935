// Package middleware carries the HTTP request plumbing: role extraction,
// request logging, metrics, and the per-request query budget.
package middleware

import (
	"context"
	"net/http"
)

type roleContextKey struct{}

// WithRole stores the database role in the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleContextKey{}, role)
}

// RoleFromContext returns the database role stored in the context.
func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(roleContextKey{}).(string)
	return role, ok && role != ""
}

// Role extracts the database role from the configured header and stores it
// in the request context. An empty header leaves the context untouched and
// the request runs as the connection's own role.
func Role(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if header != "" {
				if role := r.Header.Get(header); role != "" {
					r = r.WithContext(WithRole(r.Context(), role))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
