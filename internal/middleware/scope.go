package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"adaptiveclean/internal/storage"
)

// Headers set by the authenticating proxy in front of the service.
const (
	OwnerHeader = "X-Owner"
	AdminHeader = "X-Admin"
)

type scopeKey struct{}

// Scope copies the caller identity asserted by the upstream proxy into the
// request context. Requests without an owner get the anonymous scope,
// which only reads unowned datasets.
func Scope(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := storage.Scope{Owner: r.Header.Get(OwnerHeader)}
			if v := r.Header.Get(AdminHeader); v != "" {
				admin, err := strconv.ParseBool(v)
				if err != nil {
					logger.WarnContext(r.Context(), "invalid_admin_header",
						slog.String("value", v),
						slog.String("path", r.URL.Path),
					)
				}
				scope.Admin = admin
			}
			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
		})
	}
}

// WithScope stores scope in ctx.
func WithScope(ctx context.Context, scope storage.Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the caller scope, or the anonymous scope.
func ScopeFrom(ctx context.Context) storage.Scope {
	scope, _ := ctx.Value(scopeKey{}).(storage.Scope)
	return scope
}
