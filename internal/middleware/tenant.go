package middleware

import (
	"context"
	"net/http"

	"github.com/Strob0t/bizops/internal/logger"
)

const headerTenantID = "X-Tenant-ID"

type tenantCtxKey struct{}

// WithTenantID stores the tenant ID in ctx for handlers and tags log records.
func WithTenantID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, tenantCtxKey{}, id)
	return logger.WithTenantID(ctx, id)
}

// TenantID is middleware that extracts the tenant ID from the X-Tenant-ID
// header. Requests without the header pass through untagged.
func TenantID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tid := r.Header.Get(headerTenantID); tid != "" {
			r = r.WithContext(WithTenantID(r.Context(), tid))
		}
		next.ServeHTTP(w, r)
	})
}

// TenantIDFromContext returns the tenant ID stored in ctx, or "" if absent.
func TenantIDFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(tenantCtxKey{}).(string)
	return tid
}
