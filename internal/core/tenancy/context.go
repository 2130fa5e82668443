// Package tenancy carries the active tenant through context.Context. It is
// the sole authority components consult to decide what data is visible: the
// tenant never travels as an optional parameter, and there is no process-wide
// default to fall back to.
package tenancy

import (
	"context"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
)

type tenantContextKey struct{}

// WithTenant establishes the tenant for one unit of work. The returned
// context is the only handle on it; dropping the context tears it down.
func WithTenant(ctx context.Context, tenant domain.TenantID) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenant)
}

// FromContext returns the active tenant, or ok=false when none is set.
func FromContext(ctx context.Context) (domain.TenantID, bool) {
	if ctx == nil {
		return "", false
	}
	tenant, ok := ctx.Value(tenantContextKey{}).(domain.TenantID)
	if !ok || tenant.IsZero() {
		return "", false
	}
	return tenant, true
}

// Require fails closed: any data-plane call made without a tenant in scope
// gets ErrTenantContextMissing, never an implicit "all tenants" view.
func Require(ctx context.Context) (domain.TenantID, error) {
	tenant, ok := FromContext(ctx)
	if !ok {
		return "", domain.ErrTenantContextMissing
	}
	return tenant, nil
}
