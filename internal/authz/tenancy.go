package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
	"gestoria.cloud/internal/obs"
)

const (
	// AdminTenantHeader carries the tenant a Super Admin wants to act in.
	AdminTenantHeader = "X-Admin-Tenant"
	// ClientIDHeader sets the tenant for anonymous requests when enabled.
	ClientIDHeader = "X-Client-Id"
)

// TenantDirective is the request input relevant to tenant resolution.
type TenantDirective struct {
	AdminTenant string
	ClientID    string
	Path        string
	Method      string
}

// TenantResolver computes the single tenant a request executes under.
type TenantResolver struct {
	rbac        *RBAC
	tenants     TenantDirectory
	audit       Auditor
	allowHeader bool
}

// ResolverOption configures TenantResolver.
type ResolverOption func(*TenantResolver)

// WithClientIDHeader enables the anonymous X-Client-Id fallback.
func WithClientIDHeader(enabled bool) ResolverOption {
	return func(r *TenantResolver) { r.allowHeader = enabled }
}

// WithAuditor records override use.
func WithAuditor(a Auditor) ResolverOption {
	return func(r *TenantResolver) { r.audit = a }
}

// NewTenantResolver constructs a resolver.
func NewTenantResolver(rbac *RBAC, tenants TenantDirectory, opts ...ResolverOption) (*TenantResolver, error) {
	if rbac == nil {
		return nil, errors.New("authz: rbac is required")
	}
	if tenants == nil {
		return nil, errors.New("authz: tenant directory is required")
	}
	r := &TenantResolver{rbac: rbac, tenants: tenants}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns rc bound to the effective tenant. Order:
//  1. Super Admin: override directive, else platform_no_context.
//  2. Any other identity: its own tenant; the override is ignored.
//  3. No identity: the client id header when enabled, else no tenant.
func (r *TenantResolver) Resolve(ctx context.Context, rc *RequestContext, d TenantDirective) (*RequestContext, error) {
	if rc == nil {
		rc = NewRequestContext()
	}
	user, ok := rc.User()
	if !ok {
		return r.resolveAnonymous(rc, d)
	}

	super, err := r.rbac.IsSuperAdmin(ctx, rc, user.ID)
	if err != nil {
		return nil, err
	}
	if !super {
		return rc.WithTenant(user.TenantID, ModeTenant), nil
	}

	raw := strings.TrimSpace(d.AdminTenant)
	if raw == "" {
		return rc.WithTenant("", ModePlatformNoContext), nil
	}
	tenantID, valid := ids.ParseUUID(raw)
	if !valid {
		return nil, apperr.ErrInvalidClientID
	}
	tenant, err := r.tenants.GetTenant(ctx, tenantID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, apperr.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenant lookup: %w", err)
	}

	obs.Logger().WithFields(logrus.Fields{
		"actor_user_id": user.ID,
		"client_id":     tenant.ID,
		"path":          d.Path,
		"method":        d.Method,
	}).Info("platform tenant override")
	if r.audit != nil {
		r.audit.LogAction(ctx, model.AuditEntry{
			TenantID:    tenant.ID,
			ActorUserID: user.ID,
			Action:      "platform.tenant_override",
			EntityType:  "client",
			EntityID:    tenant.ID,
			Metadata: map[string]string{
				"actor_user_id": user.ID,
				"path":          d.Path,
				"method":        d.Method,
			},
		})
	}
	return rc.WithTenant(tenant.ID, ModePlatform), nil
}

func (r *TenantResolver) resolveAnonymous(rc *RequestContext, d TenantDirective) (*RequestContext, error) {
	if !r.allowHeader {
		return rc.WithTenant("", ModeNone), nil
	}
	raw := strings.TrimSpace(d.ClientID)
	if raw == "" {
		return rc.WithTenant("", ModeNone), nil
	}
	tenantID, valid := ids.ParseUUID(raw)
	if !valid {
		return nil, apperr.ErrInvalidClientID
	}
	return rc.WithTenant(tenantID, ModeHeader), nil
}
