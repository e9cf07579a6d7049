package authz

import (
	"context"

	"gestoria.cloud/internal/model"
)

// RoleStore answers the RBAC joins.
type RoleStore interface {
	// UserHasPlatformRole reports whether the user holds the platform-scoped,
	// tenant-less role with the given name.
	UserHasPlatformRole(ctx context.Context, userID, roleName string) (bool, error)
	// ListPermissionCodes returns the whole catalog.
	ListPermissionCodes(ctx context.Context) ([]string, error)
	// ListUserPermissionCodes returns the codes reachable through the user's
	// roles where scope=platform or (scope=tenant and tenant=tenantID).
	ListUserPermissionCodes(ctx context.Context, userID, tenantID string) ([]string, error)
}

// AccessStore persists company ACL rows.
type AccessStore interface {
	GetCompanyAccess(ctx context.Context, tenantID, userID, companyID string) (model.CompanyAccess, error)
	ListAllowedCompanyIDs(ctx context.Context, tenantID, userID string) ([]string, error)
	UpsertCompanyAccess(ctx context.Context, access model.CompanyAccess) (model.CompanyAccess, error)
}

// TenantDirectory looks tenants up by id.
type TenantDirectory interface {
	GetTenant(ctx context.Context, id string) (model.Tenant, error)
}

// IdentityStore loads live user state by (tenant, id).
type IdentityStore interface {
	GetUser(ctx context.Context, tenantID, userID string) (model.User, error)
}

// SeedStore is used by the idempotent RBAC seed.
type SeedStore interface {
	UpsertPermission(ctx context.Context, code, description string) (model.Permission, error)
	EnsureRole(ctx context.Context, role model.Role) (model.Role, error)
	SetRolePermissions(ctx context.Context, roleID string, codes []string) error
	ListTenants(ctx context.Context) ([]model.Tenant, error)
}

// Auditor records security-relevant actions without failing the caller.
type Auditor interface {
	LogAction(ctx context.Context, entry model.AuditEntry)
}
