package authz

import (
	"context"
	"errors"
	"fmt"

	"gestoria.cloud/internal/model"
)

// SeedReport summarizes one seed run.
type SeedReport struct {
	Permissions int
	Roles       int
	Tenants     int
}

// SeedRBAC upserts the permission catalog, the platform Super Admin role and
// the tenant roles of every active tenant. Running it again converges on the
// same rows.
func SeedRBAC(ctx context.Context, store SeedStore) (SeedReport, error) {
	if store == nil {
		return SeedReport{}, errors.New("authz: seed store is required")
	}
	var report SeedReport
	for _, def := range Catalog {
		if _, err := store.UpsertPermission(ctx, def.Code, def.Description); err != nil {
			return report, fmt.Errorf("seed permission %s: %w", def.Code, err)
		}
		report.Permissions++
	}

	super, err := store.EnsureRole(ctx, model.Role{Name: model.SuperAdminRole, Scope: model.ScopePlatform})
	if err != nil {
		return report, fmt.Errorf("seed role %s: %w", model.SuperAdminRole, err)
	}
	if err := store.SetRolePermissions(ctx, super.ID, CatalogCodes()); err != nil {
		return report, fmt.Errorf("seed role %s permissions: %w", model.SuperAdminRole, err)
	}
	report.Roles++

	tenants, err := store.ListTenants(ctx)
	if err != nil {
		return report, fmt.Errorf("list tenants: %w", err)
	}
	for _, t := range tenants {
		if t.Status != model.TenantActive {
			continue
		}
		n, err := SeedTenantRoles(ctx, store, t.ID)
		if err != nil {
			return report, err
		}
		report.Roles += n
		report.Tenants++
	}
	return report, nil
}

// SeedTenantRoles ensures the tenant roles for one tenant.
func SeedTenantRoles(ctx context.Context, store SeedStore, tenantID string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenant id is required", model.ErrRoleScope)
	}
	count := 0
	for _, name := range []string{RoleTenantAdmin, RoleAdvisor, RoleOperator} {
		role, err := store.EnsureRole(ctx, model.Role{Name: name, Scope: model.ScopeTenant, TenantID: tenantID})
		if err != nil {
			return count, fmt.Errorf("seed role %s for %s: %w", name, tenantID, err)
		}
		if err := store.SetRolePermissions(ctx, role.ID, TenantRoles[name]); err != nil {
			return count, fmt.Errorf("seed role %s permissions for %s: %w", name, tenantID, err)
		}
		count++
	}
	return count, nil
}
