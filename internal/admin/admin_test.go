package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/audit"
	"gestoria.cloud/internal/auth"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/model"
	"gestoria.cloud/internal/store/memstore"
)

type fixture struct {
	store    *memstore.Store
	tenant   *TenantAdmin
	platform *Platform
	acl      *authz.ACL

	tenantA model.Tenant
	tenantB model.Tenant
	admin   model.User
	member  model.User
	foreign model.User
	super   model.User
	company model.Company
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memstore.New()}
	var err error
	ops, err := f.store.CreateTenant(ctx, model.Tenant{Name: "Plataforma"})
	require.NoError(t, err)
	f.tenantA, err = f.store.CreateTenant(ctx, model.Tenant{Name: "Acme"})
	require.NoError(t, err)
	f.tenantB, err = f.store.CreateTenant(ctx, model.Tenant{Name: "Beta"})
	require.NoError(t, err)
	_, err = authz.SeedRBAC(ctx, f.store)
	require.NoError(t, err)

	f.admin = f.user(t, f.tenantA.ID, "admin@acme.test", authz.RoleTenantAdmin)
	f.member = f.user(t, f.tenantA.ID, "member@acme.test", authz.RoleOperator)
	f.foreign = f.user(t, f.tenantB.ID, "admin@beta.test", authz.RoleTenantAdmin)
	f.super = f.user(t, ops.ID, "root@gestoria.cloud", model.SuperAdminRole)
	f.company, err = f.store.CreateCompanyWithOwner(ctx, model.Company{TenantID: f.tenantA.ID, Name: "Foo", TaxID: "B1"},
		model.CompanyAccess{UserID: f.admin.ID, AccessLevel: model.AccessAdmin})
	require.NoError(t, err)

	tokens, err := auth.NewTokenService([]byte("secret"))
	require.NoError(t, err)
	authSvc, err := auth.NewService(f.store, tokens)
	require.NoError(t, err)
	rbac, err := authz.NewRBAC(f.store)
	require.NoError(t, err)
	f.acl, err = authz.NewACL(f.store)
	require.NoError(t, err)
	trail := audit.NewTrail(f.store)
	f.tenant, err = NewTenantAdmin(f.store, authSvc, rbac, f.acl, trail)
	require.NoError(t, err)
	f.platform, err = NewPlatform(f.store, authSvc, trail)
	require.NoError(t, err)
	return f
}

func (f *fixture) user(t *testing.T, tenantID, email, role string) model.User {
	t.Helper()
	ctx := context.Background()
	u, err := f.store.CreateUser(ctx, model.User{TenantID: tenantID, Email: email, Status: model.UserActive})
	require.NoError(t, err)
	r, err := f.store.FindRoleByName(ctx, role, tenantID)
	require.NoError(t, err)
	require.NoError(t, f.store.AssignRole(ctx, u.ID, r.ID))
	return u
}

func rcFor(u model.User, tenantID string) *authz.RequestContext {
	return authz.NewRequestContext().WithIdentity(u).WithTenant(tenantID, authz.ModeTenant)
}

func codeOf(err error) string {
	if e := apperr.From(err); e != nil {
		return e.Code
	}
	return ""
}

func TestListUsersPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := rcFor(f.admin, f.tenantA.ID)

	all, err := f.tenant.ListUsers(ctx, rc, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)
	assert.Len(t, all.Items, 2)
	assert.NotEmpty(t, all.Items[0].Roles)

	one, err := f.tenant.ListUsers(ctx, rc, 2, 1)
	require.NoError(t, err)
	assert.Len(t, one.Items, 1)
	assert.Equal(t, 2, one.Page)

	_, err = f.tenant.ListUsers(ctx, rc, 0, 10)
	assert.Equal(t, "invalid_pagination", codeOf(err))
}

func TestInviteWithRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := rcFor(f.admin, f.tenantA.ID)

	_, _, err := f.tenant.InviteUser(ctx, rc, "x@acme.test", RoleSelection{IDs: []string{}, Names: []string{}})
	assert.Equal(t, "roles_payload_conflict", codeOf(err))

	_, _, err = f.tenant.InviteUser(ctx, rc, "x@acme.test", RoleSelection{Names: []string{model.SuperAdminRole}})
	assert.ErrorIs(t, err, ErrRoleNotFound)

	res, roles, err := f.tenant.InviteUser(ctx, rc, "x@acme.test", RoleSelection{Names: []string{authz.RoleAdvisor}})
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.NotEmpty(t, res.Token)

	assigned, err := f.store.ListUserRoles(ctx, res.User.ID)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, authz.RoleAdvisor, assigned[0].Name)
}

func TestReplaceRolesRejectsForeignRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := rcFor(f.admin, f.tenantA.ID)

	foreignRole, err := f.store.FindRoleByName(ctx, authz.RoleTenantAdmin, f.tenantB.ID)
	require.NoError(t, err)

	_, err = f.tenant.ReplaceRoles(ctx, rc, f.member.ID, RoleSelection{})
	assert.Equal(t, "roles_required", codeOf(err))

	_, err = f.tenant.ReplaceRoles(ctx, rc, f.member.ID, RoleSelection{IDs: []string{foreignRole.ID}})
	assert.ErrorIs(t, err, ErrRoleNotFound)

	_, err = f.tenant.ReplaceRoles(ctx, rc, f.foreign.ID, RoleSelection{Names: []string{authz.RoleAdvisor}})
	assert.ErrorIs(t, err, ErrUserNotFound)

	roles, err := f.tenant.ReplaceRoles(ctx, rc, f.member.ID, RoleSelection{Names: []string{authz.RoleAdvisor}})
	require.NoError(t, err)
	assert.Equal(t, authz.RoleAdvisor, roles[0].Name)

	superRC := authz.NewRequestContext().WithIdentity(f.super).WithTenant(f.tenantA.ID, authz.ModePlatform)
	roles, err = f.tenant.ReplaceRoles(ctx, superRC, f.member.ID, RoleSelection{Names: []string{model.SuperAdminRole}})
	require.NoError(t, err)
	assert.True(t, roles[0].IsSuperAdmin())
}

func TestDisableEnableUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := rcFor(f.admin, f.tenantA.ID)

	off, err := f.tenant.DisableUser(ctx, rc, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserDisabled, off.Status)

	on, err := f.tenant.EnableUser(ctx, rc, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserActive, on.Status)

	res, _, err := f.tenant.InviteUser(ctx, rc, "pending@acme.test", RoleSelection{})
	require.NoError(t, err)
	_, err = f.tenant.EnableUser(ctx, rc, res.User.ID)
	assert.Equal(t, "user_not_activated", codeOf(err))
}

func TestCompanyAccessAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := rcFor(f.admin, f.tenantA.ID)

	_, err := f.tenant.UpsertAccess(ctx, rc, f.company.ID, f.member.ID, "owner")
	assert.Equal(t, "invalid_access_level", codeOf(err))

	_, err = f.tenant.UpsertAccess(ctx, rc, f.company.ID, f.foreign.ID, "viewer")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.tenant.PatchAccess(ctx, rc, f.company.ID, f.member.ID, "manager")
	assert.ErrorIs(t, err, ErrAccessNotFound)

	grant, err := f.tenant.UpsertAccess(ctx, rc, f.company.ID, f.member.ID, "viewer")
	require.NoError(t, err)
	assert.Equal(t, model.AccessViewer, grant.AccessLevel)

	grant, err = f.tenant.PatchAccess(ctx, rc, f.company.ID, f.member.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, model.AccessManager, grant.AccessLevel)

	list, err := f.tenant.ListAccess(ctx, rc, f.company.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, f.tenant.DeleteAccess(ctx, rc, f.company.ID, f.member.ID))
	assert.ErrorIs(t, f.tenant.DeleteAccess(ctx, rc, f.company.ID, f.member.ID), ErrAccessNotFound)

	entries, err := f.store.ListAuditEntries(ctx, f.tenantA.ID, model.AuditFilter{EntityType: "company"})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestPlatformTenantLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := authz.NewRequestContext().WithIdentity(f.super).WithTenant("", authz.ModePlatformNoContext)

	_, err := f.platform.CreateTenant(ctx, rc, TenantInput{Name: "acme"})
	assert.Equal(t, "tenant_name_conflict", codeOf(err))

	created, err := f.platform.CreateTenant(ctx, rc, TenantInput{Name: "Gamma", AdminEmail: "boss@gamma.test"})
	require.NoError(t, err)
	require.NotNil(t, created.AdminInvite)
	assert.Equal(t, model.UserInvited, created.AdminInvite.User.Status)

	roles, err := f.store.ListUserRoles(ctx, created.AdminInvite.User.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, authz.RoleTenantAdmin, roles[0].Name)
	assert.Equal(t, created.Tenant.ID, roles[0].TenantID)

	summary, err := f.platform.GetTenant(ctx, created.Tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Metrics.UserCount)

	suspended := model.TenantSuspended
	updated, err := f.platform.UpdateTenant(ctx, rc, created.Tenant.ID, TenantPatch{Status: &suspended})
	require.NoError(t, err)
	assert.Equal(t, model.TenantSuspended, updated.Status)

	bogus := model.TenantStatus("archived")
	_, err = f.platform.UpdateTenant(ctx, rc, created.Tenant.ID, TenantPatch{Status: &bogus})
	assert.Equal(t, "invalid_status", codeOf(err))

	_, err = f.platform.GetTenant(ctx, "missing")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	list, total, err := f.platform.ListTenants(ctx, TenantQuery{Status: model.TenantSuspended})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Gamma", list[0].Name)
}
