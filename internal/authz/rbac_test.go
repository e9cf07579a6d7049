package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestoria.cloud/internal/model"
)

func TestSuperAdminReceivesWholeCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	super, err := f.rbac.IsSuperAdmin(ctx, nil, f.super.ID)
	require.NoError(t, err)
	assert.True(t, super)

	perms, err := f.rbac.ResolvePermissions(ctx, nil, f.super.ID, f.tenantB.ID)
	require.NoError(t, err)
	assert.Len(t, perms, len(Catalog))

	ok, err := f.rbac.HasPermission(ctx, nil, f.super, PermAuditRead)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTenantRolePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		user model.User
		code string
		want bool
	}{
		{f.adminA, PermAuditRead, true},
		{f.adminA, PermACLManage, true},
		{f.advisorA, PermCaseWrite, true},
		{f.advisorA, PermAuditRead, false},
		{f.advisorA, PermACLRead, false},
		{f.operA, PermDocumentUpload, true},
		{f.operA, PermCompanyWrite, false},
		{f.operA, PermACLManage, false},
		{f.adminA, PermPlatformClientsManage, false},
	}
	for _, tc := range cases {
		ok, err := f.rbac.HasPermission(ctx, nil, tc.user, tc.code)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "%s %s", tc.user.Email, tc.code)
	}
}

func TestForeignTenantRolesAreInert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	foreign, err := f.store.FindRoleByName(ctx, RoleTenantAdmin, f.tenantB.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.AssignRole(ctx, f.operA.ID, foreign.ID))

	perms, err := f.rbac.ResolvePermissions(ctx, nil, f.operA.ID, f.tenantA.ID)
	require.NoError(t, err)
	_, has := perms[PermACLManage]
	assert.False(t, has)

	none, err := f.rbac.ResolvePermissions(ctx, nil, f.adminA.ID, f.tenantB.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPermissionDecisionsAreMemoizedPerRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := NewRequestContext().WithIdentity(f.operA)

	ok, err := f.rbac.HasPermission(ctx, rc, f.operA, PermCompanyWrite)
	require.NoError(t, err)
	require.False(t, ok)

	admin, err := f.store.FindRoleByName(ctx, RoleTenantAdmin, f.tenantA.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.AssignRole(ctx, f.operA.ID, admin.ID))

	ok, err = f.rbac.HasPermission(ctx, rc, f.operA, PermCompanyWrite)
	require.NoError(t, err)
	assert.False(t, ok, "same request keeps its decision")

	fresh := NewRequestContext().WithIdentity(f.operA)
	ok, err = f.rbac.HasPermission(ctx, fresh, f.operA, PermCompanyWrite)
	require.NoError(t, err)
	assert.True(t, ok, "a new request observes the new role")
}

func TestLegacyPlatformCodeOnlyGatesPlatformAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.UpsertPermission(ctx, PermLegacySuperAdmin, "legacy")
	require.NoError(t, err)
	role, err := f.store.EnsureRole(ctx, model.Role{Name: "Legacy Ops", Scope: model.ScopePlatform})
	require.NoError(t, err)
	require.NoError(t, f.store.SetRolePermissions(ctx, role.ID, []string{PermLegacySuperAdmin}))
	ops := f.user(t, f.platform.ID, "ops@gestoria.cloud", "")
	require.NoError(t, f.store.AssignRole(ctx, ops.ID, role.ID))

	super, err := f.rbac.IsSuperAdmin(ctx, nil, ops.ID)
	require.NoError(t, err)
	assert.False(t, super)

	platform, err := f.rbac.IsPlatformAdmin(ctx, nil, ops)
	require.NoError(t, err)
	assert.True(t, platform)

	platform, err = f.rbac.IsPlatformAdmin(ctx, nil, f.adminA)
	require.NoError(t, err)
	assert.False(t, platform)
}
