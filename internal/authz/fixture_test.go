package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gestoria.cloud/internal/audit"
	"gestoria.cloud/internal/auth"
	"gestoria.cloud/internal/model"
	"gestoria.cloud/internal/store/memstore"
)

type fixture struct {
	store    *memstore.Store
	tokens   *auth.TokenService
	trail    *audit.Trail
	rbac     *RBAC
	acl      *ACL
	resolver *TenantResolver
	pipeline *Pipeline

	platform model.Tenant
	tenantA  model.Tenant
	tenantB  model.Tenant

	super    model.User
	adminA   model.User
	advisorA model.User
	operA    model.User
	adminB   model.User
	company  model.Company
}

func newFixture(t *testing.T, opts ...ResolverOption) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memstore.New()}

	var err error
	f.platform, err = f.store.CreateTenant(ctx, model.Tenant{Name: "Plataforma"})
	require.NoError(t, err)
	f.tenantA, err = f.store.CreateTenant(ctx, model.Tenant{Name: "Acme"})
	require.NoError(t, err)
	f.tenantB, err = f.store.CreateTenant(ctx, model.Tenant{Name: "Beta"})
	require.NoError(t, err)
	_, err = SeedRBAC(ctx, f.store)
	require.NoError(t, err)

	f.super = f.user(t, f.platform.ID, "root@gestoria.cloud", model.SuperAdminRole)
	f.adminA = f.user(t, f.tenantA.ID, "admin@acme.test", RoleTenantAdmin)
	f.advisorA = f.user(t, f.tenantA.ID, "asesor@acme.test", RoleAdvisor)
	f.operA = f.user(t, f.tenantA.ID, "oper@acme.test", RoleOperator)
	f.adminB = f.user(t, f.tenantB.ID, "admin@beta.test", RoleTenantAdmin)

	f.company, err = f.store.CreateCompanyWithOwner(ctx,
		model.Company{TenantID: f.tenantA.ID, Name: "Foo SL", TaxID: "B100", Status: model.CompanyActive},
		model.CompanyAccess{UserID: f.adminA.ID, AccessLevel: model.AccessAdmin})
	require.NoError(t, err)

	f.tokens, err = auth.NewTokenService([]byte("test-secret"), auth.WithTTL(time.Hour))
	require.NoError(t, err)
	f.trail = audit.NewTrail(f.store)
	f.rbac, err = NewRBAC(f.store)
	require.NoError(t, err)
	f.acl, err = NewACL(f.store)
	require.NoError(t, err)
	f.resolver, err = NewTenantResolver(f.rbac, f.store, append([]ResolverOption{WithAuditor(f.trail)}, opts...)...)
	require.NoError(t, err)
	f.pipeline, err = NewPipeline(f.tokens, f.store, f.resolver, f.rbac, f.acl)
	require.NoError(t, err)
	return f
}

func (f *fixture) user(t *testing.T, tenantID, email, roleName string) model.User {
	t.Helper()
	ctx := context.Background()
	u, err := f.store.CreateUser(ctx, model.User{TenantID: tenantID, Email: email, Status: model.UserActive})
	require.NoError(t, err)
	if roleName != "" {
		role, err := f.store.FindRoleByName(ctx, roleName, tenantID)
		require.NoError(t, err)
		require.NoError(t, f.store.AssignRole(ctx, u.ID, role.ID))
	}
	return u
}

func (f *fixture) grant(t *testing.T, u model.User, level model.AccessLevel) {
	t.Helper()
	_, err := f.acl.Grant(context.Background(), nil, model.CompanyAccess{
		TenantID: f.company.TenantID, UserID: u.ID, CompanyID: f.company.ID, AccessLevel: level,
	})
	require.NoError(t, err)
}

func (f *fixture) bearer(t *testing.T, u model.User) string {
	t.Helper()
	token, _, err := f.tokens.Issue(u.ID, u.TenantID)
	require.NoError(t, err)
	return "Bearer " + token
}
