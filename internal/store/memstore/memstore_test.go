package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestoria.cloud/internal/model"
)

func seedTenantUser(t *testing.T, s *Store, name, email string) (model.Tenant, model.User) {
	t.Helper()
	ctx := context.Background()
	tenant, err := s.CreateTenant(ctx, model.Tenant{Name: name})
	require.NoError(t, err)
	user, err := s.CreateUser(ctx, model.User{TenantID: tenant.ID, Email: email, Status: model.UserActive})
	require.NoError(t, err)
	return tenant, user
}

func TestUsersAreTenantScoped(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, ua := seedTenantUser(t, s, "Acme", "ana@example.com")
	b, _ := seedTenantUser(t, s, "Beta", "ana@example.com")

	_, err := s.GetUser(ctx, b.ID, ua.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	got, err := s.GetUser(ctx, a.ID, ua.ID)
	require.NoError(t, err)
	assert.Equal(t, ua.Email, got.Email)

	_, err = s.CreateUser(ctx, model.User{TenantID: a.ID, Email: "ana@example.com"})
	assert.ErrorIs(t, err, model.ErrConflict)

	active, err := s.ListActiveUsersByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestPermissionScopeFiltering(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, user := seedTenantUser(t, s, "Acme", "ana@example.com")
	b, _ := seedTenantUser(t, s, "Beta", "bob@example.com")

	for _, code := range []string{"company.read", "case.read", "platform.metrics.read"} {
		_, err := s.UpsertPermission(ctx, code, code)
		require.NoError(t, err)
	}
	roleA, err := s.EnsureRole(ctx, model.Role{Name: "Asesor", Scope: model.ScopeTenant, TenantID: a.ID})
	require.NoError(t, err)
	roleB, err := s.EnsureRole(ctx, model.Role{Name: "Asesor", Scope: model.ScopeTenant, TenantID: b.ID})
	require.NoError(t, err)
	platform, err := s.EnsureRole(ctx, model.Role{Name: "Metrics", Scope: model.ScopePlatform})
	require.NoError(t, err)
	require.NoError(t, s.SetRolePermissions(ctx, roleA.ID, []string{"company.read"}))
	require.NoError(t, s.SetRolePermissions(ctx, roleB.ID, []string{"case.read"}))
	require.NoError(t, s.SetRolePermissions(ctx, platform.ID, []string{"platform.metrics.read"}))
	require.NoError(t, s.ReplaceUserRoles(ctx, user.ID, []string{roleA.ID, roleB.ID, platform.ID}))

	codes, err := s.ListUserPermissionCodes(ctx, user.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"company.read", "platform.metrics.read"}, codes)

	again, err := s.EnsureRole(ctx, model.Role{Name: "Asesor", Scope: model.ScopeTenant, TenantID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, roleA.ID, again.ID)

	_, err = s.EnsureRole(ctx, model.Role{Name: "Broken", Scope: model.ScopePlatform, TenantID: a.ID})
	assert.ErrorIs(t, err, model.ErrRoleScope)

	err = s.SetRolePermissions(ctx, roleA.ID, []string{"missing.code"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCompanyBootstrapAndAccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, owner := seedTenantUser(t, s, "Acme", "ana@example.com")
	b, stranger := seedTenantUser(t, s, "Beta", "bob@example.com")

	c, err := s.CreateCompanyWithOwner(ctx,
		model.Company{TenantID: a.ID, Name: "Foo SL", TaxID: "B123", Status: model.CompanyActive},
		model.CompanyAccess{UserID: owner.ID, AccessLevel: model.AccessAdmin})
	require.NoError(t, err)

	grant, err := s.GetCompanyAccess(ctx, a.ID, owner.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccessAdmin, grant.AccessLevel)

	_, err = s.CreateCompanyWithOwner(ctx,
		model.Company{TenantID: a.ID, Name: "Dup", TaxID: "b123"},
		model.CompanyAccess{UserID: owner.ID, AccessLevel: model.AccessAdmin})
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = s.GetCompanyAccess(ctx, b.ID, owner.ID, c.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = s.UpsertCompanyAccess(ctx, model.CompanyAccess{TenantID: a.ID, UserID: stranger.ID, CompanyID: c.ID, AccessLevel: model.AccessViewer})
	assert.ErrorIs(t, err, model.ErrNotFound)

	allowed, err := s.ListAllowedCompanyIDs(ctx, a.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, allowed)

	list, total, err := s.ListCompanies(ctx, a.ID, allowed, model.CompanyFilter{Query: "foo"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, c.ID, list[0].ID)

	require.NoError(t, s.DeleteCompanyAccess(ctx, a.ID, owner.ID, c.ID))
	assert.ErrorIs(t, s.DeleteCompanyAccess(ctx, a.ID, owner.ID, c.ID), model.ErrNotFound)
}

func TestCaseEventsAppendInOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, owner := seedTenantUser(t, s, "Acme", "ana@example.com")
	c, err := s.CreateCompanyWithOwner(ctx, model.Company{TenantID: a.ID, Name: "Foo"},
		model.CompanyAccess{UserID: owner.ID, AccessLevel: model.AccessAdmin})
	require.NoError(t, err)

	kase, err := s.CreateCase(ctx, model.Case{TenantID: a.ID, CompanyID: c.ID, Title: "Alta", Status: model.CaseOpen},
		model.CaseEvent{Type: model.EventStatusChange})
	require.NoError(t, err)

	kase.Status = model.CaseInProgress
	_, err = s.UpdateCase(ctx, kase, &model.CaseEvent{Type: model.EventStatusChange})
	require.NoError(t, err)
	_, err = s.AppendCaseEvent(ctx, model.CaseEvent{TenantID: a.ID, CompanyID: c.ID, CaseID: kase.ID, Type: model.EventComment})
	require.NoError(t, err)

	events, err := s.ListCaseEvents(ctx, a.ID, c.ID, kase.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, model.EventComment, events[2].Type)

	_, err = s.GetCase(ctx, a.ID, "other-company", kase.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAuditNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.InsertAuditEntry(ctx, model.AuditEntry{ID: "1", TenantID: "t1", Action: "a"}))
	require.NoError(t, s.InsertAuditEntry(ctx, model.AuditEntry{ID: "2", TenantID: "t1", Action: "b"}))
	require.NoError(t, s.InsertAuditEntry(ctx, model.AuditEntry{ID: "3", TenantID: "t2", Action: "c"}))
	assert.Error(t, s.InsertAuditEntry(ctx, model.AuditEntry{ID: "4"}))

	got, err := s.ListAuditEntries(ctx, "t1", model.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
}

func TestSuperAdminIsGrantableInAnyTenant(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, _ := seedTenantUser(t, s, "Acme", "ana@example.com")
	_, root := seedTenantUser(t, s, "Plataforma", "root@example.com")
	_, stranger := seedTenantUser(t, s, "Beta", "bob@example.com")

	super, err := s.EnsureRole(ctx, model.Role{Name: model.SuperAdminRole, Scope: model.ScopePlatform})
	require.NoError(t, err)
	require.NoError(t, s.AssignRole(ctx, root.ID, super.ID))

	c, err := s.CreateCompanyWithOwner(ctx, model.Company{TenantID: a.ID, Name: "Foo"},
		model.CompanyAccess{UserID: root.ID, AccessLevel: model.AccessAdmin})
	require.NoError(t, err)
	grant, err := s.GetCompanyAccess(ctx, a.ID, root.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, grant.TenantID)

	_, err = s.CreateCompanyWithOwner(ctx, model.Company{TenantID: a.ID, Name: "Bar"},
		model.CompanyAccess{UserID: stranger.ID, AccessLevel: model.AccessAdmin})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = s.UpsertCompanyAccess(ctx, model.CompanyAccess{TenantID: a.ID, UserID: stranger.ID, CompanyID: c.ID, AccessLevel: model.AccessViewer})
	assert.ErrorIs(t, err, model.ErrNotFound)
}
