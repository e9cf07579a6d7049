package authz

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/model"
)

func TestSuperAdminWithoutOverrideHasNoTenant(t *testing.T) {
	f := newFixture(t)
	rc, err := f.resolver.Resolve(context.Background(), NewRequestContext().WithIdentity(f.super), TenantDirective{})
	require.NoError(t, err)
	assert.Equal(t, ModePlatformNoContext, rc.Mode())
	assert.Empty(t, rc.TenantID())
	_, err = rc.RequireTenant()
	assert.ErrorIs(t, err, apperr.ErrTenantContextRequired)
}

func TestSuperAdminOverrideIsAuditedAgainstTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc, err := f.resolver.Resolve(ctx, NewRequestContext().WithIdentity(f.super), TenantDirective{
		AdminTenant: " " + f.tenantB.ID + " ", Path: "/admin/users", Method: "GET",
	})
	require.NoError(t, err)
	assert.Equal(t, ModePlatform, rc.Mode())
	assert.Equal(t, f.tenantB.ID, rc.TenantID())

	entries, err := f.store.ListAuditEntries(ctx, f.tenantB.ID, model.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "platform.tenant_override", entries[0].Action)
	assert.Equal(t, f.super.ID, entries[0].ActorUserID)
	assert.Equal(t, "/admin/users", entries[0].Metadata["path"])
	assert.Equal(t, "GET", entries[0].Metadata["method"])
}

func TestSuperAdminOverrideErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := NewRequestContext().WithIdentity(f.super)

	_, err := f.resolver.Resolve(ctx, rc, TenantDirective{AdminTenant: "not-a-uuid"})
	assert.ErrorIs(t, err, apperr.ErrInvalidClientID)

	_, err = f.resolver.Resolve(ctx, rc, TenantDirective{AdminTenant: uuid.NewString()})
	assert.ErrorIs(t, err, apperr.ErrTenantNotFound)
}

func TestRegularUserIgnoresOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc, err := f.resolver.Resolve(ctx, NewRequestContext().WithIdentity(f.adminA), TenantDirective{AdminTenant: f.tenantB.ID})
	require.NoError(t, err)
	assert.Equal(t, ModeTenant, rc.Mode())
	assert.Equal(t, f.tenantA.ID, rc.TenantID())

	entries, err := f.store.ListAuditEntries(ctx, f.tenantB.ID, model.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAnonymousClientIDHeader(t *testing.T) {
	ctx := context.Background()

	off := newFixture(t)
	rc, err := off.resolver.Resolve(ctx, NewRequestContext(), TenantDirective{ClientID: off.tenantA.ID})
	require.NoError(t, err)
	assert.Equal(t, ModeNone, rc.Mode())
	assert.Empty(t, rc.TenantID())

	on := newFixture(t, WithClientIDHeader(true))
	rc, err = on.resolver.Resolve(ctx, NewRequestContext(), TenantDirective{ClientID: on.tenantA.ID})
	require.NoError(t, err)
	assert.Equal(t, ModeHeader, rc.Mode())
	assert.Equal(t, on.tenantA.ID, rc.TenantID())

	_, err = on.resolver.Resolve(ctx, NewRequestContext(), TenantDirective{ClientID: "bad"})
	assert.ErrorIs(t, err, apperr.ErrInvalidClientID)
}
