package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/model"
)

func TestRequireAccessIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	levels := []model.AccessLevel{model.AccessViewer, model.AccessOperator, model.AccessManager, model.AccessAdmin}

	for _, held := range levels {
		f.grant(t, f.operA, held)
		for _, want := range levels {
			_, err := f.acl.RequireAccess(ctx, f.operA.ID, f.company.ID, f.tenantA.ID, want)
			if held.Rank() >= want.Rank() {
				assert.NoError(t, err, "held %s want %s", held, want)
			} else {
				assert.ErrorIs(t, err, apperr.ErrInsufficientAccess, "held %s want %s", held, want)
			}
		}
	}
}

func TestRequireAccessMissingRowLooksLikeMissingResource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.acl.RequireAccess(ctx, f.advisorA.ID, f.company.ID, f.tenantA.ID, model.AccessViewer)
	assert.ErrorIs(t, err, apperr.ErrAccessNotFound)
	assert.Equal(t, 404, apperr.From(err).Status())

	_, err = f.acl.RequireAccess(ctx, f.adminA.ID, f.company.ID, f.tenantB.ID, model.AccessViewer)
	assert.ErrorIs(t, err, apperr.ErrAccessNotFound)

	_, err = f.acl.RequireAccess(ctx, f.adminA.ID, f.company.ID, f.tenantA.ID, model.AccessLevel(9))
	assert.Equal(t, "invalid_access_level", apperr.From(err).Code)
}

func TestGrantRefreshesAllowedCompanies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rc := NewRequestContext().WithIdentity(f.advisorA)

	allowed, err := f.acl.AllowedCompanyIDs(ctx, rc, f.advisorA.ID, f.tenantA.ID)
	require.NoError(t, err)
	assert.Empty(t, allowed)

	_, err = f.acl.Grant(ctx, rc, model.CompanyAccess{
		TenantID: f.tenantA.ID, UserID: f.advisorA.ID, CompanyID: f.company.ID, AccessLevel: model.AccessOperator,
	})
	require.NoError(t, err)

	allowed, err = f.acl.AllowedCompanyIDs(ctx, rc, f.advisorA.ID, f.tenantA.ID)
	require.NoError(t, err)
	assert.Contains(t, allowed, f.company.ID)
}

func TestGrantValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.acl.Grant(ctx, nil, model.CompanyAccess{TenantID: f.tenantA.ID, UserID: f.operA.ID, CompanyID: f.company.ID})
	assert.Equal(t, "invalid_access_level", apperr.From(err).Code)

	_, err = f.acl.Grant(ctx, nil, model.CompanyAccess{TenantID: f.tenantA.ID, CompanyID: f.company.ID, AccessLevel: model.AccessViewer})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	_, err = f.acl.Grant(ctx, nil, model.CompanyAccess{TenantID: f.tenantA.ID, UserID: f.adminB.ID, CompanyID: f.company.ID, AccessLevel: model.AccessViewer})
	assert.ErrorIs(t, err, model.ErrNotFound)
}
