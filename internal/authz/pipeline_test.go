package authz

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/auth"
	"gestoria.cloud/internal/model"
)

func TestAuthenticateFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	need := Requirement{Tenant: true}

	_, err := f.pipeline.Authorize(ctx, nil, Request{}, need)
	assert.ErrorIs(t, err, apperr.ErrMissingToken)

	_, err = f.pipeline.Authorize(ctx, nil, Request{Authorization: "Basic abc"}, need)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	_, err = f.pipeline.Authorize(ctx, nil, Request{Authorization: "Bearer garbage"}, need)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	past := time.Now().Add(-2 * time.Hour)
	old, err := auth.NewTokenService([]byte("test-secret"), auth.WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	token, _, err := old.Issue(f.adminA.ID, f.tenantA.ID)
	require.NoError(t, err)
	_, err = f.pipeline.Authorize(ctx, nil, Request{Authorization: "Bearer " + token}, need)
	assert.ErrorIs(t, err, apperr.ErrTokenExpired)

	ghost, _, err := f.tokens.Issue(uuid.NewString(), f.tenantA.ID)
	require.NoError(t, err)
	_, err = f.pipeline.Authorize(ctx, nil, Request{Authorization: "Bearer " + ghost}, need)
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestAuthenticateRejectsDisabledUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	header := f.bearer(t, f.operA)

	disabled := f.operA
	disabled.Status = model.UserDisabled
	_, err := f.store.UpdateUser(ctx, disabled)
	require.NoError(t, err)

	_, err = f.pipeline.Authorize(ctx, nil, Request{Authorization: header}, Requirement{Tenant: true})
	assert.ErrorIs(t, err, apperr.ErrUserInactive)
}

func TestPermissionIsCheckedBeforeCompanyAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Authorize(ctx, nil, Request{Authorization: f.bearer(t, f.operA), CompanyID: f.company.ID}, Requirement{
		Tenant: true, AnyOf: []string{PermCompanyWrite}, CompanyLevel: model.AccessManager,
	})
	assert.ErrorIs(t, err, apperr.ErrMissingPermission)
}

func TestCompanyAccessOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	need := Requirement{Tenant: true, AnyOf: []string{PermCaseWrite}, CompanyLevel: model.AccessOperator}

	_, err := f.pipeline.Authorize(ctx, nil, Request{Authorization: f.bearer(t, f.advisorA), CompanyID: f.company.ID}, need)
	assert.ErrorIs(t, err, apperr.ErrAccessNotFound)

	f.grant(t, f.advisorA, model.AccessViewer)
	_, err = f.pipeline.Authorize(ctx, nil, Request{Authorization: f.bearer(t, f.advisorA), CompanyID: f.company.ID}, need)
	assert.ErrorIs(t, err, apperr.ErrInsufficientAccess)

	f.grant(t, f.advisorA, model.AccessOperator)
	rc, err := f.pipeline.Authorize(ctx, nil, Request{Authorization: f.bearer(t, f.advisorA), CompanyID: f.company.ID}, need)
	require.NoError(t, err)
	assert.Equal(t, f.tenantA.ID, rc.TenantID())
	assert.Equal(t, ModeTenant, rc.Mode())

	_, err = f.pipeline.Authorize(ctx, nil, Request{Authorization: f.bearer(t, f.advisorA)}, need)
	assert.Equal(t, "company_id_required", apperr.From(err).Code)
}

func TestCrossTenantCompanyIsHidden(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Authorize(context.Background(), nil, Request{Authorization: f.bearer(t, f.adminB), CompanyID: f.company.ID}, Requirement{
		Tenant: true, AnyOf: []string{PermCompanyRead}, CompanyLevel: model.AccessViewer,
	})
	assert.ErrorIs(t, err, apperr.ErrAccessNotFound)
}

func TestSuperAdminTenantScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	header := f.bearer(t, f.super)
	need := Requirement{Tenant: true, AnyOf: []string{PermTenantUserRead}}

	_, err := f.pipeline.Authorize(ctx, nil, Request{Authorization: header}, need)
	assert.ErrorIs(t, err, apperr.ErrTenantContextRequired)

	_, err = f.pipeline.Authorize(ctx, nil, Request{Authorization: header, Directive: TenantDirective{AdminTenant: uuid.NewString()}}, need)
	assert.ErrorIs(t, err, apperr.ErrTenantNotFound)

	rc, err := f.pipeline.Authorize(ctx, nil, Request{Authorization: header, Directive: TenantDirective{AdminTenant: f.tenantB.ID}}, need)
	require.NoError(t, err)
	assert.Equal(t, f.tenantB.ID, rc.TenantID())
}

func TestPlatformAdminRequirement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	need := Requirement{PlatformAdmin: true}

	rc, err := f.pipeline.Authorize(ctx, nil, Request{Authorization: f.bearer(t, f.super)}, need)
	require.NoError(t, err)
	assert.Equal(t, ModePlatformNoContext, rc.Mode())

	_, err = f.pipeline.Authorize(ctx, nil, Request{Authorization: f.bearer(t, f.adminA)}, need)
	assert.ErrorIs(t, err, apperr.ErrMissingPermission)
}

func TestAnonymousRequirement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rc, err := f.pipeline.Authorize(ctx, nil, Request{}, Requirement{Anonymous: true})
	require.NoError(t, err)
	assert.False(t, rc.Authenticated())

	rc, err = f.pipeline.Authorize(ctx, nil, Request{Authorization: f.bearer(t, f.adminA)}, Requirement{Anonymous: true})
	require.NoError(t, err)
	assert.Equal(t, f.adminA.ID, rc.UserID())

	_, err = f.pipeline.Authorize(ctx, nil, Request{Authorization: "Bearer nope"}, Requirement{Anonymous: true})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	cases := map[string]error{
		"":             apperr.ErrMissingToken,
		"Bearer ":      apperr.ErrMissingToken,
		"Token abc":    apperr.ErrInvalidToken,
		"bearer abc":   nil,
		"BEARER  abc ": nil,
	}
	for header, want := range cases {
		token, err := BearerToken(header)
		if want != nil {
			assert.ErrorIs(t, err, want, header)
			continue
		}
		require.NoError(t, err, header)
		assert.Equal(t, "abc", token)
	}
}
