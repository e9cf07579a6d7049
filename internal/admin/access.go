package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/model"
)

// ErrAccessNotFound is returned when a grant to patch or delete is missing.
var ErrAccessNotFound = apperr.NotFound("access_not_found", "")

// ListAccess returns every grant on the company.
func (a *TenantAdmin) ListAccess(ctx context.Context, rc *authz.RequestContext, companyID string) ([]model.CompanyAccess, error) {
	tenantID, err := a.companyScope(ctx, rc, companyID)
	if err != nil {
		return nil, err
	}
	out, err := a.store.ListCompanyAccess(ctx, tenantID, companyID)
	if err != nil {
		return nil, fmt.Errorf("list company access: %w", err)
	}
	if out == nil {
		out = []model.CompanyAccess{}
	}
	return out, nil
}

// UpsertAccess creates or replaces the user's grant on the company.
func (a *TenantAdmin) UpsertAccess(ctx context.Context, rc *authz.RequestContext, companyID, userID, level string) (model.CompanyAccess, error) {
	return a.writeAccess(ctx, rc, companyID, userID, level, false)
}

// PatchAccess changes the level of an existing grant.
func (a *TenantAdmin) PatchAccess(ctx context.Context, rc *authz.RequestContext, companyID, userID, level string) (model.CompanyAccess, error) {
	return a.writeAccess(ctx, rc, companyID, userID, level, true)
}

func (a *TenantAdmin) writeAccess(ctx context.Context, rc *authz.RequestContext, companyID, userID, level string, mustExist bool) (model.CompanyAccess, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(level) == "" {
		return model.CompanyAccess{}, apperr.BadRequest("invalid_payload", "")
	}
	lvl, err := model.ParseAccessLevel(strings.TrimSpace(level))
	if err != nil {
		return model.CompanyAccess{}, apperr.BadRequest("invalid_access_level", "")
	}
	tenantID, err := a.companyScope(ctx, rc, companyID)
	if err != nil {
		return model.CompanyAccess{}, err
	}
	if err := a.grantee(ctx, rc, tenantID, userID); err != nil {
		return model.CompanyAccess{}, err
	}
	existing, err := a.store.GetCompanyAccess(ctx, tenantID, userID, companyID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		if mustExist {
			return model.CompanyAccess{}, ErrAccessNotFound
		}
		existing = model.CompanyAccess{TenantID: tenantID, UserID: userID, CompanyID: companyID}
	case err != nil:
		return model.CompanyAccess{}, fmt.Errorf("lookup company access: %w", err)
	}
	previous := existing.AccessLevel
	existing.AccessLevel = lvl
	saved, err := a.acl.Grant(ctx, rc, existing)
	if err != nil {
		return model.CompanyAccess{}, err
	}
	meta := map[string]string{"user_id": userID, "access_level": lvl.String()}
	if previous.Valid() {
		meta["previous_access_level"] = previous.String()
	}
	a.record(ctx, rc, tenantID, "company_access.upsert", "company", companyID, meta)
	return saved, nil
}

// DeleteAccess removes the user's grant on the company.
func (a *TenantAdmin) DeleteAccess(ctx context.Context, rc *authz.RequestContext, companyID, userID string) error {
	tenantID, err := a.companyScope(ctx, rc, companyID)
	if err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	err = a.store.DeleteCompanyAccess(ctx, tenantID, userID, companyID)
	if errors.Is(err, model.ErrNotFound) {
		return ErrAccessNotFound
	}
	if err != nil {
		return fmt.Errorf("delete company access: %w", err)
	}
	a.acl.Forget(rc, userID, tenantID)
	a.record(ctx, rc, tenantID, "company_access.delete", "company", companyID, map[string]string{"user_id": userID})
	return nil
}

// grantee accepts members of the tenant and Super Admins, who act on any
// tenant through the override.
func (a *TenantAdmin) grantee(ctx context.Context, rc *authz.RequestContext, tenantID, userID string) error {
	_, err := a.tenantUser(ctx, tenantID, userID)
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	super, serr := a.rbac.IsSuperAdmin(ctx, rc, userID)
	if serr != nil {
		return fmt.Errorf("check super admin: %w", serr)
	}
	if !super {
		return err
	}
	return nil
}

func (a *TenantAdmin) companyScope(ctx context.Context, rc *authz.RequestContext, companyID string) (string, error) {
	tenantID, err := rc.RequireTenant()
	if err != nil {
		return "", err
	}
	if _, err := a.store.GetCompany(ctx, tenantID, strings.TrimSpace(companyID)); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", apperr.NotFound("company_not_found", "Company not found.")
		}
		return "", fmt.Errorf("lookup company: %w", err)
	}
	return tenantID, nil
}
