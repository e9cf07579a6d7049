package casework

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/model"
)

// CompanyInput is the create payload.
type CompanyInput struct {
	Name  string
	TaxID string
}

// CompanyPatch holds the fields to change; nil means untouched.
type CompanyPatch struct {
	Name  *string
	TaxID *string
}

// ListCompanies returns the companies the caller holds a grant on.
func (s *Service) ListCompanies(ctx context.Context, rc *authz.RequestContext, filter model.CompanyFilter) ([]model.Company, int, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return nil, 0, err
	}
	if filter.Status != "" && filter.Status != model.CompanyActive && filter.Status != model.CompanyInactive {
		return nil, 0, apperr.BadRequest("invalid_status", "")
	}
	allowed, err := s.acl.AllowedCompanyIDs(ctx, rc, sc.actorID, sc.tenantID)
	if err != nil {
		return nil, 0, err
	}
	if len(allowed) == 0 {
		return []model.Company{}, 0, nil
	}
	return s.store.ListCompanies(ctx, sc.tenantID, keys(allowed), filter)
}

// CreateCompany stores the company and grants the creator admin access.
func (s *Service) CreateCompany(ctx context.Context, rc *authz.RequestContext, in CompanyInput) (model.Company, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.Company{}, err
	}
	name, err := required(in.Name, "name_required")
	if err != nil {
		return model.Company{}, err
	}
	taxID, err := required(in.TaxID, "tax_id_required")
	if err != nil {
		return model.Company{}, err
	}
	company, err := s.store.CreateCompanyWithOwner(ctx,
		model.Company{TenantID: sc.tenantID, Name: name, TaxID: strings.ToUpper(taxID), Status: model.CompanyActive},
		model.CompanyAccess{TenantID: sc.tenantID, UserID: sc.actorID, AccessLevel: model.AccessAdmin},
	)
	if errors.Is(err, model.ErrConflict) {
		return model.Company{}, apperr.Conflict("company_tax_id_conflict", "")
	}
	if err != nil {
		return model.Company{}, fmt.Errorf("create company: %w", err)
	}
	s.acl.Forget(rc, sc.actorID, sc.tenantID)
	s.record(ctx, sc, "company.create", "company", company.ID, map[string]string{"name": company.Name})
	return company, nil
}

func (s *Service) GetCompany(ctx context.Context, rc *authz.RequestContext, id string) (model.Company, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.Company{}, err
	}
	company, err := s.store.GetCompany(ctx, sc.tenantID, id)
	if err != nil {
		return model.Company{}, notFound(err, ErrCompanyNotFound, "get company")
	}
	return company, nil
}

func (s *Service) UpdateCompany(ctx context.Context, rc *authz.RequestContext, id string, patch CompanyPatch) (model.Company, error) {
	if patch.Name == nil && patch.TaxID == nil {
		return model.Company{}, ErrNoFieldsToUpdate
	}
	company, err := s.GetCompany(ctx, rc, id)
	if err != nil {
		return model.Company{}, err
	}
	if patch.Name != nil {
		if company.Name, err = required(*patch.Name, "name_required"); err != nil {
			return model.Company{}, err
		}
	}
	if patch.TaxID != nil {
		taxID, err := required(*patch.TaxID, "tax_id_required")
		if err != nil {
			return model.Company{}, err
		}
		company.TaxID = strings.ToUpper(taxID)
	}
	return s.saveCompany(ctx, rc, company, "company.update")
}

// SetCompanyStatus activates or deactivates a company.
func (s *Service) SetCompanyStatus(ctx context.Context, rc *authz.RequestContext, id string, status model.CompanyStatus) (model.Company, error) {
	if status != model.CompanyActive && status != model.CompanyInactive {
		return model.Company{}, apperr.BadRequest("invalid_status", "")
	}
	company, err := s.GetCompany(ctx, rc, id)
	if err != nil {
		return model.Company{}, err
	}
	company.Status = status
	action := "company.activate"
	if status == model.CompanyInactive {
		action = "company.deactivate"
	}
	return s.saveCompany(ctx, rc, company, action)
}

func (s *Service) saveCompany(ctx context.Context, rc *authz.RequestContext, company model.Company, action string) (model.Company, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.Company{}, err
	}
	saved, err := s.store.UpdateCompany(ctx, company)
	if errors.Is(err, model.ErrConflict) {
		return model.Company{}, apperr.Conflict("company_tax_id_conflict", "")
	}
	if err != nil {
		return model.Company{}, notFound(err, ErrCompanyNotFound, "update company")
	}
	s.record(ctx, sc, action, "company", saved.ID, map[string]string{"status": string(saved.Status)})
	return saved, nil
}
