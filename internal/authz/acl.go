package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
)

// ACL enforces per-company access levels. It is independent of RBAC.
type ACL struct {
	store AccessStore
	now   func() time.Time
}

// NewACL constructs the company ACL service.
func NewACL(store AccessStore) (*ACL, error) {
	if store == nil {
		return nil, errors.New("authz: access store is required")
	}
	return &ACL{store: store, now: func() time.Time { return time.Now().UTC() }}, nil
}

// RequireAccess succeeds when the user's grant on the company is at least
// want. A missing grant yields ErrAccessNotFound so that callers render it
// like a missing resource.
func (s *ACL) RequireAccess(ctx context.Context, userID, companyID, tenantID string, want model.AccessLevel) (model.CompanyAccess, error) {
	if !want.Valid() {
		return model.CompanyAccess{}, apperr.BadRequest("invalid_access_level", "")
	}
	if userID == "" || companyID == "" || tenantID == "" {
		return model.CompanyAccess{}, apperr.ErrAccessNotFound
	}
	access, err := s.store.GetCompanyAccess(ctx, tenantID, userID, companyID)
	if errors.Is(err, model.ErrNotFound) {
		return model.CompanyAccess{}, apperr.ErrAccessNotFound
	}
	if err != nil {
		return model.CompanyAccess{}, fmt.Errorf("company access lookup: %w", err)
	}
	if access.TenantID != tenantID {
		return model.CompanyAccess{}, apperr.ErrAccessNotFound
	}
	if !access.AccessLevel.Satisfies(want) {
		return model.CompanyAccess{}, apperr.ErrInsufficientAccess
	}
	return access, nil
}

// AllowedCompanyIDs returns every company the user holds any grant on.
func (s *ACL) AllowedCompanyIDs(ctx context.Context, rc *RequestContext, userID, tenantID string) (map[string]struct{}, error) {
	key := scopedKey{userID: userID, tenantID: tenantID}
	cache := rc.decisions()
	if v, ok := cache.companiesFor(key); ok {
		return v, nil
	}
	out := make(map[string]struct{})
	if userID == "" || tenantID == "" {
		return out, nil
	}
	companyIDs, err := s.store.ListAllowedCompanyIDs(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("allowed companies: %w", err)
	}
	for _, id := range companyIDs {
		out[id] = struct{}{}
	}
	cache.setCompanies(key, out)
	return out, nil
}

// Grant upserts a grant and drops the cached allowed set for that user.
func (s *ACL) Grant(ctx context.Context, rc *RequestContext, access model.CompanyAccess) (model.CompanyAccess, error) {
	access.TenantID = strings.TrimSpace(access.TenantID)
	access.UserID = strings.TrimSpace(access.UserID)
	access.CompanyID = strings.TrimSpace(access.CompanyID)
	if access.TenantID == "" || access.UserID == "" || access.CompanyID == "" {
		return model.CompanyAccess{}, apperr.BadRequest("invalid_access", "tenant, user and company are required")
	}
	if !access.AccessLevel.Valid() {
		return model.CompanyAccess{}, apperr.BadRequest("invalid_access_level", "")
	}
	if access.ID == "" {
		access.ID = ids.NewEntityID()
	}
	now := s.now()
	if access.CreatedAt.IsZero() {
		access.CreatedAt = now
	}
	access.UpdatedAt = now
	saved, err := s.store.UpsertCompanyAccess(ctx, access)
	if err != nil {
		return model.CompanyAccess{}, fmt.Errorf("grant company access: %w", err)
	}
	rc.decisions().dropCompanies(scopedKey{userID: access.UserID, tenantID: access.TenantID})
	return saved, nil
}

// Forget drops the cached allowed set after a grant was removed elsewhere.
func (s *ACL) Forget(rc *RequestContext, userID, tenantID string) {
	rc.decisions().dropCompanies(scopedKey{userID: userID, tenantID: tenantID})
}
