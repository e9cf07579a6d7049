package memstore

import (
	"context"
	"sort"

	"gestoria.cloud/internal/model"
)

func (s *Store) GetCompanyAccess(_ context.Context, tenantID, userID, companyID string) (model.CompanyAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.access[accessKey{userID: userID, companyID: companyID}]
	if !ok || a.TenantID != tenantID {
		return model.CompanyAccess{}, model.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAllowedCompanyIDs(_ context.Context, tenantID, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k, a := range s.access {
		if k.userID == userID && a.TenantID == tenantID {
			out = append(out, k.companyID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// UpsertCompanyAccess enforces that the company belongs to the grant's tenant
// and that the user is grantable there.
func (s *Store) UpsertCompanyAccess(_ context.Context, a model.CompanyAccess) (model.CompanyAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[a.CompanyID]
	if !ok || c.TenantID != a.TenantID {
		return model.CompanyAccess{}, model.ErrNotFound
	}
	if !s.grantable(a.UserID, a.TenantID) {
		return model.CompanyAccess{}, model.ErrNotFound
	}
	key := accessKey{userID: a.UserID, companyID: a.CompanyID}
	if existing, ok := s.access[key]; ok {
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
	}
	a.UpdatedAt = s.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = a.UpdatedAt
	}
	s.access[key] = a
	return a, nil
}

func (s *Store) DeleteCompanyAccess(_ context.Context, tenantID, userID, companyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accessKey{userID: userID, companyID: companyID}
	a, ok := s.access[key]
	if !ok || a.TenantID != tenantID {
		return model.ErrNotFound
	}
	delete(s.access, key)
	return nil
}

func (s *Store) ListCompanyAccess(_ context.Context, tenantID, companyID string) ([]model.CompanyAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.CompanyAccess
	for k, a := range s.access {
		if k.companyID == companyID && a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
