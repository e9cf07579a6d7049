package memstore

import (
	"context"
	"sort"
	"strings"

	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
)

// Companies

// CreateCompanyWithOwner inserts the company and the creator's admin grant
// in one step.
func (s *Store) CreateCompanyWithOwner(_ context.Context, c model.Company, owner model.CompanyAccess) (model.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[c.TenantID]; !ok {
		return model.Company{}, model.ErrNotFound
	}
	for _, existing := range s.companies {
		if existing.TenantID == c.TenantID && c.TaxID != "" && strings.EqualFold(existing.TaxID, c.TaxID) {
			return model.Company{}, model.ErrConflict
		}
	}
	if !s.grantable(owner.UserID, c.TenantID) {
		return model.Company{}, model.ErrNotFound
	}
	if c.ID == "" {
		c.ID = ids.NewEntityID()
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.companies[c.ID] = c

	if owner.ID == "" {
		owner.ID = ids.NewEntityID()
	}
	owner.TenantID = c.TenantID
	owner.CompanyID = c.ID
	owner.CreatedAt, owner.UpdatedAt = now, now
	s.access[accessKey{userID: owner.UserID, companyID: c.ID}] = owner
	return c, nil
}

func (s *Store) GetCompany(_ context.Context, tenantID, id string) (model.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok || c.TenantID != tenantID {
		return model.Company{}, model.ErrNotFound
	}
	return c, nil
}

func (s *Store) UpdateCompany(_ context.Context, c model.Company) (model.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.companies[c.ID]
	if !ok || current.TenantID != c.TenantID {
		return model.Company{}, model.ErrNotFound
	}
	for id, existing := range s.companies {
		if id != c.ID && existing.TenantID == c.TenantID && c.TaxID != "" && strings.EqualFold(existing.TaxID, c.TaxID) {
			return model.Company{}, model.ErrConflict
		}
	}
	c.CreatedAt = current.CreatedAt
	c.UpdatedAt = s.now()
	s.companies[c.ID] = c
	return c, nil
}

// ListCompanies returns companies of the tenant whose id is in allowed.
func (s *Store) ListCompanies(_ context.Context, tenantID string, allowed []string, f model.CompanyFilter) ([]model.Company, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(f.Query))
	var all []model.Company
	for _, id := range allowed {
		c, ok := s.companies[id]
		if !ok || c.TenantID != tenantID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(c.Name), q) && !strings.Contains(strings.ToLower(c.TaxID), q) {
			continue
		}
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return page(all, f.Limit, f.Offset), len(all), nil
}

// Employees

func (s *Store) CreateEmployee(_ context.Context, e model.Employee) (model.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[e.CompanyID]
	if !ok || c.TenantID != e.TenantID {
		return model.Employee{}, model.ErrNotFound
	}
	if e.ID == "" {
		e.ID = ids.NewEntityID()
	}
	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now
	s.employees[e.ID] = e
	return e, nil
}

func (s *Store) GetEmployee(_ context.Context, tenantID, companyID, id string) (model.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[id]
	if !ok || e.TenantID != tenantID || e.CompanyID != companyID {
		return model.Employee{}, model.ErrNotFound
	}
	return e, nil
}

func (s *Store) UpdateEmployee(_ context.Context, e model.Employee) (model.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.employees[e.ID]
	if !ok || current.TenantID != e.TenantID || current.CompanyID != e.CompanyID {
		return model.Employee{}, model.ErrNotFound
	}
	e.CreatedAt = current.CreatedAt
	e.UpdatedAt = s.now()
	s.employees[e.ID] = e
	return e, nil
}

func (s *Store) ListEmployees(_ context.Context, tenantID, companyID string, status model.EmployeeStatus) ([]model.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Employee
	for _, e := range s.employees {
		if e.TenantID != tenantID || e.CompanyID != companyID {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

// Cases

// CreateCase stores the case together with its first event.
func (s *Store) CreateCase(_ context.Context, c model.Case, first model.CaseEvent) (model.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	co, ok := s.companies[c.CompanyID]
	if !ok || co.TenantID != c.TenantID {
		return model.Case{}, model.ErrNotFound
	}
	if c.ID == "" {
		c.ID = ids.NewEntityID()
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.cases[c.ID] = c
	s.appendEventLocked(c, first)
	return c, nil
}

func (s *Store) GetCase(_ context.Context, tenantID, companyID, id string) (model.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok || c.TenantID != tenantID || c.CompanyID != companyID {
		return model.Case{}, model.ErrNotFound
	}
	return c, nil
}

// UpdateCase saves c and, when ev is non-nil, appends it atomically.
func (s *Store) UpdateCase(_ context.Context, c model.Case, ev *model.CaseEvent) (model.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.cases[c.ID]
	if !ok || current.TenantID != c.TenantID || current.CompanyID != c.CompanyID {
		return model.Case{}, model.ErrNotFound
	}
	c.CreatedAt = current.CreatedAt
	c.UpdatedAt = s.now()
	s.cases[c.ID] = c
	if ev != nil {
		s.appendEventLocked(c, *ev)
	}
	return c, nil
}

func (s *Store) ListCases(_ context.Context, tenantID, companyID string, f model.CaseFilter) ([]model.Case, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(f.Query))
	var all []model.Case
	for _, c := range s.cases {
		if c.TenantID != tenantID || c.CompanyID != companyID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(c.Title), q) {
			continue
		}
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, f.Limit, f.Offset), len(all), nil
}

func (s *Store) AppendCaseEvent(_ context.Context, ev model.CaseEvent) (model.CaseEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[ev.CaseID]
	if !ok || c.TenantID != ev.TenantID || c.CompanyID != ev.CompanyID {
		return model.CaseEvent{}, model.ErrNotFound
	}
	return s.appendEventLocked(c, ev), nil
}

func (s *Store) ListCaseEvents(_ context.Context, tenantID, companyID, caseID string) ([]model.CaseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.CaseEvent
	for _, ev := range s.events {
		if ev.TenantID == tenantID && ev.CompanyID == companyID && ev.CaseID == caseID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *Store) appendEventLocked(c model.Case, ev model.CaseEvent) model.CaseEvent {
	if ev.ID == "" {
		ev.ID = ids.NewEntityID()
	}
	ev.TenantID = c.TenantID
	ev.CompanyID = c.CompanyID
	ev.CaseID = c.ID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	s.events = append(s.events, ev)
	return ev
}
