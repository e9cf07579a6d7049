package memstore

import (
	"context"
	"sort"

	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
)

// CreateDocument stores the document and appends ev to its case.
func (s *Store) CreateDocument(_ context.Context, d model.Document, ev model.CaseEvent) (model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[d.CaseID]
	if !ok || c.TenantID != d.TenantID || c.CompanyID != d.CompanyID {
		return model.Document{}, model.ErrNotFound
	}
	if d.ID == "" {
		d.ID = ids.NewEntityID()
	}
	now := s.now()
	d.CreatedAt, d.UpdatedAt = now, now
	s.documents[d.ID] = d
	s.appendEventLocked(c, ev)
	return d, nil
}

func (s *Store) GetDocument(_ context.Context, tenantID, id string) (model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok || d.TenantID != tenantID {
		return model.Document{}, model.ErrNotFound
	}
	return d, nil
}

func (s *Store) ListCaseDocuments(_ context.Context, tenantID, companyID, caseID string) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Document
	for _, d := range s.documents {
		if d.TenantID == tenantID && d.CompanyID == companyID && d.CaseID == caseID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CreateExtraction appends x. The document must exist in the same tenant.
func (s *Store) CreateExtraction(_ context.Context, x model.DocumentExtraction) (model.DocumentExtraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[x.DocumentID]
	if !ok || d.TenantID != x.TenantID {
		return model.DocumentExtraction{}, model.ErrNotFound
	}
	if x.ID == "" {
		x.ID = ids.NewEntityID()
	}
	x.CompanyID = d.CompanyID
	x.CaseID = d.CaseID
	if x.CreatedAt.IsZero() {
		x.CreatedAt = s.now()
	}
	s.extractions = append(s.extractions, x)
	return x, nil
}

// ListExtractions returns the document's extractions newest first.
func (s *Store) ListExtractions(_ context.Context, tenantID, documentID string, limit, offset int) ([]model.DocumentExtraction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.DocumentExtraction
	for i := len(s.extractions) - 1; i >= 0; i-- {
		x := s.extractions[i]
		if x.TenantID == tenantID && x.DocumentID == documentID {
			out = append(out, x)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (s *Store) LatestExtraction(ctx context.Context, tenantID, documentID string) (model.DocumentExtraction, error) {
	out, err := s.ListExtractions(ctx, tenantID, documentID, 1, 0)
	if err != nil {
		return model.DocumentExtraction{}, err
	}
	if len(out) == 0 {
		return model.DocumentExtraction{}, model.ErrNotFound
	}
	return out[0], nil
}
