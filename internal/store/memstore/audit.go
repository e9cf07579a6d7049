package memstore

import (
	"context"

	"gestoria.cloud/internal/model"
)

func (s *Store) InsertAuditEntry(_ context.Context, entry model.AuditEntry) error {
	if entry.TenantID == "" {
		return model.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

// ListAuditEntries returns the tenant's entries newest first.
func (s *Store) ListAuditEntries(_ context.Context, tenantID string, f model.AuditFilter) ([]model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []model.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if e.TenantID != tenantID {
			continue
		}
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		if f.UserID != "" && e.ActorUserID != f.UserID {
			continue
		}
		all = append(all, e)
	}
	return page(all, f.Limit, f.Offset), nil
}
