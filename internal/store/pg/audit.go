package pg

import (
	"context"
	"encoding/json"

	"gestoria.cloud/internal/model"
)

// InsertAuditEntry appends one row to audit_logs. Entries are never updated.
func (s *Store) InsertAuditEntry(ctx context.Context, e model.AuditEntry) error {
	if s.db == nil {
		return errNoDB
	}
	if e.TenantID == "" {
		return model.ErrNotFound
	}
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_logs (id, client_id, user_id, action, entity_type, entity_id, metadata, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TenantID, nullIfEmpty(e.ActorUserID), e.Action, e.EntityType, e.EntityID, meta, e.CreatedAt)
	return mapErr(err)
}

// ListAuditEntries returns the tenant's entries newest first.
func (s *Store) ListAuditEntries(ctx context.Context, tenantID string, f model.AuditFilter) ([]model.AuditEntry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, client_id, coalesce(user_id::text, ''), action, entity_type, entity_id, metadata, created_at
		from audit_logs
		where client_id = $1
			and ($2 = '' or entity_type = $2)
			and ($3 = '' or entity_id = $3)
			and ($4 = '' or user_id::text = $4)
		order by created_at desc, id desc
		limit $5 offset $6`,
		tenantID, f.EntityType, f.EntityID, f.UserID, limitOrAll(f.Limit), f.Offset)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var (
			e    model.AuditEntry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorUserID, &e.Action, &e.EntityType, &e.EntityID, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
