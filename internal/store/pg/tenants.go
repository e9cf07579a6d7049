package pg

import (
	"context"

	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
)

const tenantColumns = `id, name, status, created_at, updated_at`

func scanTenant(row rowScanner) (model.Tenant, error) {
	var t model.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) GetTenant(ctx context.Context, id string) (model.Tenant, error) {
	if s.db == nil {
		return model.Tenant{}, errNoDB
	}
	t, err := scanTenant(s.db.QueryRowContext(ctx, `select `+tenantColumns+` from clients where id = $1`, id))
	if err != nil {
		return model.Tenant{}, mapErr(err)
	}
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+tenantColumns+` from clients order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	if s.db == nil {
		return model.Tenant{}, errNoDB
	}
	if t.ID == "" {
		t.ID = ids.NewEntityID()
	}
	if t.Status == "" {
		t.Status = model.TenantActive
	}
	saved, err := scanTenant(s.db.QueryRowContext(ctx, `
		insert into clients (id, name, status)
		values ($1, $2, $3)
		returning `+tenantColumns, t.ID, t.Name, t.Status))
	if err != nil {
		return model.Tenant{}, mapErr(err)
	}
	return saved, nil
}

func (s *Store) UpdateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	if s.db == nil {
		return model.Tenant{}, errNoDB
	}
	saved, err := scanTenant(s.db.QueryRowContext(ctx, `
		update clients set name = $2, status = $3, updated_at = now()
		where id = $1
		returning `+tenantColumns, t.ID, t.Name, t.Status))
	if err != nil {
		return model.Tenant{}, mapErr(err)
	}
	return saved, nil
}

func (s *Store) TenantUsage(ctx context.Context, tenantID string) (model.TenantUsage, error) {
	if s.db == nil {
		return model.TenantUsage{}, errNoDB
	}
	var u model.TenantUsage
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from companies where client_id = $1),
			(select count(*) from users where client_id = $1)
	`, tenantID).Scan(&u.CompanyCount, &u.UserCount)
	if err != nil {
		return model.TenantUsage{}, mapErr(err)
	}
	return u, nil
}
