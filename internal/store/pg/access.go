package pg

import (
	"context"
	"database/sql"

	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
)

const accessColumns = `id, client_id, user_id, company_id, access_level, created_at, updated_at`

// grantableUser matches $3 when it is a member of tenant $2 or a Super Admin.
const grantableUser = `exists (
			select 1 from users u
			where u.id = $3 and (u.client_id = $2 or exists (
				select 1 from user_roles ur
				join roles r on r.id = ur.role_id
				where ur.user_id = u.id and r.name = 'Super Admin'
					and r.scope = 'platform' and r.client_id is null)))`

func scanAccess(row rowScanner) (model.CompanyAccess, error) {
	var (
		a     model.CompanyAccess
		level string
	)
	if err := row.Scan(&a.ID, &a.TenantID, &a.UserID, &a.CompanyID, &level, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.CompanyAccess{}, err
	}
	lvl, err := model.ParseAccessLevel(level)
	if err != nil {
		return model.CompanyAccess{}, err
	}
	a.AccessLevel = lvl
	return a, nil
}

func collectAccess(rows *sql.Rows) ([]model.CompanyAccess, error) {
	defer rows.Close()
	var out []model.CompanyAccess
	for rows.Next() {
		a, err := scanAccess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetCompanyAccess(ctx context.Context, tenantID, userID, companyID string) (model.CompanyAccess, error) {
	if s.db == nil {
		return model.CompanyAccess{}, errNoDB
	}
	a, err := scanAccess(s.db.QueryRowContext(ctx, `
		select `+accessColumns+` from user_company_access
		where client_id = $1 and user_id = $2 and company_id = $3`, tenantID, userID, companyID))
	if err != nil {
		return model.CompanyAccess{}, mapErr(err)
	}
	return a, nil
}

func (s *Store) ListAllowedCompanyIDs(ctx context.Context, tenantID, userID string) ([]string, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select company_id from user_company_access
		where client_id = $1 and user_id = $2
		order by company_id`, tenantID, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectStrings(rows)
}

// UpsertCompanyAccess writes the (user, company) grant. The company must belong
// to the grant's tenant and the user must be grantable there.
func (s *Store) UpsertCompanyAccess(ctx context.Context, a model.CompanyAccess) (model.CompanyAccess, error) {
	if s.db == nil {
		return model.CompanyAccess{}, errNoDB
	}
	if a.ID == "" {
		a.ID = ids.NewEntityID()
	}
	saved, err := scanAccess(s.db.QueryRowContext(ctx, `
		insert into user_company_access (id, client_id, user_id, company_id, access_level)
		select $1, $2, $3, $4, $5
		where exists (select 1 from companies where id = $4 and client_id = $2)
			and `+grantableUser+`
		on conflict (user_id, company_id) do update
			set access_level = excluded.access_level, updated_at = now()
		returning `+accessColumns,
		a.ID, a.TenantID, a.UserID, a.CompanyID, a.AccessLevel.String()))
	if err != nil {
		return model.CompanyAccess{}, mapErr(err)
	}
	return saved, nil
}

func (s *Store) DeleteCompanyAccess(ctx context.Context, tenantID, userID, companyID string) error {
	if s.db == nil {
		return errNoDB
	}
	return execOne(ctx, s.db, `
		delete from user_company_access
		where client_id = $1 and user_id = $2 and company_id = $3`, tenantID, userID, companyID)
}

func (s *Store) ListCompanyAccess(ctx context.Context, tenantID, companyID string) ([]model.CompanyAccess, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+accessColumns+` from user_company_access
		where client_id = $1 and company_id = $2
		order by created_at`, tenantID, companyID)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectAccess(rows)
}
