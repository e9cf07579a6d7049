package pg

import (
	"context"
	"database/sql"
	"strings"

	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
)

const roleSelect = `
	select r.id, r.name, r.scope, r.client_id,
		coalesce(string_agg(p.code, ',' order by p.code), '')
	from roles r
	left join role_permissions rp on rp.role_id = r.id
	left join permissions p on p.id = rp.permission_id
`

func scanRole(row rowScanner) (model.Role, error) {
	var (
		r        model.Role
		tenantID sql.NullString
		codes    string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Scope, &tenantID, &codes); err != nil {
		return model.Role{}, err
	}
	r.TenantID = tenantID.String
	if codes != "" {
		r.Permissions = strings.Split(codes, ",")
	}
	return r, nil
}

func collectRoles(rows *sql.Rows) ([]model.Role, error) {
	defer rows.Close()
	var out []model.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) UserHasPlatformRole(ctx context.Context, userID, roleName string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from user_roles ur
			join roles r on r.id = ur.role_id
			where ur.user_id = $1 and r.name = $2
				and r.scope = 'platform' and r.client_id is null
		)`, userID, roleName).Scan(&ok)
	if err != nil {
		return false, mapErr(err)
	}
	return ok, nil
}

func (s *Store) ListPermissionCodes(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select code from permissions order by code`)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectStrings(rows)
}

// ListUserPermissionCodes follows user_roles to permissions, keeping platform
// roles and the tenant roles of tenantID only.
func (s *Store) ListUserPermissionCodes(ctx context.Context, userID, tenantID string) ([]string, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.code
		from user_roles ur
		join roles r on r.id = ur.role_id
		join role_permissions rp on rp.role_id = r.id
		join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
			and (r.scope = 'platform' or (r.scope = 'tenant' and r.client_id = $2))
		order by p.code`, userID, nullIfEmpty(tenantID))
	if err != nil {
		return nil, mapErr(err)
	}
	return collectStrings(rows)
}

func (s *Store) UpsertPermission(ctx context.Context, code, description string) (model.Permission, error) {
	if s.db == nil {
		return model.Permission{}, errNoDB
	}
	var p model.Permission
	err := s.db.QueryRowContext(ctx, `
		insert into permissions (id, code, description)
		values ($1, $2, $3)
		on conflict (code) do update set description = excluded.description
		returning id, code, description`, ids.NewEntityID(), code, description).
		Scan(&p.ID, &p.Code, &p.Description)
	if err != nil {
		return model.Permission{}, mapErr(err)
	}
	return p, nil
}

// EnsureRole returns the role identified by (name, scope, tenant), creating it
// when missing.
func (s *Store) EnsureRole(ctx context.Context, role model.Role) (model.Role, error) {
	if err := role.Validate(); err != nil {
		return model.Role{}, err
	}
	if s.db == nil {
		return model.Role{}, errNoDB
	}
	tenant := nullIfEmpty(role.TenantID)
	if _, err := s.db.ExecContext(ctx, `
		insert into roles (id, name, scope, client_id)
		values ($1, $2, $3, $4)
		on conflict do nothing`, ids.NewEntityID(), role.Name, role.Scope, tenant); err != nil {
		return model.Role{}, mapErr(err)
	}
	r, err := scanRole(s.db.QueryRowContext(ctx, roleSelect+`
		where r.name = $1 and r.scope = $2 and r.client_id is not distinct from $3
		group by r.id`, role.Name, role.Scope, tenant))
	if err != nil {
		return model.Role{}, mapErr(err)
	}
	return r, nil
}

// SetRolePermissions replaces the role's permission set. Unknown codes abort
// the whole replacement.
func (s *Store) SetRolePermissions(ctx context.Context, roleID string, codes []string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `select exists (select 1 from roles where id = $1)`, roleID).Scan(&exists); err != nil {
		return mapErr(err)
	}
	if !exists {
		return model.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, code := range codes {
		if err := execOne(ctx, tx, `
			insert into role_permissions (role_id, permission_id)
			select $1, id from permissions where code = $2
			on conflict do nothing`, roleID, code); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetRole(ctx context.Context, id string) (model.Role, error) {
	if s.db == nil {
		return model.Role{}, errNoDB
	}
	r, err := scanRole(s.db.QueryRowContext(ctx, roleSelect+`where r.id = $1 group by r.id`, id))
	if err != nil {
		return model.Role{}, mapErr(err)
	}
	return r, nil
}

// FindRoleByName prefers the tenant's own role over a platform role of the
// same name.
func (s *Store) FindRoleByName(ctx context.Context, name, tenantID string) (model.Role, error) {
	if s.db == nil {
		return model.Role{}, errNoDB
	}
	r, err := scanRole(s.db.QueryRowContext(ctx, roleSelect+`
		where r.name = $1
			and ((r.scope = 'tenant' and r.client_id = $2) or (r.scope = 'platform' and r.client_id is null))
		group by r.id
		order by r.scope desc
		limit 1`, name, nullIfEmpty(tenantID)))
	if err != nil {
		return model.Role{}, mapErr(err)
	}
	return r, nil
}

func (s *Store) ListRoles(ctx context.Context, tenantID string) ([]model.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, roleSelect+`
		where r.scope = 'platform' or r.client_id = $1
		group by r.id
		order by r.scope, r.name`, nullIfEmpty(tenantID))
	if err != nil {
		return nil, mapErr(err)
	}
	return collectRoles(rows)
}

func (s *Store) ListUserRoles(ctx context.Context, userID string) ([]model.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, roleSelect+`
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1
		group by r.id
		order by r.scope, r.name`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	return collectRoles(rows)
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID string) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id) values ($1, $2)
		on conflict do nothing`, userID, roleID)
	return mapErr(err)
}

// ReplaceUserRoles swaps the user's role set atomically.
func (s *Store) ReplaceUserRoles(ctx context.Context, userID string, roleIDs []string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `select exists (select 1 from users where id = $1)`, userID).Scan(&exists); err != nil {
		return mapErr(err)
	}
	if !exists {
		return model.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, userID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id) values ($1, $2)
			on conflict do nothing`, userID, roleID); err != nil {
			return mapErr(err)
		}
	}
	return tx.Commit()
}

// CountRBAC reports the catalog and role table sizes.
func (s *Store) CountRBAC(ctx context.Context) (permissions, roles int, err error) {
	if s.db == nil {
		return 0, 0, errNoDB
	}
	err = s.db.QueryRowContext(ctx, `
		select (select count(*) from permissions), (select count(*) from roles)
	`).Scan(&permissions, &roles)
	return permissions, roles, mapErr(err)
}
