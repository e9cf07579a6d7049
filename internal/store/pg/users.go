package pg

import (
	"context"
	"database/sql"
	"time"

	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
)

const userColumns = `id, client_id, email, coalesce(password_hash, ''), status, created_at, updated_at`

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func collectUsers(rows *sql.Rows) ([]model.User, error) {
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, tenantID, userID string) (model.User, error) {
	if s.db == nil {
		return model.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1 and client_id = $2`, userID, tenantID))
	if err != nil {
		return model.User{}, mapErr(err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, tenantID, email string) (model.User, error) {
	if s.db == nil {
		return model.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where client_id = $1 and email = $2`, tenantID, email))
	if err != nil {
		return model.User{}, mapErr(err)
	}
	return u, nil
}

// ListActiveUsersByEmail backs tenant-less login; more than one row means the
// email is ambiguous across tenants.
func (s *Store) ListActiveUsersByEmail(ctx context.Context, email string) ([]model.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where email = $1 and status = $2 order by id`, email, model.UserActive)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (s *Store) ListUsers(ctx context.Context, tenantID string, limit, offset int) ([]model.User, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users where client_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+` from users
		where client_id = $1
		order by email
		limit $2 offset $3`, tenantID, limitOrAll(limit), offset)
	if err != nil {
		return nil, 0, err
	}
	users, err := collectUsers(rows)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if s.db == nil {
		return model.User{}, errNoDB
	}
	if u.ID == "" {
		u.ID = ids.NewEntityID()
	}
	saved, err := scanUser(s.db.QueryRowContext(ctx, `
		insert into users (id, client_id, email, password_hash, status)
		values ($1, $2, $3, $4, $5)
		returning `+userColumns,
		u.ID, u.TenantID, u.Email, nullIfEmpty(u.PasswordHash), u.Status))
	if err != nil {
		return model.User{}, mapErr(err)
	}
	return saved, nil
}

func (s *Store) UpdateUser(ctx context.Context, u model.User) (model.User, error) {
	if s.db == nil {
		return model.User{}, errNoDB
	}
	saved, err := scanUser(s.db.QueryRowContext(ctx, `
		update users set email = $3, password_hash = $4, status = $5, updated_at = now()
		where id = $1 and client_id = $2
		returning `+userColumns,
		u.ID, u.TenantID, u.Email, nullIfEmpty(u.PasswordHash), u.Status))
	if err != nil {
		return model.User{}, mapErr(err)
	}
	return saved, nil
}

const invitationColumns = `id, client_id, email, token_hash, expires_at, used_at, created_at`

func scanInvitation(row rowScanner) (model.Invitation, error) {
	var (
		inv    model.Invitation
		usedAt sql.NullTime
	)
	if err := row.Scan(&inv.ID, &inv.TenantID, &inv.Email, &inv.TokenHash, &inv.ExpiresAt, &usedAt, &inv.CreatedAt); err != nil {
		return model.Invitation{}, err
	}
	inv.UsedAt = timePtr(usedAt)
	return inv, nil
}

func (s *Store) CreateInvitation(ctx context.Context, inv model.Invitation) (model.Invitation, error) {
	if s.db == nil {
		return model.Invitation{}, errNoDB
	}
	if inv.ID == "" {
		inv.ID = ids.NewEntityID()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	saved, err := scanInvitation(s.db.QueryRowContext(ctx, `
		insert into user_invitations (id, client_id, email, token_hash, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6)
		returning `+invitationColumns,
		inv.ID, inv.TenantID, inv.Email, inv.TokenHash, inv.ExpiresAt, inv.CreatedAt))
	if err != nil {
		return model.Invitation{}, mapErr(err)
	}
	return saved, nil
}

func (s *Store) GetInvitationByHash(ctx context.Context, tenantID, tokenHash string) (model.Invitation, error) {
	if s.db == nil {
		return model.Invitation{}, errNoDB
	}
	inv, err := scanInvitation(s.db.QueryRowContext(ctx,
		`select `+invitationColumns+` from user_invitations where client_id = $1 and token_hash = $2`, tenantID, tokenHash))
	if err != nil {
		return model.Invitation{}, mapErr(err)
	}
	return inv, nil
}

func (s *Store) MarkInvitationUsed(ctx context.Context, id string, usedAt time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	return execOne(ctx, s.db, `update user_invitations set used_at = $2 where id = $1`, id, usedAt)
}
