package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
)

// Companies

const companyColumns = `id, client_id, name, tax_id, status, created_at, updated_at`

func scanCompany(row rowScanner) (model.Company, error) {
	var c model.Company
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.TaxID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateCompanyWithOwner inserts the company and the creator's grant in one
// transaction.
func (s *Store) CreateCompanyWithOwner(ctx context.Context, c model.Company, owner model.CompanyAccess) (model.Company, error) {
	if s.db == nil {
		return model.Company{}, errNoDB
	}
	if c.ID == "" {
		c.ID = ids.NewEntityID()
	}
	if owner.ID == "" {
		owner.ID = ids.NewEntityID()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Company{}, err
	}
	defer func() { _ = tx.Rollback() }()

	saved, err := scanCompany(tx.QueryRowContext(ctx, `
		insert into companies (id, client_id, name, tax_id, status)
		values ($1, $2, $3, $4, $5)
		returning `+companyColumns, c.ID, c.TenantID, c.Name, c.TaxID, c.Status))
	if err != nil {
		return model.Company{}, mapErr(err)
	}
	if err := execOne(ctx, tx, `
		insert into user_company_access (id, client_id, user_id, company_id, access_level)
		select $1, $2, $3, $4, $5
		where `+grantableUser,
		owner.ID, saved.TenantID, owner.UserID, saved.ID, owner.AccessLevel.String()); err != nil {
		return model.Company{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Company{}, err
	}
	return saved, nil
}

func (s *Store) GetCompany(ctx context.Context, tenantID, id string) (model.Company, error) {
	if s.db == nil {
		return model.Company{}, errNoDB
	}
	c, err := scanCompany(s.db.QueryRowContext(ctx,
		`select `+companyColumns+` from companies where id = $1 and client_id = $2`, id, tenantID))
	if err != nil {
		return model.Company{}, mapErr(err)
	}
	return c, nil
}

func (s *Store) UpdateCompany(ctx context.Context, c model.Company) (model.Company, error) {
	if s.db == nil {
		return model.Company{}, errNoDB
	}
	saved, err := scanCompany(s.db.QueryRowContext(ctx, `
		update companies set name = $3, tax_id = $4, status = $5, updated_at = now()
		where id = $1 and client_id = $2
		returning `+companyColumns, c.ID, c.TenantID, c.Name, c.TaxID, c.Status))
	if err != nil {
		return model.Company{}, mapErr(err)
	}
	return saved, nil
}

// ListCompanies pages the tenant's companies restricted to allowed.
func (s *Store) ListCompanies(ctx context.Context, tenantID string, allowed []string, f model.CompanyFilter) ([]model.Company, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	if len(allowed) == 0 {
		return []model.Company{}, 0, nil
	}
	where := `
		from companies
		where client_id = $1 and id = any($2)
			and ($3 = '' or status = $3)
			and ($4 = '' or name ilike $4 or tax_id ilike $4)`
	args := []any{tenantID, allowed, string(f.Status), likePattern(f.Query)}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) `+where, args...).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}
	rows, err := s.db.QueryContext(ctx, `select `+companyColumns+where+`
		order by name
		limit $5 offset $6`, append(args, limitOrAll(f.Limit), f.Offset)...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	out := []model.Company{}
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Employees

const employeeColumns = `id, client_id, company_id, full_name, coalesce(employee_ref, ''), status, start_date, end_date, created_at, updated_at`

func scanEmployee(row rowScanner) (model.Employee, error) {
	var (
		e          model.Employee
		start, end sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.TenantID, &e.CompanyID, &e.FullName, &e.EmployeeRef, &e.Status, &start, &end, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return model.Employee{}, err
	}
	e.StartDate = timePtr(start)
	e.EndDate = timePtr(end)
	return e, nil
}

func (s *Store) CreateEmployee(ctx context.Context, e model.Employee) (model.Employee, error) {
	if s.db == nil {
		return model.Employee{}, errNoDB
	}
	if e.ID == "" {
		e.ID = ids.NewEntityID()
	}
	saved, err := scanEmployee(s.db.QueryRowContext(ctx, `
		insert into employees (id, client_id, company_id, full_name, employee_ref, status, start_date, end_date)
		select $1, $2, $3, $4, $5, $6, $7, $8
		where exists (select 1 from companies where id = $3 and client_id = $2)
		returning `+employeeColumns,
		e.ID, e.TenantID, e.CompanyID, e.FullName, nullIfEmpty(e.EmployeeRef), e.Status, nullTime(e.StartDate), nullTime(e.EndDate)))
	if err != nil {
		return model.Employee{}, mapErr(err)
	}
	return saved, nil
}

func (s *Store) GetEmployee(ctx context.Context, tenantID, companyID, id string) (model.Employee, error) {
	if s.db == nil {
		return model.Employee{}, errNoDB
	}
	e, err := scanEmployee(s.db.QueryRowContext(ctx, `
		select `+employeeColumns+` from employees
		where id = $1 and client_id = $2 and company_id = $3`, id, tenantID, companyID))
	if err != nil {
		return model.Employee{}, mapErr(err)
	}
	return e, nil
}

func (s *Store) UpdateEmployee(ctx context.Context, e model.Employee) (model.Employee, error) {
	if s.db == nil {
		return model.Employee{}, errNoDB
	}
	saved, err := scanEmployee(s.db.QueryRowContext(ctx, `
		update employees
		set full_name = $4, employee_ref = $5, status = $6, start_date = $7, end_date = $8, updated_at = now()
		where id = $1 and client_id = $2 and company_id = $3
		returning `+employeeColumns,
		e.ID, e.TenantID, e.CompanyID, e.FullName, nullIfEmpty(e.EmployeeRef), e.Status, nullTime(e.StartDate), nullTime(e.EndDate)))
	if err != nil {
		return model.Employee{}, mapErr(err)
	}
	return saved, nil
}

func (s *Store) ListEmployees(ctx context.Context, tenantID, companyID string, status model.EmployeeStatus) ([]model.Employee, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+employeeColumns+` from employees
		where client_id = $1 and company_id = $2 and ($3 = '' or status = $3)
		order by full_name`, tenantID, companyID, string(status))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cases

const caseColumns = `id, client_id, company_id, title, type, coalesce(description, ''), status, responsible_user_id, due_date, created_at, updated_at`

func scanCase(row rowScanner) (model.Case, error) {
	var (
		c           model.Case
		responsible sql.NullString
		due         sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.TenantID, &c.CompanyID, &c.Title, &c.Type, &c.Description, &c.Status, &responsible, &due, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return model.Case{}, err
	}
	c.ResponsibleUserID = responsible.String
	c.DueDate = timePtr(due)
	return c, nil
}

// CreateCase stores the case together with its first event.
func (s *Store) CreateCase(ctx context.Context, c model.Case, first model.CaseEvent) (model.Case, error) {
	if s.db == nil {
		return model.Case{}, errNoDB
	}
	if c.ID == "" {
		c.ID = ids.NewEntityID()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Case{}, err
	}
	defer func() { _ = tx.Rollback() }()

	saved, err := scanCase(tx.QueryRowContext(ctx, `
		insert into cases (id, client_id, company_id, title, type, description, status, responsible_user_id, due_date)
		select $1, $2, $3, $4, $5, $6, $7, $8, $9
		where exists (select 1 from companies where id = $3 and client_id = $2)
		returning `+caseColumns,
		c.ID, c.TenantID, c.CompanyID, c.Title, c.Type, nullIfEmpty(c.Description), c.Status,
		nullIfEmpty(c.ResponsibleUserID), nullTime(c.DueDate)))
	if err != nil {
		return model.Case{}, mapErr(err)
	}
	if _, err := s.insertEvent(ctx, tx, saved, first); err != nil {
		return model.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Case{}, err
	}
	return saved, nil
}

func (s *Store) GetCase(ctx context.Context, tenantID, companyID, id string) (model.Case, error) {
	if s.db == nil {
		return model.Case{}, errNoDB
	}
	c, err := scanCase(s.db.QueryRowContext(ctx, `
		select `+caseColumns+` from cases
		where id = $1 and client_id = $2 and company_id = $3`, id, tenantID, companyID))
	if err != nil {
		return model.Case{}, mapErr(err)
	}
	return c, nil
}

// UpdateCase saves c and, when ev is non-nil, appends it in the same
// transaction.
func (s *Store) UpdateCase(ctx context.Context, c model.Case, ev *model.CaseEvent) (model.Case, error) {
	if s.db == nil {
		return model.Case{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Case{}, err
	}
	defer func() { _ = tx.Rollback() }()

	saved, err := scanCase(tx.QueryRowContext(ctx, `
		update cases
		set title = $4, type = $5, description = $6, status = $7, responsible_user_id = $8, due_date = $9, updated_at = now()
		where id = $1 and client_id = $2 and company_id = $3
		returning `+caseColumns,
		c.ID, c.TenantID, c.CompanyID, c.Title, c.Type, nullIfEmpty(c.Description), c.Status,
		nullIfEmpty(c.ResponsibleUserID), nullTime(c.DueDate)))
	if err != nil {
		return model.Case{}, mapErr(err)
	}
	if ev != nil {
		if _, err := s.insertEvent(ctx, tx, saved, *ev); err != nil {
			return model.Case{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Case{}, err
	}
	return saved, nil
}

func (s *Store) ListCases(ctx context.Context, tenantID, companyID string, f model.CaseFilter) ([]model.Case, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	where := `
		from cases
		where client_id = $1 and company_id = $2
			and ($3 = '' or status = $3)
			and ($4 = '' or title ilike $4)`
	args := []any{tenantID, companyID, string(f.Status), likePattern(f.Query)}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) `+where, args...).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}
	rows, err := s.db.QueryContext(ctx, `select `+caseColumns+where+`
		order by created_at desc
		limit $5 offset $6`, append(args, limitOrAll(f.Limit), f.Offset)...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	out := []model.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Case events

const eventColumns = `id, client_id, company_id, case_id, actor_user_id, event_type, payload, created_at`

func scanEvent(row rowScanner) (model.CaseEvent, error) {
	var (
		ev      model.CaseEvent
		actor   sql.NullString
		payload []byte
	)
	if err := row.Scan(&ev.ID, &ev.TenantID, &ev.CompanyID, &ev.CaseID, &actor, &ev.Type, &payload, &ev.CreatedAt); err != nil {
		return model.CaseEvent{}, err
	}
	ev.ActorUserID = actor.String
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &ev.Payload); err != nil {
			return model.CaseEvent{}, err
		}
	}
	return ev, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) insertEvent(ctx context.Context, q queryRower, c model.Case, ev model.CaseEvent) (model.CaseEvent, error) {
	if ev.ID == "" {
		ev.ID = ids.NewEntityID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return model.CaseEvent{}, err
	}
	saved, err := scanEvent(q.QueryRowContext(ctx, `
		insert into case_events (id, client_id, company_id, case_id, actor_user_id, event_type, payload, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning `+eventColumns,
		ev.ID, c.TenantID, c.CompanyID, c.ID, nullIfEmpty(ev.ActorUserID), ev.Type, payload, ev.CreatedAt))
	if err != nil {
		return model.CaseEvent{}, mapErr(err)
	}
	return saved, nil
}

func (s *Store) AppendCaseEvent(ctx context.Context, ev model.CaseEvent) (model.CaseEvent, error) {
	if s.db == nil {
		return model.CaseEvent{}, errNoDB
	}
	c, err := s.GetCase(ctx, ev.TenantID, ev.CompanyID, ev.CaseID)
	if err != nil {
		return model.CaseEvent{}, err
	}
	return s.insertEvent(ctx, s.db, c, ev)
}

func (s *Store) ListCaseEvents(ctx context.Context, tenantID, companyID, caseID string) ([]model.CaseEvent, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+eventColumns+` from case_events
		where client_id = $1 and company_id = $2 and case_id = $3
		order by created_at, id`, tenantID, companyID, caseID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.CaseEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
