package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestoria.cloud/internal/model"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return New(db), mock
}

func TestMapErr(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{sql.ErrNoRows, model.ErrNotFound},
		{&pgconn.PgError{Code: pgErrUniqueViolation}, model.ErrConflict},
		{&pgconn.PgError{Code: pgErrForeignKeyViolation}, model.ErrNotFound},
		{&pgconn.PgError{Code: pgErrInvalidText}, model.ErrNotFound},
		{&pgconn.PgError{Code: pgErrCheckViolation}, model.ErrRoleScope},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, mapErr(tc.in), tc.want)
	}
	assert.NoError(t, mapErr(nil))
	other := errors.New("boom")
	assert.Equal(t, other, mapErr(other))
}

func TestNilDB(t *testing.T) {
	s := &Store{}
	_, err := s.GetTenant(context.Background(), "x")
	assert.ErrorIs(t, err, errNoDB)
	assert.ErrorIs(t, s.Ping(context.Background()), errNoDB)
}

func TestGetTenant(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select id, name, status, created_at, updated_at from clients where id").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "created_at", "updated_at"}).
			AddRow("t1", "Acme", "active", now, now))

	got, err := s.GetTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, model.TenantActive, got.Status)

	mock.ExpectQuery("from clients where id").WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err = s.GetTenant(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateTenantConflict(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("insert into clients").
		WithArgs(sqlmock.AnyArg(), "Acme", "active").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := s.CreateTenant(context.Background(), model.Tenant{Name: "Acme"})
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestCreateUserKeepsEmptyHashNull(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("insert into users").
		WithArgs(sqlmock.AnyArg(), "t1", "ana@example.com", sql.NullString{}, "invited").
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "email", "password_hash", "status", "created_at", "updated_at"}).
			AddRow("u1", "t1", "ana@example.com", "", "invited", now, now))

	u, err := s.CreateUser(context.Background(), model.User{TenantID: "t1", Email: "ana@example.com", Status: model.UserInvited})
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Empty(t, u.PasswordHash)
}

func TestMarkInvitationUsedMissing(t *testing.T) {
	s, mock := newMock(t)
	at := time.Now().UTC()
	mock.ExpectExec("update user_invitations set used_at").
		WithArgs("inv1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.MarkInvitationUsed(context.Background(), "inv1", at), model.ErrNotFound)
}

func TestListUserPermissionCodes(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select distinct p.code").
		WithArgs("u1", sql.NullString{String: "t1", Valid: true}).
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("cases.read").AddRow("companies.read"))

	codes, err := s.ListUserPermissionCodes(context.Background(), "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cases.read", "companies.read"}, codes)
}

func TestEnsureRoleValidatesScope(t *testing.T) {
	s, _ := newMock(t)
	_, err := s.EnsureRole(context.Background(), model.Role{Name: "Admin Cliente", Scope: model.ScopeTenant})
	assert.ErrorIs(t, err, model.ErrRoleScope)
}

func TestEnsureRoleReadsBack(t *testing.T) {
	s, mock := newMock(t)
	tenant := sql.NullString{String: "t1", Valid: true}
	mock.ExpectExec("insert into roles").
		WithArgs(sqlmock.AnyArg(), "Asesor", "tenant", tenant).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("from roles r").
		WithArgs("Asesor", "tenant", tenant).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "scope", "client_id", "codes"}).
			AddRow("r1", "Asesor", "tenant", "t1", "cases.read,companies.read"))

	r, err := s.EnsureRole(context.Background(), model.Role{Name: "Asesor", Scope: model.ScopeTenant, TenantID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)
	assert.Equal(t, []string{"cases.read", "companies.read"}, r.Permissions)
}

func TestSetRolePermissionsUnknownCodeRollsBack(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select exists").WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("delete from role_permissions").WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("insert into role_permissions").WithArgs("r1", "cases.read").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into role_permissions").WithArgs("r1", "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.SetRolePermissions(context.Background(), "r1", []string{"cases.read", "nope"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestReplaceUserRolesUnknownUser(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select exists").WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	assert.ErrorIs(t, s.ReplaceUserRoles(context.Background(), "ghost", []string{"r1"}), model.ErrNotFound)
}

func TestGetCompanyAccessParsesLevel(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("from user_company_access").
		WithArgs("t1", "u1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "user_id", "company_id", "access_level", "created_at", "updated_at"}).
			AddRow("a1", "t1", "u1", "c1", "manager", now, now))

	a, err := s.GetCompanyAccess(context.Background(), "t1", "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.AccessManager, a.AccessLevel)
}

func TestUpsertCompanyAccessForeignCompany(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("insert into user_company_access").
		WithArgs(sqlmock.AnyArg(), "t1", "u1", "other", "viewer").
		WillReturnError(sql.ErrNoRows)

	_, err := s.UpsertCompanyAccess(context.Background(), model.CompanyAccess{
		TenantID: "t1", UserID: "u1", CompanyID: "other", AccessLevel: model.AccessViewer,
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateCompanyWithOwner(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("insert into companies").
		WithArgs(sqlmock.AnyArg(), "t1", "Acme SL", "B123", "active").
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "name", "tax_id", "status", "created_at", "updated_at"}).
			AddRow("c1", "t1", "Acme SL", "B123", "active", now, now))
	mock.ExpectExec("insert into user_company_access").
		WithArgs(sqlmock.AnyArg(), "t1", "u1", "c1", "admin").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, err := s.CreateCompanyWithOwner(context.Background(),
		model.Company{TenantID: "t1", Name: "Acme SL", TaxID: "B123", Status: model.CompanyActive},
		model.CompanyAccess{UserID: "u1", AccessLevel: model.AccessAdmin})
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
}

func TestCreateCompanyTaxIDConflict(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("insert into companies").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	_, err := s.CreateCompanyWithOwner(context.Background(),
		model.Company{TenantID: "t1", Name: "Acme SL", TaxID: "B123", Status: model.CompanyActive},
		model.CompanyAccess{UserID: "u1", AccessLevel: model.AccessAdmin})
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestListCompaniesEmptyAllowedSkipsQuery(t *testing.T) {
	s, _ := newMock(t)
	items, total, err := s.ListCompanies(context.Background(), "t1", nil, model.CompanyFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
}

func TestUpdateCaseAppendsEvent(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	caseCols := []string{"id", "client_id", "company_id", "title", "type", "description", "status", "responsible_user_id", "due_date", "created_at", "updated_at"}
	mock.ExpectBegin()
	mock.ExpectQuery("update cases").
		WillReturnRows(sqlmock.NewRows(caseCols).
			AddRow("k1", "t1", "c1", "IVA Q3", "general", "", "in_progress", nil, nil, now, now))
	mock.ExpectQuery("insert into case_events").
		WithArgs(sqlmock.AnyArg(), "t1", "c1", "k1", sql.NullString{String: "u1", Valid: true}, "status_change", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "company_id", "case_id", "actor_user_id", "event_type", "payload", "created_at"}).
			AddRow("e1", "t1", "c1", "k1", "u1", "status_change", []byte(`{"from":"open","to":"in_progress"}`), now))
	mock.ExpectCommit()

	c, err := s.UpdateCase(context.Background(),
		model.Case{ID: "k1", TenantID: "t1", CompanyID: "c1", Title: "IVA Q3", Type: "general", Status: model.CaseInProgress},
		&model.CaseEvent{ActorUserID: "u1", Type: model.EventStatusChange, Payload: map[string]any{"from": "open", "to": "in_progress"}})
	require.NoError(t, err)
	assert.Equal(t, model.CaseInProgress, c.Status)
	assert.Empty(t, c.ResponsibleUserID)
	assert.Nil(t, c.DueDate)
}

func TestListCaseEventsDecodesPayload(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("from case_events").
		WithArgs("t1", "c1", "k1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "company_id", "case_id", "actor_user_id", "event_type", "payload", "created_at"}).
			AddRow("e1", "t1", "c1", "k1", nil, "comment", []byte(`{"comment":"hola"}`), now))

	events, err := s.ListCaseEvents(context.Background(), "t1", "c1", "k1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "hola", events[0].Payload["comment"])
	assert.Empty(t, events[0].ActorUserID)
}

func TestInsertAuditEntry(t *testing.T) {
	s, mock := newMock(t)
	at := time.Now().UTC()
	mock.ExpectExec("insert into audit_logs").
		WithArgs("01J", "t1", sql.NullString{}, "company.create", "company", "c1", []byte(`{"name":"Acme"}`), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.InsertAuditEntry(context.Background(), model.AuditEntry{
		ID: "01J", TenantID: "t1", Action: "company.create", EntityType: "company", EntityID: "c1",
		Metadata: map[string]string{"name": "Acme"}, CreatedAt: at,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, s.InsertAuditEntry(context.Background(), model.AuditEntry{Action: "x"}), model.ErrNotFound)
}

func TestListAuditEntries(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("from audit_logs").
		WithArgs("t1", "company", "", "", 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "user_id", "action", "entity_type", "entity_id", "metadata", "created_at"}).
			AddRow("02", "t1", "u1", "company.update", "company", "c1", []byte(`{}`), now).
			AddRow("01", "t1", "", "company.create", "company", "c1", []byte(`{"name":"Acme"}`), now))

	entries, err := s.ListAuditEntries(context.Background(), "t1", model.AuditFilter{EntityType: "company", Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "02", entries[0].ID)
	assert.Equal(t, "Acme", entries[1].Metadata["name"])
}

func TestLikePatternEscapes(t *testing.T) {
	assert.Equal(t, "", likePattern("  "))
	assert.Equal(t, `%50\%\_off%`, likePattern("50%_off"))
}

func TestUpsertCompanyAccessAdmitsSuperAdmins(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)insert into user_company_access.*u\.client_id = \$2 or exists.*'Super Admin'`).
		WithArgs(sqlmock.AnyArg(), "t1", "root", "c1", "admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "user_id", "company_id", "access_level", "created_at", "updated_at"}).
			AddRow("a1", "t1", "root", "c1", "admin", now, now))

	a, err := s.UpsertCompanyAccess(context.Background(), model.CompanyAccess{
		TenantID: "t1", UserID: "root", CompanyID: "c1", AccessLevel: model.AccessAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", a.TenantID)
}

func TestListPermissionCodesMapsDriverErrors(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select code from permissions").
		WillReturnError(&pgconn.PgError{Code: pgErrInvalidText})

	_, err := s.ListPermissionCodes(context.Background())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

var extractionRowColumns = []string{"id", "client_id", "document_id", "company_id", "case_id", "created_by_user_id",
	"provider", "model_name", "schema_version", "extracted_json", "confidence", "status", "error_message", "created_at"}

func TestCreateExtractionForeignDocument(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("insert into document_extractions").
		WithArgs(sqlmock.AnyArg(), "t1", "d-other", "u1", nil, nil, "v1", []byte(`{"nif":"B1"}`), nil, "success", nil).
		WillReturnError(sql.ErrNoRows)

	_, err := s.CreateExtraction(context.Background(), model.DocumentExtraction{
		TenantID: "t1", DocumentID: "d-other", CreatedByUserID: "u1", SchemaVersion: "v1",
		ExtractedJSON: map[string]any{"nif": "B1"}, Status: model.ExtractionSuccess,
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLatestExtractionDecodesPayload(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("from document_extractions").
		WithArgs("t1", "d1").
		WillReturnRows(sqlmock.NewRows(extractionRowColumns).
			AddRow("x1", "t1", "d1", "c1", "k1", nil, "manual", "", "v2", []byte(`{"total":12.5}`), 0.9, "partial", "", now))

	x, err := s.LatestExtraction(context.Background(), "t1", "d1")
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionPartial, x.Status)
	assert.Equal(t, 12.5, x.ExtractedJSON["total"])
	require.NotNil(t, x.Confidence)
	assert.InDelta(t, 0.9, *x.Confidence, 1e-9)
	assert.Empty(t, x.CreatedByUserID)

	mock.ExpectQuery("from document_extractions").
		WithArgs("t1", "d2").
		WillReturnError(sql.ErrNoRows)
	_, err = s.LatestExtraction(context.Background(), "t1", "d2")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
