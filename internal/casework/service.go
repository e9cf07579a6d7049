// Package casework implements the tenant-scoped business resources guarded
// by the authorization pipeline: companies with their employees, cases and
// case documents.
package casework

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/model"
)

// Store is the persistence collaborator for casework resources.
type Store interface {
	CreateCompanyWithOwner(ctx context.Context, company model.Company, owner model.CompanyAccess) (model.Company, error)
	GetCompany(ctx context.Context, tenantID, id string) (model.Company, error)
	UpdateCompany(ctx context.Context, company model.Company) (model.Company, error)
	ListCompanies(ctx context.Context, tenantID string, allowed []string, filter model.CompanyFilter) ([]model.Company, int, error)

	CreateEmployee(ctx context.Context, e model.Employee) (model.Employee, error)
	GetEmployee(ctx context.Context, tenantID, companyID, id string) (model.Employee, error)
	UpdateEmployee(ctx context.Context, e model.Employee) (model.Employee, error)
	ListEmployees(ctx context.Context, tenantID, companyID string, status model.EmployeeStatus) ([]model.Employee, error)

	CreateCase(ctx context.Context, c model.Case, first model.CaseEvent) (model.Case, error)
	GetCase(ctx context.Context, tenantID, companyID, id string) (model.Case, error)
	UpdateCase(ctx context.Context, c model.Case, ev *model.CaseEvent) (model.Case, error)
	ListCases(ctx context.Context, tenantID, companyID string, filter model.CaseFilter) ([]model.Case, int, error)
	AppendCaseEvent(ctx context.Context, ev model.CaseEvent) (model.CaseEvent, error)
	ListCaseEvents(ctx context.Context, tenantID, companyID, caseID string) ([]model.CaseEvent, error)

	CreateDocument(ctx context.Context, d model.Document, attachment model.CaseEvent) (model.Document, error)
	GetDocument(ctx context.Context, tenantID, id string) (model.Document, error)
	ListCaseDocuments(ctx context.Context, tenantID, companyID, caseID string) ([]model.Document, error)
	CreateExtraction(ctx context.Context, x model.DocumentExtraction) (model.DocumentExtraction, error)
	LatestExtraction(ctx context.Context, tenantID, documentID string) (model.DocumentExtraction, error)
	ListExtractions(ctx context.Context, tenantID, documentID string, limit, offset int) ([]model.DocumentExtraction, error)

	GetUser(ctx context.Context, tenantID, userID string) (model.User, error)
}

var (
	ErrCompanyNotFound  = apperr.NotFound("company_not_found", "Company not found.")
	ErrEmployeeNotFound = apperr.NotFound("employee_not_found", "Employee not found.")
	ErrCaseNotFound     = apperr.NotFound("case_not_found", "Case not found.")
	ErrNoFieldsToUpdate = apperr.BadRequest("no_fields_to_update", "")
)

// Service exposes the casework operations. Callers pass the RequestContext
// produced by the authorization pipeline; the tenant always comes from it.
type Service struct {
	store Store
	acl   *authz.ACL
	audit authz.Auditor
}

// NewService wires the casework service.
func NewService(store Store, acl *authz.ACL, auditor authz.Auditor) (*Service, error) {
	if store == nil {
		return nil, errors.New("casework: store is required")
	}
	if acl == nil {
		return nil, errors.New("casework: acl is required")
	}
	return &Service{store: store, acl: acl, audit: auditor}, nil
}

type scope struct {
	tenantID string
	actorID  string
}

func scopeOf(rc *authz.RequestContext) (scope, error) {
	tenantID, err := rc.RequireTenant()
	if err != nil {
		return scope{}, err
	}
	return scope{tenantID: tenantID, actorID: rc.UserID()}, nil
}

func (s *Service) record(ctx context.Context, sc scope, action, entityType, entityID string, meta map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.LogAction(ctx, model.AuditEntry{
		TenantID:    sc.tenantID,
		ActorUserID: sc.actorID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Metadata:    meta,
	})
}

// notFound maps the storage sentinel onto the resource specific error.
func notFound(err error, as *apperr.Error, op string) error {
	if errors.Is(err, model.ErrNotFound) {
		return as
	}
	return fmt.Errorf("%s: %w", op, err)
}

func optional(v string) string { return strings.TrimSpace(v) }

func required(v, code string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apperr.BadRequest(code, "")
	}
	return v, nil
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
