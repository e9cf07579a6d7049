package casework

import (
	"context"
	"fmt"
	"time"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/model"
)

// EmployeeInput is the create payload. Status defaults to active.
type EmployeeInput struct {
	FullName    string
	EmployeeRef string
	Status      model.EmployeeStatus
	StartDate   *time.Time
	EndDate     *time.Time
}

// EmployeePatch holds the fields to change; nil means untouched.
type EmployeePatch struct {
	FullName    *string
	EmployeeRef *string
	Status      *model.EmployeeStatus
	StartDate   *time.Time
	EndDate     *time.Time
}

func (p EmployeePatch) empty() bool {
	return p.FullName == nil && p.EmployeeRef == nil && p.Status == nil && p.StartDate == nil && p.EndDate == nil
}

// validateEmployeeDates: terminated employees need an end date not before
// the start date; active employees have none.
func validateEmployeeDates(status model.EmployeeStatus, start, end *time.Time) error {
	if status == model.EmployeeTerminated {
		if end == nil {
			return apperr.BadRequest("end_date_required", "")
		}
		if start != nil && end.Before(*start) {
			return apperr.BadRequest("end_date_before_start_date", "")
		}
		return nil
	}
	if end != nil {
		return apperr.BadRequest("end_date_not_allowed", "")
	}
	return nil
}

func (s *Service) ensureCompany(ctx context.Context, sc scope, companyID string) error {
	if _, err := s.store.GetCompany(ctx, sc.tenantID, companyID); err != nil {
		return notFound(err, ErrCompanyNotFound, "get company")
	}
	return nil
}

func (s *Service) ListEmployees(ctx context.Context, rc *authz.RequestContext, companyID string, status model.EmployeeStatus) ([]model.Employee, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, apperr.BadRequest("invalid_status", "")
	}
	if err := s.ensureCompany(ctx, sc, companyID); err != nil {
		return nil, err
	}
	out, err := s.store.ListEmployees(ctx, sc.tenantID, companyID, status)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	if out == nil {
		out = []model.Employee{}
	}
	return out, nil
}

func (s *Service) CreateEmployee(ctx context.Context, rc *authz.RequestContext, companyID string, in EmployeeInput) (model.Employee, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.Employee{}, err
	}
	name, err := required(in.FullName, "full_name_required")
	if err != nil {
		return model.Employee{}, err
	}
	status := in.Status
	if status == "" {
		status = model.EmployeeActive
	}
	if !status.Valid() {
		return model.Employee{}, apperr.BadRequest("invalid_status", "")
	}
	if err := validateEmployeeDates(status, in.StartDate, in.EndDate); err != nil {
		return model.Employee{}, err
	}
	if err := s.ensureCompany(ctx, sc, companyID); err != nil {
		return model.Employee{}, err
	}
	emp, err := s.store.CreateEmployee(ctx, model.Employee{
		TenantID:    sc.tenantID,
		CompanyID:   companyID,
		FullName:    name,
		EmployeeRef: optional(in.EmployeeRef),
		Status:      status,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
	})
	if err != nil {
		return model.Employee{}, notFound(err, ErrCompanyNotFound, "create employee")
	}
	s.record(ctx, sc, "employee.create", "employee", emp.ID, map[string]string{"company_id": companyID})
	return emp, nil
}

func (s *Service) GetEmployee(ctx context.Context, rc *authz.RequestContext, companyID, id string) (model.Employee, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.Employee{}, err
	}
	if err := s.ensureCompany(ctx, sc, companyID); err != nil {
		return model.Employee{}, err
	}
	emp, err := s.store.GetEmployee(ctx, sc.tenantID, companyID, id)
	if err != nil {
		return model.Employee{}, notFound(err, ErrEmployeeNotFound, "get employee")
	}
	return emp, nil
}

func (s *Service) UpdateEmployee(ctx context.Context, rc *authz.RequestContext, companyID, id string, patch EmployeePatch) (model.Employee, error) {
	if patch.empty() {
		return model.Employee{}, ErrNoFieldsToUpdate
	}
	emp, err := s.GetEmployee(ctx, rc, companyID, id)
	if err != nil {
		return model.Employee{}, err
	}
	if patch.FullName != nil {
		if emp.FullName, err = required(*patch.FullName, "full_name_required"); err != nil {
			return model.Employee{}, err
		}
	}
	if patch.EmployeeRef != nil {
		emp.EmployeeRef = optional(*patch.EmployeeRef)
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return model.Employee{}, apperr.BadRequest("invalid_status", "")
		}
		emp.Status = *patch.Status
	}
	if patch.StartDate != nil {
		emp.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		emp.EndDate = patch.EndDate
	} else if emp.Status == model.EmployeeActive {
		emp.EndDate = nil
	}
	if err := validateEmployeeDates(emp.Status, emp.StartDate, emp.EndDate); err != nil {
		return model.Employee{}, err
	}
	return s.saveEmployee(ctx, rc, emp, "employee.update")
}

// TerminateEmployee marks the employee terminated as of endDate.
func (s *Service) TerminateEmployee(ctx context.Context, rc *authz.RequestContext, companyID, id string, endDate *time.Time) (model.Employee, error) {
	emp, err := s.GetEmployee(ctx, rc, companyID, id)
	if err != nil {
		return model.Employee{}, err
	}
	if err := validateEmployeeDates(model.EmployeeTerminated, emp.StartDate, endDate); err != nil {
		return model.Employee{}, err
	}
	emp.Status = model.EmployeeTerminated
	emp.EndDate = endDate
	return s.saveEmployee(ctx, rc, emp, "employee.terminate")
}

func (s *Service) saveEmployee(ctx context.Context, rc *authz.RequestContext, emp model.Employee, action string) (model.Employee, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.Employee{}, err
	}
	saved, err := s.store.UpdateEmployee(ctx, emp)
	if err != nil {
		return model.Employee{}, notFound(err, ErrEmployeeNotFound, "update employee")
	}
	s.record(ctx, sc, action, "employee", saved.ID, map[string]string{
		"company_id": saved.CompanyID,
		"status":     string(saved.Status),
	})
	return saved, nil
}
