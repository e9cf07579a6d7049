package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/casework"
	"gestoria.cloud/internal/model"
)

// jsonDate is a YYYY-MM-DD field that remembers whether it was present.
// An explicit null or empty string clears the value.
type jsonDate struct {
	Set   bool
	Value *time.Time
}

func (d *jsonDate) UnmarshalJSON(b []byte) error {
	d.Set = true
	d.Value = nil
	if string(b) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return apperr.BadRequest("invalid_date", "Dates use the YYYY-MM-DD format.")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return apperr.BadRequest("invalid_date", "Dates use the YYYY-MM-DD format.")
	}
	d.Value = &t
	return nil
}

type companyRequest struct {
	Name  string `json:"name" validate:"max=200"`
	TaxID string `json:"tax_id" validate:"max=32"`
}

type companyPatchRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=200"`
	TaxID *string `json:"tax_id" validate:"omitempty,max=32"`
}

type employeeRequest struct {
	FullName    *string  `json:"full_name" validate:"omitempty,max=200"`
	EmployeeRef *string  `json:"employee_ref" validate:"omitempty,max=64"`
	Status      *string  `json:"status"`
	StartDate   jsonDate `json:"start_date"`
	EndDate     jsonDate `json:"end_date"`
}

type terminateRequest struct {
	EndDate jsonDate `json:"end_date"`
}

type caseRequest struct {
	Title             string   `json:"title" validate:"max=200"`
	Type              string   `json:"type" validate:"max=64"`
	Description       string   `json:"description" validate:"max=10000"`
	DueDate           jsonDate `json:"due_date"`
	ResponsibleUserID string   `json:"responsible_user_id"`
	Comment           string   `json:"comment" validate:"max=10000"`
}

type casePatchRequest struct {
	Title       *string  `json:"title" validate:"omitempty,max=200"`
	Type        *string  `json:"type" validate:"omitempty,max=64"`
	Description *string  `json:"description" validate:"omitempty,max=10000"`
	DueDate     jsonDate `json:"due_date"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type assignRequest struct {
	ResponsibleUserID string `json:"responsible_user_id"`
}

type commentRequest struct {
	Comment string `json:"comment" validate:"max=10000"`
}

func (a *API) companyRoutes(r chi.Router) {
	read := func(level model.AccessLevel, perms ...string) guard {
		return guard{tenant: true, anyOf: perms, level: level}
	}
	r.Route("/companies", func(r chi.Router) {
		r.Get("/", a.protect(read(0, authz.PermCompanyRead, authz.PermTenantCompanyRead), a.listCompanies))
		r.Post("/", a.protect(read(0, authz.PermCompanyWrite), a.createCompany))

		r.Route("/{company_id}", func(r chi.Router) {
			r.Get("/", a.protect(read(model.AccessViewer, authz.PermCompanyRead), a.getCompany))
			r.Patch("/", a.protect(read(model.AccessManager, authz.PermCompanyWrite), a.updateCompany))
			r.Post("/activate", a.protect(read(model.AccessAdmin, authz.PermCompanyWrite), a.companyStatus(model.CompanyActive)))
			r.Post("/deactivate", a.protect(read(model.AccessAdmin, authz.PermCompanyWrite), a.companyStatus(model.CompanyInactive)))

			r.Route("/employees", func(r chi.Router) {
				r.Get("/", a.protect(read(model.AccessViewer, authz.PermEmployeeRead), a.listEmployees))
				r.Post("/", a.protect(read(model.AccessOperator, authz.PermEmployeeWrite), a.createEmployee))
				r.Get("/{employee_id}", a.protect(read(model.AccessViewer, authz.PermEmployeeRead), a.getEmployee))
				r.Patch("/{employee_id}", a.protect(read(model.AccessOperator, authz.PermEmployeeWrite), a.updateEmployee))
				r.Post("/{employee_id}/terminate", a.protect(read(model.AccessManager, authz.PermEmployeeWrite), a.terminateEmployee))
			})

			r.Route("/cases", func(r chi.Router) {
				r.Get("/", a.protect(read(model.AccessViewer, authz.PermCaseRead), a.listCases))
				r.Post("/", a.protect(read(model.AccessOperator, authz.PermCaseWrite), a.createCase))
				r.Get("/{case_id}", a.protect(read(model.AccessViewer, authz.PermCaseRead), a.getCase))
				r.Patch("/{case_id}", a.protect(read(model.AccessOperator, authz.PermCaseWrite), a.updateCase))
				r.Post("/{case_id}/status", a.protect(read(model.AccessManager, authz.PermCaseAssign), a.changeCaseStatus))
				r.Post("/{case_id}/assign", a.protect(read(model.AccessManager, authz.PermCaseAssign), a.assignCase))
				r.Get("/{case_id}/events", a.protect(read(model.AccessViewer, authz.PermCaseRead), a.listCaseEvents))
				r.Post("/{case_id}/events/comment", a.protect(read(model.AccessOperator, authz.PermCaseEventWrite), a.addCaseComment))
				r.Get("/{case_id}/documents", a.protect(read(model.AccessViewer, authz.PermDocumentRead), a.listCaseDocuments))
			})
		})
	})
}

func (a *API) listCompanies(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	items, total, err := a.Casework.ListCompanies(r.Context(), rc, model.CompanyFilter{
		Status: model.CompanyStatus(strings.TrimSpace(q.Get("status"))),
		Query:  strings.TrimSpace(q.Get("q")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items, total))
}

func (a *API) createCompany(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req companyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	company, err := a.Casework.CreateCompany(r.Context(), rc, casework.CompanyInput{Name: req.Name, TaxID: req.TaxID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, company)
}

func (a *API) getCompany(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	company, err := a.Casework.GetCompany(r.Context(), rc, chi.URLParam(r, companyIDParam))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (a *API) updateCompany(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req companyPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	company, err := a.Casework.UpdateCompany(r.Context(), rc, chi.URLParam(r, companyIDParam), casework.CompanyPatch{
		Name:  req.Name,
		TaxID: req.TaxID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (a *API) companyStatus(status model.CompanyStatus) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
		company, err := a.Casework.SetCompanyStatus(r.Context(), rc, chi.URLParam(r, companyIDParam), status)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, company)
	}
}

func (a *API) listEmployees(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	status := model.EmployeeStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	items, err := a.Casework.ListEmployees(r.Context(), rc, chi.URLParam(r, companyIDParam), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items, len(items)))
}

func (a *API) createEmployee(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req employeeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in := casework.EmployeeInput{
		FullName:    deref(req.FullName),
		EmployeeRef: deref(req.EmployeeRef),
		Status:      model.EmployeeStatus(deref(req.Status)),
		StartDate:   req.StartDate.Value,
		EndDate:     req.EndDate.Value,
	}
	emp, err := a.Casework.CreateEmployee(r.Context(), rc, chi.URLParam(r, companyIDParam), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

func (a *API) getEmployee(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	emp, err := a.Casework.GetEmployee(r.Context(), rc, chi.URLParam(r, companyIDParam), chi.URLParam(r, "employee_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

func (a *API) updateEmployee(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req employeeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch := casework.EmployeePatch{FullName: req.FullName, EmployeeRef: req.EmployeeRef}
	if req.Status != nil {
		status := model.EmployeeStatus(*req.Status)
		patch.Status = &status
	}
	if req.StartDate.Set {
		patch.StartDate = req.StartDate.Value
	}
	if req.EndDate.Set {
		patch.EndDate = req.EndDate.Value
	}
	emp, err := a.Casework.UpdateEmployee(r.Context(), rc, chi.URLParam(r, companyIDParam), chi.URLParam(r, "employee_id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

func (a *API) terminateEmployee(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req terminateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	emp, err := a.Casework.TerminateEmployee(r.Context(), rc, chi.URLParam(r, companyIDParam), chi.URLParam(r, "employee_id"), req.EndDate.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

func (a *API) listCases(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	items, total, err := a.Casework.ListCases(r.Context(), rc, chi.URLParam(r, companyIDParam), model.CaseFilter{
		Status: model.CaseStatus(strings.TrimSpace(q.Get("status"))),
		Query:  strings.TrimSpace(q.Get("q")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items, total))
}

func (a *API) createCase(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req caseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := a.Casework.CreateCase(r.Context(), rc, chi.URLParam(r, companyIDParam), casework.CaseInput{
		Title:             req.Title,
		Type:              req.Type,
		Description:       req.Description,
		DueDate:           req.DueDate.Value,
		ResponsibleUserID: req.ResponsibleUserID,
		Comment:           req.Comment,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) getCase(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	c, err := a.Casework.GetCase(r.Context(), rc, chi.URLParam(r, companyIDParam), chi.URLParam(r, "case_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) updateCase(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req casePatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := a.Casework.UpdateCase(r.Context(), rc, chi.URLParam(r, companyIDParam), chi.URLParam(r, "case_id"), casework.CasePatch{
		Title:       req.Title,
		Type:        req.Type,
		Description: req.Description,
		SetDueDate:  req.DueDate.Set,
		DueDate:     req.DueDate.Value,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) changeCaseStatus(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	status := model.CaseStatus(strings.TrimSpace(req.Status))
	c, err := a.Casework.ChangeStatus(r.Context(), rc, chi.URLParam(r, companyIDParam), chi.URLParam(r, "case_id"), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) assignCase(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := a.Casework.Assign(r.Context(), rc, chi.URLParam(r, companyIDParam), chi.URLParam(r, "case_id"), req.ResponsibleUserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) listCaseEvents(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	events, err := a.Casework.ListEvents(r.Context(), rc, chi.URLParam(r, companyIDParam), chi.URLParam(r, "case_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(events, len(events)))
}

func (a *API) addCaseComment(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ev, err := a.Casework.AddComment(r.Context(), rc, chi.URLParam(r, companyIDParam), chi.URLParam(r, "case_id"), req.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
