package casework

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/model"
)

const defaultCaseType = "general"

// CaseInput is the create payload. A non-empty Comment becomes the first
// event instead of the opening status change.
type CaseInput struct {
	Title             string
	Type              string
	Description       string
	DueDate           *time.Time
	ResponsibleUserID string
	Comment           string
}

// CasePatch holds the fields to change. DueDate applies only when SetDueDate
// is true so that a due date can be cleared.
type CasePatch struct {
	Title       *string
	Type        *string
	Description *string
	SetDueDate  bool
	DueDate     *time.Time
}

func (s *Service) ListCases(ctx context.Context, rc *authz.RequestContext, companyID string, filter model.CaseFilter) ([]model.Case, int, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return nil, 0, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperr.BadRequest("invalid_status", "")
	}
	if err := s.ensureCompany(ctx, sc, companyID); err != nil {
		return nil, 0, err
	}
	out, total, err := s.store.ListCases(ctx, sc.tenantID, companyID, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list cases: %w", err)
	}
	if out == nil {
		out = []model.Case{}
	}
	return out, total, nil
}

func (s *Service) CreateCase(ctx context.Context, rc *authz.RequestContext, companyID string, in CaseInput) (model.Case, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.Case{}, err
	}
	title, err := required(in.Title, "title_required")
	if err != nil {
		return model.Case{}, err
	}
	caseType := optional(in.Type)
	if caseType == "" {
		caseType = defaultCaseType
	}
	if err := s.ensureCompany(ctx, sc, companyID); err != nil {
		return model.Case{}, err
	}
	responsible := optional(in.ResponsibleUserID)
	if err := s.ensureTenantUser(ctx, sc, responsible); err != nil {
		return model.Case{}, err
	}

	first := model.CaseEvent{
		ActorUserID: sc.actorID,
		Type:        model.EventStatusChange,
		Payload:     map[string]any{"from": nil, "to": string(model.CaseOpen)},
	}
	if comment := optional(in.Comment); comment != "" {
		first.Type = model.EventComment
		first.Payload = map[string]any{"comment": comment}
	}
	c, err := s.store.CreateCase(ctx, model.Case{
		TenantID:          sc.tenantID,
		CompanyID:         companyID,
		Title:             title,
		Type:              caseType,
		Description:       optional(in.Description),
		Status:            model.CaseOpen,
		ResponsibleUserID: responsible,
		DueDate:           in.DueDate,
	}, first)
	if err != nil {
		return model.Case{}, notFound(err, ErrCompanyNotFound, "create case")
	}
	s.record(ctx, sc, "case.create", "case", c.ID, map[string]string{"company_id": companyID})
	return c, nil
}

func (s *Service) GetCase(ctx context.Context, rc *authz.RequestContext, companyID, id string) (model.Case, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.Case{}, err
	}
	if err := s.ensureCompany(ctx, sc, companyID); err != nil {
		return model.Case{}, err
	}
	c, err := s.store.GetCase(ctx, sc.tenantID, companyID, id)
	if err != nil {
		return model.Case{}, notFound(err, ErrCaseNotFound, "get case")
	}
	return c, nil
}

func (s *Service) UpdateCase(ctx context.Context, rc *authz.RequestContext, companyID, id string, patch CasePatch) (model.Case, error) {
	if patch.Title == nil && patch.Type == nil && patch.Description == nil && !patch.SetDueDate {
		return model.Case{}, ErrNoFieldsToUpdate
	}
	c, err := s.GetCase(ctx, rc, companyID, id)
	if err != nil {
		return model.Case{}, err
	}
	if patch.Title != nil {
		if c.Title, err = required(*patch.Title, "title_required"); err != nil {
			return model.Case{}, err
		}
	}
	if patch.Type != nil {
		if c.Type, err = required(*patch.Type, "type_required"); err != nil {
			return model.Case{}, err
		}
	}
	if patch.Description != nil {
		c.Description = optional(*patch.Description)
	}
	if patch.SetDueDate {
		c.DueDate = patch.DueDate
	}
	return s.saveCase(ctx, rc, c, nil, "case.update")
}

// ChangeStatus moves the case to status. Terminal cases only accept their
// current status.
func (s *Service) ChangeStatus(ctx context.Context, rc *authz.RequestContext, companyID, id string, status model.CaseStatus) (model.Case, error) {
	if status == "" {
		return model.Case{}, apperr.BadRequest("status_required", "")
	}
	if !status.Valid() {
		return model.Case{}, apperr.BadRequest("invalid_status", "")
	}
	c, err := s.GetCase(ctx, rc, companyID, id)
	if err != nil {
		return model.Case{}, err
	}
	if c.Status.Terminal() && status != c.Status {
		return model.Case{}, apperr.BadRequest("invalid_status_transition", "")
	}
	from := c.Status
	c.Status = status
	ev := &model.CaseEvent{
		ActorUserID: rc.UserID(),
		Type:        model.EventStatusChange,
		Payload:     map[string]any{"from": string(from), "to": string(status)},
	}
	return s.saveCase(ctx, rc, c, ev, "case.status_change")
}

// Assign sets or clears the responsible user.
func (s *Service) Assign(ctx context.Context, rc *authz.RequestContext, companyID, id, userID string) (model.Case, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.Case{}, err
	}
	c, err := s.GetCase(ctx, rc, companyID, id)
	if err != nil {
		return model.Case{}, err
	}
	userID = optional(userID)
	if err := s.ensureTenantUser(ctx, sc, userID); err != nil {
		return model.Case{}, err
	}
	c.ResponsibleUserID = userID
	var responsible any
	if userID != "" {
		responsible = userID
	}
	ev := &model.CaseEvent{
		ActorUserID: sc.actorID,
		Type:        model.EventAssignment,
		Payload:     map[string]any{"responsible_user_id": responsible},
	}
	return s.saveCase(ctx, rc, c, ev, "case.assign")
}

func (s *Service) ListEvents(ctx context.Context, rc *authz.RequestContext, companyID, caseID string) ([]model.CaseEvent, error) {
	c, err := s.GetCase(ctx, rc, companyID, caseID)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListCaseEvents(ctx, c.TenantID, companyID, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list case events: %w", err)
	}
	if out == nil {
		out = []model.CaseEvent{}
	}
	return out, nil
}

func (s *Service) AddComment(ctx context.Context, rc *authz.RequestContext, companyID, caseID, comment string) (model.CaseEvent, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.CaseEvent{}, err
	}
	text, err := required(comment, "comment_required")
	if err != nil {
		return model.CaseEvent{}, err
	}
	c, err := s.GetCase(ctx, rc, companyID, caseID)
	if err != nil {
		return model.CaseEvent{}, err
	}
	ev, err := s.store.AppendCaseEvent(ctx, model.CaseEvent{
		TenantID:    sc.tenantID,
		CompanyID:   companyID,
		CaseID:      c.ID,
		ActorUserID: sc.actorID,
		Type:        model.EventComment,
		Payload:     map[string]any{"comment": text},
	})
	if err != nil {
		return model.CaseEvent{}, notFound(err, ErrCaseNotFound, "append case event")
	}
	return ev, nil
}

func (s *Service) ensureTenantUser(ctx context.Context, sc scope, userID string) error {
	if userID == "" {
		return nil
	}
	_, err := s.store.GetUser(ctx, sc.tenantID, userID)
	if errors.Is(err, model.ErrNotFound) {
		return apperr.NotFound("user_not_found", "")
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	return nil
}

func (s *Service) saveCase(ctx context.Context, rc *authz.RequestContext, c model.Case, ev *model.CaseEvent, action string) (model.Case, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.Case{}, err
	}
	saved, err := s.store.UpdateCase(ctx, c, ev)
	if err != nil {
		return model.Case{}, notFound(err, ErrCaseNotFound, "update case")
	}
	s.record(ctx, sc, action, "case", saved.ID, map[string]string{
		"company_id": saved.CompanyID,
		"status":     string(saved.Status),
	})
	return saved, nil
}
