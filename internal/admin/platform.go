package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/auth"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/model"
)

// PlatformStore is the persistence collaborator of Platform.
type PlatformStore interface {
	authz.SeedStore
	GetTenant(ctx context.Context, id string) (model.Tenant, error)
	CreateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error)
	UpdateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error)
	TenantUsage(ctx context.Context, tenantID string) (model.TenantUsage, error)
	FindRoleByName(ctx context.Context, name, tenantID string) (model.Role, error)
	AssignRole(ctx context.Context, userID, roleID string) error
}

var ErrTenantNotFound = apperr.NotFound("tenant_not_found", "Tenant no encontrado")

// Platform manages tenants across the installation. Callers must already
// have passed the platform admin requirement.
type Platform struct {
	store   PlatformStore
	invites Inviter
	audit   authz.Auditor
	changed func(tenantID string)
}

// PlatformOption configures Platform.
type PlatformOption func(*Platform)

// OnTenantChange registers a callback run after a tenant is updated.
func OnTenantChange(fn func(tenantID string)) PlatformOption {
	return func(p *Platform) { p.changed = fn }
}

// NewPlatform wires platform administration.
func NewPlatform(store PlatformStore, invites Inviter, auditor authz.Auditor, opts ...PlatformOption) (*Platform, error) {
	if store == nil {
		return nil, errors.New("admin: platform store is required")
	}
	if invites == nil {
		return nil, errors.New("admin: inviter is required")
	}
	p := &Platform{store: store, invites: invites, audit: auditor}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// TenantSummary is a tenant with its usage counters.
type TenantSummary struct {
	model.Tenant
	Metrics model.TenantUsage `json:"metrics"`
}

// TenantQuery narrows tenant listings.
type TenantQuery struct {
	Query  string
	Status model.TenantStatus
	Limit  int
	Offset int
}

// TenantInput is the create payload. AdminEmail, when set, invites the
// first tenant administrator.
type TenantInput struct {
	Name       string
	Status     model.TenantStatus
	AdminEmail string
}

// TenantPatch holds the fields to change; nil means untouched.
type TenantPatch struct {
	Name   *string
	Status *model.TenantStatus
}

// CreatedTenant carries the new tenant and the optional admin invitation.
type CreatedTenant struct {
	Tenant      model.Tenant
	AdminInvite *auth.InviteResult
}

func (p *Platform) ListTenants(ctx context.Context, q TenantQuery) ([]TenantSummary, int, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, 0, apperr.BadRequest("invalid_status", "")
	}
	tenants, err := p.store.ListTenants(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	needle := strings.ToLower(strings.TrimSpace(q.Query))
	var matched []model.Tenant
	for _, t := range tenants {
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(t.Name), needle) {
			continue
		}
		matched = append(matched, t)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	total := len(matched)
	if q.Offset > 0 {
		matched = matched[min(q.Offset, len(matched)):]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	out := make([]TenantSummary, 0, len(matched))
	for _, t := range matched {
		usage, err := p.store.TenantUsage(ctx, t.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("tenant usage: %w", err)
		}
		out = append(out, TenantSummary{Tenant: t, Metrics: usage})
	}
	return out, total, nil
}

func (p *Platform) GetTenant(ctx context.Context, id string) (TenantSummary, error) {
	t, err := p.tenant(ctx, id)
	if err != nil {
		return TenantSummary{}, err
	}
	usage, err := p.store.TenantUsage(ctx, t.ID)
	if err != nil {
		return TenantSummary{}, fmt.Errorf("tenant usage: %w", err)
	}
	return TenantSummary{Tenant: t, Metrics: usage}, nil
}

// CreateTenant stores a tenant, seeds its roles and optionally invites its
// first administrator.
func (p *Platform) CreateTenant(ctx context.Context, rc *authz.RequestContext, in TenantInput) (CreatedTenant, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return CreatedTenant{}, apperr.BadRequest("name_required", "")
	}
	status := in.Status
	if status == "" {
		status = model.TenantActive
	}
	if !status.Valid() {
		return CreatedTenant{}, apperr.BadRequest("invalid_status", "")
	}
	t, err := p.store.CreateTenant(ctx, model.Tenant{Name: name, Status: status})
	if errors.Is(err, model.ErrConflict) {
		return CreatedTenant{}, apperr.Conflict("tenant_name_conflict", "")
	}
	if err != nil {
		return CreatedTenant{}, fmt.Errorf("create tenant: %w", err)
	}
	if _, err := authz.SeedTenantRoles(ctx, p.store, t.ID); err != nil {
		return CreatedTenant{}, err
	}
	out := CreatedTenant{Tenant: t}
	if email := strings.TrimSpace(in.AdminEmail); email != "" {
		res, err := p.invites.Invite(ctx, t.ID, email)
		if err != nil {
			return CreatedTenant{}, err
		}
		role, err := p.store.FindRoleByName(ctx, authz.RoleTenantAdmin, t.ID)
		if err != nil {
			return CreatedTenant{}, fmt.Errorf("lookup tenant admin role: %w", err)
		}
		if err := p.store.AssignRole(ctx, res.User.ID, role.ID); err != nil {
			return CreatedTenant{}, fmt.Errorf("assign tenant admin role: %w", err)
		}
		out.AdminInvite = &res
	}
	p.record(ctx, rc, t.ID, "tenant.create", map[string]string{"name": t.Name, "status": string(t.Status)})
	return out, nil
}

func (p *Platform) UpdateTenant(ctx context.Context, rc *authz.RequestContext, id string, patch TenantPatch) (model.Tenant, error) {
	if patch.Name == nil && patch.Status == nil {
		return model.Tenant{}, apperr.BadRequest("no_fields_to_update", "")
	}
	t, err := p.tenant(ctx, id)
	if err != nil {
		return model.Tenant{}, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return model.Tenant{}, apperr.BadRequest("name_required", "")
		}
		t.Name = name
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return model.Tenant{}, apperr.BadRequest("invalid_status", "")
		}
		t.Status = *patch.Status
	}
	saved, err := p.store.UpdateTenant(ctx, t)
	if errors.Is(err, model.ErrConflict) {
		return model.Tenant{}, apperr.Conflict("tenant_name_conflict", "")
	}
	if errors.Is(err, model.ErrNotFound) {
		return model.Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return model.Tenant{}, fmt.Errorf("update tenant: %w", err)
	}
	if p.changed != nil {
		p.changed(saved.ID)
	}
	p.record(ctx, rc, saved.ID, "tenant.update", map[string]string{"name": saved.Name, "status": string(saved.Status)})
	return saved, nil
}

func (p *Platform) tenant(ctx context.Context, id string) (model.Tenant, error) {
	t, err := p.store.GetTenant(ctx, strings.TrimSpace(id))
	if errors.Is(err, model.ErrNotFound) {
		return model.Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return model.Tenant{}, fmt.Errorf("lookup tenant: %w", err)
	}
	return t, nil
}

func (p *Platform) record(ctx context.Context, rc *authz.RequestContext, tenantID, action string, meta map[string]string) {
	if p.audit == nil {
		return
	}
	p.audit.LogAction(ctx, model.AuditEntry{
		TenantID:    tenantID,
		ActorUserID: rc.UserID(),
		Action:      action,
		EntityType:  "client",
		EntityID:    tenantID,
		Metadata:    meta,
	})
}
