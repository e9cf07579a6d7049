// Package admin implements tenant administration (users, roles and company
// access grants) and platform administration of tenants.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/auth"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/model"
)

// Inviter issues invitation tokens.
type Inviter interface {
	Invite(ctx context.Context, tenantID, email string) (auth.InviteResult, error)
}

// TenantStore is the persistence collaborator of TenantAdmin.
type TenantStore interface {
	ListUsers(ctx context.Context, tenantID string, limit, offset int) ([]model.User, int, error)
	GetUser(ctx context.Context, tenantID, userID string) (model.User, error)
	UpdateUser(ctx context.Context, user model.User) (model.User, error)

	ListRoles(ctx context.Context, tenantID string) ([]model.Role, error)
	GetRole(ctx context.Context, id string) (model.Role, error)
	FindRoleByName(ctx context.Context, name, tenantID string) (model.Role, error)
	ListUserRoles(ctx context.Context, userID string) ([]model.Role, error)
	ReplaceUserRoles(ctx context.Context, userID string, roleIDs []string) error

	GetCompany(ctx context.Context, tenantID, id string) (model.Company, error)
	GetCompanyAccess(ctx context.Context, tenantID, userID, companyID string) (model.CompanyAccess, error)
	ListCompanyAccess(ctx context.Context, tenantID, companyID string) ([]model.CompanyAccess, error)
	DeleteCompanyAccess(ctx context.Context, tenantID, userID, companyID string) error
}

var (
	ErrUserNotFound = apperr.NotFound("user_not_found", "")
	ErrRoleNotFound = apperr.NotFound("role_not_found", "")
)

// TenantAdmin manages the users and company grants of the resolved tenant.
type TenantAdmin struct {
	store   TenantStore
	invites Inviter
	rbac    *authz.RBAC
	acl     *authz.ACL
	audit   authz.Auditor
}

// NewTenantAdmin wires the tenant administration service.
func NewTenantAdmin(store TenantStore, invites Inviter, rbac *authz.RBAC, acl *authz.ACL, auditor authz.Auditor) (*TenantAdmin, error) {
	switch {
	case store == nil:
		return nil, errors.New("admin: store is required")
	case invites == nil:
		return nil, errors.New("admin: inviter is required")
	case rbac == nil:
		return nil, errors.New("admin: rbac is required")
	case acl == nil:
		return nil, errors.New("admin: acl is required")
	}
	return &TenantAdmin{store: store, invites: invites, rbac: rbac, acl: acl, audit: auditor}, nil
}

// UserSummary is a tenant user together with its roles.
type UserSummary struct {
	model.User
	Roles []model.Role `json:"roles"`
}

// UserPage is one page of tenant users.
type UserPage struct {
	Items   []UserSummary `json:"items"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

// RoleSelection names roles by id or by name, never both. A nil slice means
// the field was absent.
type RoleSelection struct {
	IDs   []string
	Names []string
}

func (s RoleSelection) empty() bool { return s.IDs == nil && s.Names == nil }

// ListUsers pages the tenant's users. Without page and perPage every user
// is returned.
func (a *TenantAdmin) ListUsers(ctx context.Context, rc *authz.RequestContext, page, perPage int) (UserPage, error) {
	tenantID, err := rc.RequireTenant()
	if err != nil {
		return UserPage{}, err
	}
	paged := page != 0 || perPage != 0
	if paged && (page < 1 || perPage < 1 || perPage > 200) {
		return UserPage{}, apperr.BadRequest("invalid_pagination", "")
	}
	limit, offset := 0, 0
	if paged {
		limit, offset = perPage, (page-1)*perPage
	}
	users, total, err := a.store.ListUsers(ctx, tenantID, limit, offset)
	if err != nil {
		return UserPage{}, fmt.Errorf("list users: %w", err)
	}
	out := UserPage{Items: make([]UserSummary, 0, len(users)), Total: total, Page: 1, PerPage: max(total, 1)}
	if paged {
		out.Page, out.PerPage = page, perPage
	}
	for _, u := range users {
		roles, err := a.store.ListUserRoles(ctx, u.ID)
		if err != nil {
			return UserPage{}, fmt.Errorf("list user roles: %w", err)
		}
		out.Items = append(out.Items, UserSummary{User: u, Roles: roles})
	}
	return out, nil
}

// InviteUser invites email into the tenant and optionally assigns roles.
func (a *TenantAdmin) InviteUser(ctx context.Context, rc *authz.RequestContext, email string, sel RoleSelection) (auth.InviteResult, []model.Role, error) {
	tenantID, err := rc.RequireTenant()
	if err != nil {
		return auth.InviteResult{}, nil, err
	}
	if strings.TrimSpace(email) == "" {
		return auth.InviteResult{}, nil, apperr.BadRequest("email_required", "")
	}
	if sel.IDs != nil && sel.Names != nil {
		return auth.InviteResult{}, nil, apperr.BadRequest("roles_payload_conflict", "")
	}
	var roles []model.Role
	if !sel.empty() {
		if roles, err = a.resolveRoles(ctx, rc, tenantID, sel); err != nil {
			return auth.InviteResult{}, nil, err
		}
	}
	res, err := a.invites.Invite(ctx, tenantID, email)
	if err != nil {
		return auth.InviteResult{}, nil, err
	}
	if len(roles) > 0 {
		if err := a.store.ReplaceUserRoles(ctx, res.User.ID, roleIDs(roles)); err != nil {
			return auth.InviteResult{}, nil, fmt.Errorf("assign roles: %w", err)
		}
	}
	a.record(ctx, rc, tenantID, "user.invite", "user", res.User.ID, map[string]string{"email": res.User.Email})
	return res, roles, nil
}

func (a *TenantAdmin) DisableUser(ctx context.Context, rc *authz.RequestContext, userID string) (model.User, error) {
	return a.setStatus(ctx, rc, userID, model.UserDisabled)
}

// EnableUser reactivates a user. Invited users without a credential must
// activate their invitation instead.
func (a *TenantAdmin) EnableUser(ctx context.Context, rc *authz.RequestContext, userID string) (model.User, error) {
	return a.setStatus(ctx, rc, userID, model.UserActive)
}

func (a *TenantAdmin) setStatus(ctx context.Context, rc *authz.RequestContext, userID string, status model.UserStatus) (model.User, error) {
	tenantID, err := rc.RequireTenant()
	if err != nil {
		return model.User{}, err
	}
	user, err := a.tenantUser(ctx, tenantID, userID)
	if err != nil {
		return model.User{}, err
	}
	if status == model.UserActive && user.Status == model.UserInvited && user.PasswordHash == "" {
		return model.User{}, apperr.BadRequest("user_not_activated", "")
	}
	user.Status = status
	saved, err := a.store.UpdateUser(ctx, user)
	if err != nil {
		return model.User{}, fmt.Errorf("update user: %w", err)
	}
	action := "user.enable"
	if status == model.UserDisabled {
		action = "user.disable"
	}
	a.record(ctx, rc, tenantID, action, "user", saved.ID, nil)
	return saved, nil
}

// ReplaceRoles sets the user's roles to exactly the selection.
func (a *TenantAdmin) ReplaceRoles(ctx context.Context, rc *authz.RequestContext, userID string, sel RoleSelection) ([]model.Role, error) {
	tenantID, err := rc.RequireTenant()
	if err != nil {
		return nil, err
	}
	if sel.empty() {
		return nil, apperr.BadRequest("roles_required", "")
	}
	if sel.IDs != nil && sel.Names != nil {
		return nil, apperr.BadRequest("roles_payload_conflict", "")
	}
	user, err := a.tenantUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	roles, err := a.resolveRoles(ctx, rc, tenantID, sel)
	if err != nil {
		return nil, err
	}
	if err := a.store.ReplaceUserRoles(ctx, user.ID, roleIDs(roles)); err != nil {
		return nil, fmt.Errorf("replace roles: %w", err)
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	a.record(ctx, rc, tenantID, "user.roles_replace", "user", user.ID, map[string]string{"roles": strings.Join(names, ",")})
	return roles, nil
}

// ListRoles returns the tenant's roles and the platform roles.
func (a *TenantAdmin) ListRoles(ctx context.Context, rc *authz.RequestContext) ([]model.Role, error) {
	tenantID, err := rc.RequireTenant()
	if err != nil {
		return nil, err
	}
	roles, err := a.store.ListRoles(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// resolveRoles maps the selection to roles of the tenant. Platform roles
// resolve only for a Super Admin actor.
func (a *TenantAdmin) resolveRoles(ctx context.Context, rc *authz.RequestContext, tenantID string, sel RoleSelection) ([]model.Role, error) {
	super, err := a.rbac.IsSuperAdmin(ctx, rc, rc.UserID())
	if err != nil {
		return nil, err
	}
	var roles []model.Role
	lookup := func(role model.Role, err error) error {
		if errors.Is(err, model.ErrNotFound) {
			return ErrRoleNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup role: %w", err)
		}
		switch role.Scope {
		case model.ScopeTenant:
			if role.TenantID != tenantID {
				return ErrRoleNotFound
			}
		case model.ScopePlatform:
			if !super {
				return ErrRoleNotFound
			}
		}
		roles = append(roles, role)
		return nil
	}
	for _, id := range sel.IDs {
		if err := lookup(a.store.GetRole(ctx, strings.TrimSpace(id))); err != nil {
			return nil, err
		}
	}
	for _, name := range sel.Names {
		if err := lookup(a.store.FindRoleByName(ctx, strings.TrimSpace(name), tenantID)); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

func (a *TenantAdmin) tenantUser(ctx context.Context, tenantID, userID string) (model.User, error) {
	user, err := a.store.GetUser(ctx, tenantID, strings.TrimSpace(userID))
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func (a *TenantAdmin) record(ctx context.Context, rc *authz.RequestContext, tenantID, action, entityType, entityID string, meta map[string]string) {
	if a.audit == nil {
		return
	}
	a.audit.LogAction(ctx, model.AuditEntry{
		TenantID:    tenantID,
		ActorUserID: rc.UserID(),
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Metadata:    meta,
	})
}

func roleIDs(roles []model.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.ID)
	}
	return out
}
