package authz

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gestoria.cloud/internal/model"
)

// RBAC resolves permission codes for users. Results are memoized in the
// RequestContext passed to each call; a nil RequestContext disables caching.
type RBAC struct {
	store RoleStore
}

// NewRBAC constructs the RBAC service.
func NewRBAC(store RoleStore) (*RBAC, error) {
	if store == nil {
		return nil, errors.New("authz: role store is required")
	}
	return &RBAC{store: store}, nil
}

// IsSuperAdmin reports whether the user holds the platform "Super Admin" role.
func (s *RBAC) IsSuperAdmin(ctx context.Context, rc *RequestContext, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	cache := rc.decisions()
	if v, ok := cache.superAdminFor(userID); ok {
		return v, nil
	}
	ok, err := s.store.UserHasPlatformRole(ctx, userID, model.SuperAdminRole)
	if err != nil {
		return false, fmt.Errorf("super admin lookup: %w", err)
	}
	cache.setSuperAdmin(userID, ok)
	return ok, nil
}

// ResolvePermissions returns the user's permission codes scoped to tenantID.
// A Super Admin receives the whole catalog.
func (s *RBAC) ResolvePermissions(ctx context.Context, rc *RequestContext, userID, tenantID string) (map[string]struct{}, error) {
	key := scopedKey{userID: userID, tenantID: tenantID}
	cache := rc.decisions()
	if v, ok := cache.permissionsFor(key); ok {
		return v, nil
	}

	super, err := s.IsSuperAdmin(ctx, rc, userID)
	if err != nil {
		return nil, err
	}
	var codes []string
	if super {
		codes, err = s.store.ListPermissionCodes(ctx)
	} else {
		codes, err = s.store.ListUserPermissionCodes(ctx, userID, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	cache.setPermissions(key, set)
	return set, nil
}

// HasPermission evaluates code against the user's home tenant, never an
// override tenant.
func (s *RBAC) HasPermission(ctx context.Context, rc *RequestContext, user model.User, code string) (bool, error) {
	return s.HasAnyPermission(ctx, rc, user, code)
}

// HasAnyPermission is true when the user holds at least one of codes.
func (s *RBAC) HasAnyPermission(ctx context.Context, rc *RequestContext, user model.User, codes ...string) (bool, error) {
	if user.ID == "" || len(codes) == 0 {
		return false, nil
	}
	super, err := s.IsSuperAdmin(ctx, rc, user.ID)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}
	granted, err := s.ResolvePermissions(ctx, rc, user.ID, user.TenantID)
	if err != nil {
		return false, err
	}
	for _, code := range codes {
		if _, ok := granted[code]; ok {
			return true, nil
		}
	}
	return false, nil
}

// IsPlatformAdmin gates platform administration: the Super Admin role, or a
// role carrying the legacy platform.super_admin code.
func (s *RBAC) IsPlatformAdmin(ctx context.Context, rc *RequestContext, user model.User) (bool, error) {
	super, err := s.IsSuperAdmin(ctx, rc, user.ID)
	if err != nil || super {
		return super, err
	}
	granted, err := s.ResolvePermissions(ctx, rc, user.ID, user.TenantID)
	if err != nil {
		return false, err
	}
	_, ok := granted[PermLegacySuperAdmin]
	return ok, nil
}

// SortedCodes returns the set as a sorted slice.
func SortedCodes(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
