package memstore

import (
	"context"
	"sort"

	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
)

func (s *Store) UserHasPlatformRole(_ context.Context, userID, roleName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasPlatformRole(userID, roleName), nil
}

func (s *Store) hasPlatformRole(userID, roleName string) bool {
	for roleID := range s.userRoles[userID] {
		r, ok := s.roles[roleID]
		if ok && r.Scope == model.ScopePlatform && r.TenantID == "" && r.Name == roleName {
			return true
		}
	}
	return false
}

// grantable reports whether the user may hold a company grant in tenantID:
// members of the tenant and Super Admins acting on it.
func (s *Store) grantable(userID, tenantID string) bool {
	u, ok := s.users[userID]
	if !ok {
		return false
	}
	return u.TenantID == tenantID || s.hasPlatformRole(userID, model.SuperAdminRole)
}

func (s *Store) ListPermissionCodes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.permissions))
	for code := range s.permissions {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ListUserPermissionCodes(_ context.Context, userID, tenantID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	for roleID := range s.userRoles[userID] {
		r, ok := s.roles[roleID]
		if !ok {
			continue
		}
		if r.Scope != model.ScopePlatform && !(r.Scope == model.ScopeTenant && r.TenantID == tenantID) {
			continue
		}
		for code := range s.rolePerms[roleID] {
			if _, known := s.permissions[code]; known {
				set[code] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) UpsertPermission(_ context.Context, code, description string) (model.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permissions[code]
	if !ok {
		p = model.Permission{ID: ids.NewEntityID(), Code: code}
	}
	p.Description = description
	s.permissions[code] = p
	return p, nil
}

func (s *Store) EnsureRole(_ context.Context, role model.Role) (model.Role, error) {
	if err := role.Validate(); err != nil {
		return model.Role{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == role.Name && r.Scope == role.Scope && r.TenantID == role.TenantID {
			return s.withPermissions(r), nil
		}
	}
	role.ID = ids.NewEntityID()
	role.Permissions = nil
	s.roles[role.ID] = role
	return role, nil
}

func (s *Store) SetRolePermissions(_ context.Context, roleID string, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return model.ErrNotFound
	}
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if _, ok := s.permissions[c]; !ok {
			return model.ErrNotFound
		}
		set[c] = struct{}{}
	}
	s.rolePerms[roleID] = set
	return nil
}

func (s *Store) GetRole(_ context.Context, id string) (model.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return model.Role{}, model.ErrNotFound
	}
	return s.withPermissions(r), nil
}

// FindRoleByName returns the tenant role of tenantID or the platform role
// with that name.
func (s *Store) FindRoleByName(_ context.Context, name, tenantID string) (model.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name != name {
			continue
		}
		if (r.Scope == model.ScopeTenant && r.TenantID == tenantID) || (r.Scope == model.ScopePlatform && r.TenantID == "") {
			return s.withPermissions(r), nil
		}
	}
	return model.Role{}, model.ErrNotFound
}

// ListRoles returns the tenant's roles plus every platform role.
func (s *Store) ListRoles(_ context.Context, tenantID string) ([]model.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Role
	for _, r := range s.roles {
		if r.Scope == model.ScopePlatform || r.TenantID == tenantID {
			out = append(out, s.withPermissions(r))
		}
	}
	sortRoles(out)
	return out, nil
}

func (s *Store) ListUserRoles(_ context.Context, userID string) ([]model.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Role
	for roleID := range s.userRoles[userID] {
		if r, ok := s.roles[roleID]; ok {
			out = append(out, s.withPermissions(r))
		}
	}
	sortRoles(out)
	return out, nil
}

func (s *Store) AssignRole(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return model.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return model.ErrNotFound
	}
	if s.userRoles[userID] == nil {
		s.userRoles[userID] = make(map[string]struct{})
	}
	s.userRoles[userID][roleID] = struct{}{}
	return nil
}

func (s *Store) ReplaceUserRoles(_ context.Context, userID string, roleIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return model.ErrNotFound
	}
	set := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		if _, ok := s.roles[id]; !ok {
			return model.ErrNotFound
		}
		set[id] = struct{}{}
	}
	s.userRoles[userID] = set
	return nil
}

// CountRBAC reports the number of permissions and roles.
func (s *Store) CountRBAC() (permissions, roles int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.permissions), len(s.roles)
}

func (s *Store) withPermissions(r model.Role) model.Role {
	codes := make([]string, 0, len(s.rolePerms[r.ID]))
	for c := range s.rolePerms[r.ID] {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	r.Permissions = codes
	return r
}

func sortRoles(roles []model.Role) {
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Scope != roles[j].Scope {
			return roles[i].Scope < roles[j].Scope
		}
		return roles[i].Name < roles[j].Name
	})
}
