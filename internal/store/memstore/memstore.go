// Package memstore is an in-process implementation of every persistence
// collaborator. It backs tests and single-node development runs.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
)

// Store keeps all rows in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	tenants     map[string]model.Tenant
	users       map[string]model.User
	invitations map[string]model.Invitation
	permissions map[string]model.Permission
	roles       map[string]model.Role
	rolePerms   map[string]map[string]struct{}
	userRoles   map[string]map[string]struct{}
	access      map[accessKey]model.CompanyAccess
	companies   map[string]model.Company
	employees   map[string]model.Employee
	cases       map[string]model.Case
	events      []model.CaseEvent
	documents   map[string]model.Document
	extractions []model.DocumentExtraction
	audit       []model.AuditEntry

	now func() time.Time
}

type accessKey struct {
	userID    string
	companyID string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		tenants:     make(map[string]model.Tenant),
		users:       make(map[string]model.User),
		invitations: make(map[string]model.Invitation),
		permissions: make(map[string]model.Permission),
		roles:       make(map[string]model.Role),
		rolePerms:   make(map[string]map[string]struct{}),
		userRoles:   make(map[string]map[string]struct{}),
		access:      make(map[accessKey]model.CompanyAccess),
		companies:   make(map[string]model.Company),
		employees:   make(map[string]model.Employee),
		cases:       make(map[string]model.Case),
		documents:   make(map[string]model.Document),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Tenants

func (s *Store) GetTenant(_ context.Context, id string) (model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return model.Tenant{}, model.ErrNotFound
	}
	return t, nil
}

func (s *Store) ListTenants(_ context.Context) ([]model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateTenant(_ context.Context, t model.Tenant) (model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tenants {
		if strings.EqualFold(existing.Name, t.Name) {
			return model.Tenant{}, model.ErrConflict
		}
	}
	if t.ID == "" {
		t.ID = ids.NewEntityID()
	}
	if t.Status == "" {
		t.Status = model.TenantActive
	}
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	s.tenants[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTenant(_ context.Context, t model.Tenant) (model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tenants[t.ID]
	if !ok {
		return model.Tenant{}, model.ErrNotFound
	}
	for id, existing := range s.tenants {
		if id != t.ID && strings.EqualFold(existing.Name, t.Name) {
			return model.Tenant{}, model.ErrConflict
		}
	}
	t.CreatedAt = current.CreatedAt
	t.UpdatedAt = s.now()
	s.tenants[t.ID] = t
	return t, nil
}

func (s *Store) TenantUsage(_ context.Context, tenantID string) (model.TenantUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var u model.TenantUsage
	for _, c := range s.companies {
		if c.TenantID == tenantID {
			u.CompanyCount++
		}
	}
	for _, usr := range s.users {
		if usr.TenantID == tenantID {
			u.UserCount++
		}
	}
	return u, nil
}

// Users

func (s *Store) GetUser(_ context.Context, tenantID, userID string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok || u.TenantID != tenantID {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, tenantID, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.TenantID == tenantID && u.Email == email {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (s *Store) ListActiveUsersByEmail(_ context.Context, email string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.User
	for _, u := range s.users {
		if u.Email == email && u.Status == model.UserActive {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListUsers(_ context.Context, tenantID string, limit, offset int) ([]model.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []model.User
	for _, u := range s.users {
		if u.TenantID == tenantID {
			all = append(all, u)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })
	return page(all, limit, offset), len(all), nil
}

func (s *Store) CreateUser(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[u.TenantID]; !ok {
		return model.User{}, model.ErrNotFound
	}
	for _, existing := range s.users {
		if existing.TenantID == u.TenantID && existing.Email == u.Email {
			return model.User{}, model.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = ids.NewEntityID()
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[u.ID]
	if !ok || current.TenantID != u.TenantID {
		return model.User{}, model.ErrNotFound
	}
	u.CreatedAt = current.CreatedAt
	u.UpdatedAt = s.now()
	s.users[u.ID] = u
	return u, nil
}

// Invitations

func (s *Store) CreateInvitation(_ context.Context, inv model.Invitation) (model.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == "" {
		inv.ID = ids.NewEntityID()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	s.invitations[inv.ID] = inv
	return inv, nil
}

func (s *Store) GetInvitationByHash(_ context.Context, tenantID, tokenHash string) (model.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invitations {
		if inv.TenantID == tenantID && inv.TokenHash == tokenHash {
			return inv, nil
		}
	}
	return model.Invitation{}, model.ErrNotFound
}

func (s *Store) MarkInvitationUsed(_ context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return model.ErrNotFound
	}
	inv.UsedAt = &usedAt
	s.invitations[id] = inv
	return nil
}

func page[T any](all []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []T{}
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
