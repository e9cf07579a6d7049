package authz

import (
	"context"
	"sync"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/model"
)

// TenantMode records how the tenant context of a request was established.
type TenantMode string

const (
	ModeNone              TenantMode = "none"
	ModeTenant            TenantMode = "tenant_context"
	ModePlatform          TenantMode = "platform_context"
	ModePlatformNoContext TenantMode = "platform_no_context"
	ModeHeader            TenantMode = "header_context"
)

// RequestContext is the per-request authorization state: identity, resolved
// tenant and the decision caches. Values are never mutated after
// construction; WithIdentity and WithTenant return new values. A fresh
// RequestContext must be created for every request.
type RequestContext struct {
	user     *model.User
	tenantID string
	mode     TenantMode
	resolved bool
	cache    *decisionCache
}

// NewRequestContext returns an anonymous context with empty caches.
func NewRequestContext() *RequestContext {
	return &RequestContext{mode: ModeNone, cache: newDecisionCache()}
}

// WithIdentity binds a user. The decision caches are replaced and the tenant
// is cleared so that it is resolved again for the new identity.
func (rc *RequestContext) WithIdentity(user model.User) *RequestContext {
	u := user
	return &RequestContext{user: &u, mode: ModeNone, cache: newDecisionCache()}
}

// WithTenant fixes the tenant context for the current identity.
func (rc *RequestContext) WithTenant(tenantID string, mode TenantMode) *RequestContext {
	out := *rc
	out.tenantID = tenantID
	out.mode = mode
	out.resolved = true
	return &out
}

// User returns the authenticated user, if any.
func (rc *RequestContext) User() (model.User, bool) {
	if rc == nil || rc.user == nil {
		return model.User{}, false
	}
	return *rc.user, true
}

// Authenticated reports whether an identity is bound.
func (rc *RequestContext) Authenticated() bool {
	return rc != nil && rc.user != nil
}

// UserID returns the bound user id or "".
func (rc *RequestContext) UserID() string {
	if rc == nil || rc.user == nil {
		return ""
	}
	return rc.user.ID
}

// TenantID returns the resolved tenant, "" when undefined.
func (rc *RequestContext) TenantID() string {
	if rc == nil {
		return ""
	}
	return rc.tenantID
}

func (rc *RequestContext) Mode() TenantMode {
	if rc == nil {
		return ModeNone
	}
	return rc.mode
}

// TenantResolved reports whether tenant resolution ran for this identity.
func (rc *RequestContext) TenantResolved() bool {
	return rc != nil && rc.resolved
}

// RequireTenant returns the tenant id or ErrTenantContextRequired.
func (rc *RequestContext) RequireTenant() (string, error) {
	if id := rc.TenantID(); id != "" {
		return id, nil
	}
	return "", apperr.ErrTenantContextRequired
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext extracts the RequestContext attached by the HTTP layer.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}

type scopedKey struct {
	userID   string
	tenantID string
}

// decisionCache memoizes RBAC and ACL lookups for one identity in one request.
type decisionCache struct {
	mu          sync.Mutex
	superAdmin  map[string]bool
	permissions map[scopedKey]map[string]struct{}
	companies   map[scopedKey]map[string]struct{}
}

func newDecisionCache() *decisionCache {
	return &decisionCache{
		superAdmin:  make(map[string]bool),
		permissions: make(map[scopedKey]map[string]struct{}),
		companies:   make(map[scopedKey]map[string]struct{}),
	}
}

func (rc *RequestContext) decisions() *decisionCache {
	if rc == nil {
		return nil
	}
	return rc.cache
}

func (c *decisionCache) superAdminFor(userID string) (bool, bool) {
	if c == nil {
		return false, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.superAdmin[userID]
	return v, ok
}

func (c *decisionCache) setSuperAdmin(userID string, v bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.superAdmin[userID] = v
	c.mu.Unlock()
}

func (c *decisionCache) permissionsFor(k scopedKey) (map[string]struct{}, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.permissions[k]
	return v, ok
}

func (c *decisionCache) setPermissions(k scopedKey, v map[string]struct{}) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.permissions[k] = v
	c.mu.Unlock()
}

func (c *decisionCache) companiesFor(k scopedKey) (map[string]struct{}, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.companies[k]
	return v, ok
}

func (c *decisionCache) setCompanies(k scopedKey, v map[string]struct{}) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.companies[k] = v
	c.mu.Unlock()
}

func (c *decisionCache) dropCompanies(k scopedKey) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.companies, k)
	c.mu.Unlock()
}
