// Package cache holds the short-lived caches and throttles shared by the
// API processes.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/model"
)

const (
	defaultTenantEntries = 1024
	defaultTenantTTL     = 30 * time.Second
)

// TenantDirectory caches successful tenant lookups used by the Super Admin
// override. Misses are never cached so a newly created tenant is visible
// immediately.
type TenantDirectory struct {
	next  authz.TenantDirectory
	cache *lru.LRU[string, model.Tenant]
}

// NewTenantDirectory wraps next with an expiring LRU.
func NewTenantDirectory(next authz.TenantDirectory, size int, ttl time.Duration) *TenantDirectory {
	if size <= 0 {
		size = defaultTenantEntries
	}
	if ttl <= 0 {
		ttl = defaultTenantTTL
	}
	return &TenantDirectory{
		next:  next,
		cache: lru.NewLRU[string, model.Tenant](size, nil, ttl),
	}
}

func (d *TenantDirectory) GetTenant(ctx context.Context, id string) (model.Tenant, error) {
	if t, ok := d.cache.Get(id); ok {
		return t, nil
	}
	t, err := d.next.GetTenant(ctx, id)
	if err != nil {
		return model.Tenant{}, err
	}
	d.cache.Add(id, t)
	return t, nil
}

// Invalidate drops a tenant after it changed.
func (d *TenantDirectory) Invalidate(id string) {
	d.cache.Remove(id)
}

// Len reports the number of cached tenants.
func (d *TenantDirectory) Len() int { return d.cache.Len() }
