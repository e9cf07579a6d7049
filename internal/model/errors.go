package model

import "errors"

// Storage sentinels returned by the persistence collaborators.
var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

// TenantUsage summarizes a tenant for platform listings.
type TenantUsage struct {
	CompanyCount int `json:"company_count"`
	UserCount    int `json:"user_count"`
}
