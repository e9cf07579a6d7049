package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantDisabled  TenantStatus = "disabled"
)

func (s TenantStatus) Valid() bool {
	switch s {
	case TenantActive, TenantSuspended, TenantDisabled:
		return true
	}
	return false
}

type UserStatus string

const (
	UserInvited  UserStatus = "invited"
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

type RoleScope string

const (
	ScopePlatform RoleScope = "platform"
	ScopeTenant   RoleScope = "tenant"
)

// SuperAdminRole is the name of the platform role that grants every permission.
const SuperAdminRole = "Super Admin"

type CompanyStatus string

const (
	CompanyActive   CompanyStatus = "active"
	CompanyInactive CompanyStatus = "inactive"
)

type EmployeeStatus string

const (
	EmployeeActive     EmployeeStatus = "active"
	EmployeeTerminated EmployeeStatus = "terminated"
)

func (s EmployeeStatus) Valid() bool {
	return s == EmployeeActive || s == EmployeeTerminated
}

type CaseStatus string

const (
	CaseOpen       CaseStatus = "open"
	CaseInProgress CaseStatus = "in_progress"
	CaseWaiting    CaseStatus = "waiting"
	CaseDone       CaseStatus = "done"
	CaseCancelled  CaseStatus = "cancelled"
)

func (s CaseStatus) Valid() bool {
	switch s {
	case CaseOpen, CaseInProgress, CaseWaiting, CaseDone, CaseCancelled:
		return true
	}
	return false
}

// Terminal statuses cannot transition to any other status.
func (s CaseStatus) Terminal() bool {
	return s == CaseDone || s == CaseCancelled
}

type CaseEventType string

const (
	EventComment      CaseEventType = "comment"
	EventStatusChange CaseEventType = "status_change"
	EventAssignment   CaseEventType = "assignment"
	EventAttachment   CaseEventType = "attachment"
)

type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "pending"
	DocumentProcessed DocumentStatus = "processed"
	DocumentArchived  DocumentStatus = "archived"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentPending, DocumentProcessed, DocumentArchived:
		return true
	}
	return false
}

type ExtractionStatus string

const (
	ExtractionSuccess ExtractionStatus = "success"
	ExtractionFailed  ExtractionStatus = "failed"
	ExtractionPartial ExtractionStatus = "partial"
)

func (s ExtractionStatus) Valid() bool {
	switch s {
	case ExtractionSuccess, ExtractionFailed, ExtractionPartial:
		return true
	}
	return false
}

// AccessLevel is the per-company ACL grade. The zero value is invalid so an
// unset level never satisfies a check.
type AccessLevel int

const (
	AccessViewer AccessLevel = iota + 1
	AccessOperator
	AccessManager
	AccessAdmin
)

var accessLevelNames = map[AccessLevel]string{
	AccessViewer:   "viewer",
	AccessOperator: "operator",
	AccessManager:  "manager",
	AccessAdmin:    "admin",
}

// ParseAccessLevel converts the wire name to a level.
func ParseAccessLevel(name string) (AccessLevel, error) {
	for lvl, n := range accessLevelNames {
		if n == name {
			return lvl, nil
		}
	}
	return 0, fmt.Errorf("unknown access level %q", name)
}

func (l AccessLevel) Valid() bool {
	_, ok := accessLevelNames[l]
	return ok
}

// Rank is the position in viewer=0 < operator=1 < manager=2 < admin=3.
func (l AccessLevel) Rank() int {
	if !l.Valid() {
		return -1
	}
	return int(l) - 1
}

// Satisfies reports whether l is at least want.
func (l AccessLevel) Satisfies(want AccessLevel) bool {
	return l.Valid() && want.Valid() && l.Rank() >= want.Rank()
}

func (l AccessLevel) String() string {
	if n, ok := accessLevelNames[l]; ok {
		return n
	}
	return "unknown"
}

func (l AccessLevel) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid access level %d", int(l))
	}
	return json.Marshal(l.String())
}

func (l *AccessLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	lvl, err := ParseAccessLevel(name)
	if err != nil {
		return err
	}
	*l = lvl
	return nil
}

// ErrRoleScope reports a scope/tenant pairing that violates the role invariant.
var ErrRoleScope = errors.New("role scope and tenant do not match")

// Validate enforces that tenant roles carry a tenant id and platform roles do not.
func (r Role) Validate() error {
	switch r.Scope {
	case ScopeTenant:
		if r.TenantID == "" {
			return fmt.Errorf("%w: tenant role %q without tenant", ErrRoleScope, r.Name)
		}
	case ScopePlatform:
		if r.TenantID != "" {
			return fmt.Errorf("%w: platform role %q bound to tenant", ErrRoleScope, r.Name)
		}
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrRoleScope, r.Scope)
	}
	return nil
}

// IsSuperAdmin reports whether the role is the platform-admin marker role.
func (r Role) IsSuperAdmin() bool {
	return r.Scope == ScopePlatform && r.TenantID == "" && r.Name == SuperAdminRole
}
