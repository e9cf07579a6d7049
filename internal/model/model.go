// Package model holds the tenant-scoped entities shared by the services and
// the persistence collaborators.
package model

import "time"

// Tenant is a customer organization. Every tenant-scoped row carries its id.
type Tenant struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Status    TenantStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// User belongs to exactly one tenant. PasswordHash is empty while invited.
type User struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"client_id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Active reports whether the user may authenticate.
func (u User) Active() bool { return u.Status == UserActive }

type Permission struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Role is platform-scoped with an empty TenantID, or tenant-scoped with one.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Scope       RoleScope `json:"scope"`
	TenantID    string    `json:"client_id,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
}

// CompanyAccess is one (user, company) ACL grant inside a tenant.
type CompanyAccess struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"client_id"`
	UserID      string      `json:"user_id"`
	CompanyID   string      `json:"company_id"`
	AccessLevel AccessLevel `json:"access_level"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type Company struct {
	ID        string        `json:"id"`
	TenantID  string        `json:"client_id"`
	Name      string        `json:"name"`
	TaxID     string        `json:"tax_id"`
	Status    CompanyStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type Employee struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"client_id"`
	CompanyID   string         `json:"company_id"`
	FullName    string         `json:"full_name"`
	EmployeeRef string         `json:"employee_ref,omitempty"`
	Status      EmployeeStatus `json:"status"`
	StartDate   *time.Time     `json:"start_date,omitempty"`
	EndDate     *time.Time     `json:"end_date,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type Case struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"client_id"`
	CompanyID         string     `json:"company_id"`
	Title             string     `json:"title"`
	Type              string     `json:"type"`
	Description       string     `json:"description,omitempty"`
	Status            CaseStatus `json:"status"`
	ResponsibleUserID string     `json:"responsible_user_id,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type CaseEvent struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"client_id"`
	CompanyID   string         `json:"company_id"`
	CaseID      string         `json:"case_id"`
	ActorUserID string         `json:"actor_user_id,omitempty"`
	Type        CaseEventType  `json:"event_type"`
	Payload     map[string]any `json:"payload"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Document is the metadata of a file attached to a case. StoragePath is an
// opaque key into external storage.
type Document struct {
	ID               string         `json:"id"`
	TenantID         string         `json:"client_id"`
	CompanyID        string         `json:"company_id"`
	CaseID           string         `json:"case_id"`
	UploadedByUserID string         `json:"uploaded_by_user_id,omitempty"`
	OriginalFilename string         `json:"original_filename"`
	ContentType      string         `json:"content_type,omitempty"`
	StoragePath      string         `json:"storage_path"`
	SizeBytes        *int64         `json:"size_bytes,omitempty"`
	DocType          string         `json:"doc_type,omitempty"`
	Status           DocumentStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// DocumentExtraction is one structured reading of a document. Extractions are
// append-only; the newest is the current one.
type DocumentExtraction struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"client_id"`
	DocumentID      string           `json:"document_id"`
	CompanyID       string           `json:"company_id"`
	CaseID          string           `json:"case_id,omitempty"`
	CreatedByUserID string           `json:"created_by_user_id,omitempty"`
	Provider        string           `json:"provider,omitempty"`
	ModelName       string           `json:"model_name,omitempty"`
	SchemaVersion   string           `json:"schema_version"`
	ExtractedJSON   map[string]any   `json:"extracted_json"`
	Confidence      *float64         `json:"confidence"`
	Status          ExtractionStatus `json:"status"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Invitation is a one-time activation token; only its hash is stored.
type Invitation struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"client_id"`
	Email     string     `json:"email"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// AuditEntry is an append-only record of a security-relevant action.
type AuditEntry struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"client_id"`
	ActorUserID string            `json:"user_id,omitempty"`
	Action      string            `json:"action"`
	EntityType  string            `json:"entity_type"`
	EntityID    string            `json:"entity_id"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
}

// CompanyFilter narrows company listings.
type CompanyFilter struct {
	Status CompanyStatus
	Query  string
	Limit  int
	Offset int
}

// CaseFilter narrows case listings within a company.
type CaseFilter struct {
	Status CaseStatus
	Query  string
	Limit  int
	Offset int
}

// AuditFilter narrows audit listings within a tenant.
type AuditFilter struct {
	EntityType string
	EntityID   string
	UserID     string
	Limit      int
	Offset     int
}
