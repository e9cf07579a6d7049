package authz

// Permission codes.
const (
	PermTenantProfileRead  = "tenant.profile.read"
	PermTenantProfileWrite = "tenant.profile.write"
	PermTenantUsersInvite  = "tenant.users.invite"
	PermTenantUsersManage  = "tenant.users.manage"
	PermTenantUserRead     = "tenant.user.read"
	PermTenantUserInvite   = "tenant.user.invite"
	PermTenantUserManage   = "tenant.user.manage"
	PermTenantRoleRead     = "tenant.role.read"

	PermCompanyRead       = "company.read"
	PermTenantCompanyRead = "tenant.company.read"
	PermCompanyWrite      = "company.write"

	PermACLRead   = "acl.read"
	PermACLManage = "acl.manage"

	PermEmployeeRead  = "employee.read"
	PermEmployeeWrite = "employee.write"

	PermCaseRead       = "case.read"
	PermCaseWrite      = "case.write"
	PermCaseAssign     = "case.assign"
	PermCaseEventWrite = "case.event.write"

	PermDocumentRead            = "document.read"
	PermDocumentWrite           = "document.write"
	PermDocumentUpload          = "document.upload"
	PermDocumentClassify        = "document.classify"
	PermDocumentExtractionRead  = "document.extraction.read"
	PermDocumentExtractionWrite = "document.extraction.write"

	PermAuditRead = "audit.read"

	PermPlatformClientsManage = "platform.clients.manage"
	PermPlatformMetricsRead   = "platform.metrics.read"

	// PermLegacySuperAdmin is not seeded. A role carrying it is still
	// treated as a platform operator by IsPlatformAdmin.
	PermLegacySuperAdmin = "platform.super_admin"
)

// PermissionDef is one catalog entry.
type PermissionDef struct {
	Code        string
	Description string
}

// Catalog is the seeded permission set.
var Catalog = []PermissionDef{
	{PermTenantProfileRead, "Read tenant profile"},
	{PermTenantProfileWrite, "Update tenant profile"},
	{PermTenantUsersInvite, "Invite tenant users (legacy)"},
	{PermTenantUsersManage, "Manage tenant users (legacy)"},
	{PermTenantUserRead, "List tenant users"},
	{PermTenantUserInvite, "Invite tenant users"},
	{PermTenantUserManage, "Enable, disable and assign roles to tenant users"},
	{PermTenantRoleRead, "List tenant roles"},
	{PermCompanyRead, "Read companies"},
	{PermTenantCompanyRead, "Read companies (legacy)"},
	{PermCompanyWrite, "Create and update companies"},
	{PermACLRead, "Read company access grants"},
	{PermACLManage, "Manage company access grants"},
	{PermEmployeeRead, "Read employees"},
	{PermEmployeeWrite, "Create and update employees"},
	{PermCaseRead, "Read cases"},
	{PermCaseWrite, "Create and update cases"},
	{PermCaseAssign, "Assign cases and change case status"},
	{PermCaseEventWrite, "Comment on cases"},
	{PermDocumentRead, "Read documents"},
	{PermDocumentWrite, "Update documents"},
	{PermDocumentUpload, "Upload documents"},
	{PermDocumentClassify, "Classify documents"},
	{PermDocumentExtractionRead, "Read document extractions"},
	{PermDocumentExtractionWrite, "Write document extractions"},
	{PermAuditRead, "Read the audit trail"},
	{PermPlatformClientsManage, "Manage tenants"},
	{PermPlatformMetricsRead, "Read platform metrics"},
}

// Tenant role names.
const (
	RoleTenantAdmin = "Admin Cliente"
	RoleAdvisor     = "Asesor"
	RoleOperator    = "Operativo"
)

// TenantRoles maps each seeded tenant role to its permission codes.
var TenantRoles = map[string][]string{
	RoleTenantAdmin: {
		PermTenantProfileRead, PermTenantProfileWrite,
		PermTenantUsersInvite, PermTenantUsersManage,
		PermTenantUserRead, PermTenantUserInvite, PermTenantUserManage, PermTenantRoleRead,
		PermCompanyRead, PermTenantCompanyRead, PermCompanyWrite,
		PermACLRead, PermACLManage,
		PermEmployeeRead, PermEmployeeWrite,
		PermCaseRead, PermCaseWrite, PermCaseAssign, PermCaseEventWrite,
		PermDocumentRead, PermDocumentWrite, PermDocumentUpload, PermDocumentClassify,
		PermDocumentExtractionRead, PermDocumentExtractionWrite,
		PermAuditRead,
	},
	RoleAdvisor: {
		PermTenantProfileRead,
		PermCompanyRead, PermTenantCompanyRead,
		PermEmployeeRead, PermEmployeeWrite,
		PermCaseRead, PermCaseWrite, PermCaseAssign, PermCaseEventWrite,
		PermDocumentRead, PermDocumentWrite, PermDocumentUpload, PermDocumentClassify,
		PermDocumentExtractionRead, PermDocumentExtractionWrite,
	},
	RoleOperator: {
		PermCompanyRead, PermTenantCompanyRead,
		PermEmployeeRead,
		PermCaseRead, PermCaseEventWrite,
		PermDocumentRead, PermDocumentWrite, PermDocumentUpload,
		PermDocumentExtractionRead,
	},
}

// CatalogCodes returns every catalog code in declaration order.
func CatalogCodes() []string {
	out := make([]string, 0, len(Catalog))
	for _, p := range Catalog {
		out = append(out, p.Code)
	}
	return out
}
