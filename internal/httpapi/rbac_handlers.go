package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/model"
)

func (a *API) rbacRoutes(r chi.Router) {
	r.Route("/rbac", func(r chi.Router) {
		r.Get("/me/permissions", a.protect(guard{}, a.myPermissions))
		r.Get("/check/company-write", a.protect(guard{
			tenant: true,
			anyOf:  []string{authz.PermCompanyWrite},
		}, func(w http.ResponseWriter, r *http.Request, _ *authz.RequestContext) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		}))
	})
}

// myPermissions reports the effective permission set in the resolved tenant.
func (a *API) myPermissions(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	rbac := a.Pipeline.RBAC()
	userID := rc.UserID()
	super, err := rbac.IsSuperAdmin(r.Context(), rc, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	perms, err := rbac.ResolvePermissions(r.Context(), rc, userID, rc.TenantID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":        userID,
		"client_id":      nullable(rc.TenantID()),
		"is_super_admin": super,
		"permissions":    authz.SortedCodes(perms),
	})
}

func (a *API) listAudit(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	entries, err := a.Audit.ListActions(r.Context(), rc.TenantID(), model.AuditFilter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}
