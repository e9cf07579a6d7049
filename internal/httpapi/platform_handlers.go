package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gestoria.cloud/internal/admin"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/model"
)

type tenantRequest struct {
	Name       string `json:"name" validate:"max=200"`
	Status     string `json:"status" validate:"max=16"`
	AdminEmail string `json:"admin_email" validate:"max=320"`
}

type tenantPatchRequest struct {
	Name   *string `json:"name" validate:"omitempty,max=200"`
	Status *string `json:"status" validate:"omitempty,max=16"`
}

// Platform routes need a Super Admin identity but no tenant context.
func (a *API) platformRoutes(r chi.Router) {
	g := guard{platform: true}
	r.Route("/platform/tenants", func(r chi.Router) {
		r.Get("/", a.protect(g, a.listTenants))
		r.Post("/", a.protect(g, a.createTenant))
		r.Get("/{tenant_id}", a.protect(g, a.getTenant))
		r.Patch("/{tenant_id}", a.protect(g, a.updateTenant))
	})
}

func (a *API) listTenants(w http.ResponseWriter, r *http.Request, _ *authz.RequestContext) {
	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	items, total, err := a.Platform.ListTenants(r.Context(), admin.TenantQuery{
		Query:  strings.TrimSpace(q.Get("q")),
		Status: model.TenantStatus(strings.TrimSpace(q.Get("status"))),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items, total))
}

func (a *API) getTenant(w http.ResponseWriter, r *http.Request, _ *authz.RequestContext) {
	t, err := a.Platform.GetTenant(r.Context(), chi.URLParam(r, "tenant_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) createTenant(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req tenantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := a.Platform.CreateTenant(r.Context(), rc, admin.TenantInput{
		Name:       req.Name,
		Status:     model.TenantStatus(strings.TrimSpace(req.Status)),
		AdminEmail: req.AdminEmail,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := map[string]any{"tenant": created.Tenant}
	if created.AdminInvite != nil {
		out["admin_invite"] = newInviteResponse(*created.AdminInvite)
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) updateTenant(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req tenantPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch := admin.TenantPatch{Name: req.Name}
	if req.Status != nil {
		status := model.TenantStatus(strings.TrimSpace(*req.Status))
		patch.Status = &status
	}
	t, err := a.Platform.UpdateTenant(r.Context(), rc, chi.URLParam(r, "tenant_id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
