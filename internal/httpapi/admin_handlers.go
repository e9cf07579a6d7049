package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gestoria.cloud/internal/admin"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/model"
)

type rolesPayload struct {
	RoleIDs   []string `json:"role_ids" validate:"omitempty,max=32,dive,max=64"`
	RoleNames []string `json:"roles" validate:"omitempty,max=32,dive,max=128"`
}

func (p rolesPayload) selection() admin.RoleSelection {
	var sel admin.RoleSelection
	if len(p.RoleIDs) > 0 {
		sel.IDs = p.RoleIDs
	}
	if len(p.RoleNames) > 0 {
		sel.Names = p.RoleNames
	}
	return sel
}

type adminInviteRequest struct {
	Email string `json:"email" validate:"max=320"`
	rolesPayload
}

type accessRequest struct {
	UserID      string `json:"user_id" validate:"max=64"`
	AccessLevel string `json:"access_level" validate:"max=16"`
}

func (a *API) adminRoutes(r chi.Router) {
	userRead := guard{tenant: true, anyOf: []string{authz.PermTenantUserRead, authz.PermTenantUsersManage}}
	userInvite := guard{tenant: true, anyOf: []string{authz.PermTenantUserInvite, authz.PermTenantUsersInvite}}
	userManage := guard{tenant: true, anyOf: []string{authz.PermTenantUserManage, authz.PermTenantUsersManage}}
	roleRead := guard{tenant: true, anyOf: []string{authz.PermTenantRoleRead, authz.PermTenantUsersManage}}
	aclRead := guard{tenant: true, anyOf: []string{authz.PermACLRead}, level: model.AccessAdmin}
	aclManage := guard{tenant: true, anyOf: []string{authz.PermACLManage}, level: model.AccessAdmin}

	r.Route("/admin", func(r chi.Router) {
		r.Get("/users", a.protect(userRead, a.adminListUsers))
		r.Post("/users/invite", a.protect(userInvite, a.adminInviteUser))
		r.Post("/users/{user_id}/disable", a.protect(userManage, a.adminSetUserStatus(false)))
		r.Post("/users/{user_id}/enable", a.protect(userManage, a.adminSetUserStatus(true)))
		r.Put("/users/{user_id}/roles", a.protect(userManage, a.adminReplaceRoles))
		r.Get("/roles", a.protect(roleRead, a.adminListRoles))

		r.Route("/companies/{company_id}/access", func(r chi.Router) {
			r.Get("/", a.protect(aclRead, a.listAccess))
			r.Post("/", a.protect(aclManage, a.upsertAccess))
			r.Patch("/{user_id}", a.protect(aclManage, a.patchAccess))
			r.Delete("/{user_id}", a.protect(aclManage, a.deleteAccess))
		})
	})
}

func (a *API) adminListUsers(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	page, err := queryInt(r, "page", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	perPage, err := queryInt(r, "per_page", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := a.Admin.ListUsers(r.Context(), rc, page, perPage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) adminInviteUser(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req adminInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, roles, err := a.Admin.InviteUser(r.Context(), rc, req.Email, req.selection())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if roles == nil {
		roles = []model.Role{}
	}
	writeJSON(w, http.StatusCreated, struct {
		inviteResponse
		Roles []model.Role `json:"roles"`
	}{newInviteResponse(res), roles})
}

func (a *API) adminSetUserStatus(enable bool) authedHandler {
	return func(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
		set := a.Admin.DisableUser
		if enable {
			set = a.Admin.EnableUser
		}
		user, err := set(r.Context(), rc, chi.URLParam(r, "user_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func (a *API) adminReplaceRoles(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req rolesPayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID := chi.URLParam(r, "user_id")
	roles, err := a.Admin.ReplaceRoles(r.Context(), rc, userID, req.selection())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "roles": roles})
}

func (a *API) adminListRoles(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	roles, err := a.Admin.ListRoles(r.Context(), rc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(roles, len(roles)))
}

func (a *API) listAccess(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	items, err := a.Admin.ListAccess(r.Context(), rc, chi.URLParam(r, companyIDParam))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items, len(items)))
}

func (a *API) upsertAccess(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req accessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	grant, err := a.Admin.UpsertAccess(r.Context(), rc, chi.URLParam(r, companyIDParam), req.UserID, req.AccessLevel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (a *API) patchAccess(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req struct {
		AccessLevel string `json:"access_level" validate:"max=16"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	grant, err := a.Admin.PatchAccess(r.Context(), rc, chi.URLParam(r, companyIDParam), chi.URLParam(r, "user_id"), req.AccessLevel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (a *API) deleteAccess(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	if err := a.Admin.DeleteAccess(r.Context(), rc, chi.URLParam(r, companyIDParam), chi.URLParam(r, "user_id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
