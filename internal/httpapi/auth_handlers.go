package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/auth"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/cache"
	"gestoria.cloud/internal/model"
	"gestoria.cloud/internal/obs"
)

var errLoginThrottled = apperr.TooManyRequests("too_many_attempts", "Too many login attempts, try again later.")

type loginRequest struct {
	Email    string `json:"email" validate:"max=320"`
	Password string `json:"password" validate:"max=1024"`
	ClientID string `json:"client_id" validate:"max=64"`
}

type inviteRequest struct {
	Email string `json:"email" validate:"max=320"`
}

type activateRequest struct {
	ClientID string `json:"client_id" validate:"max=64"`
	Token    string `json:"token" validate:"max=256"`
	Password string `json:"password" validate:"max=1024"`
}

type inviteResponse struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	ClientID    string    `json:"client_id"`
	InviteToken string    `json:"invite_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func newInviteResponse(res auth.InviteResult) inviteResponse {
	return inviteResponse{
		UserID:      res.User.ID,
		Email:       res.User.Email,
		ClientID:    res.User.TenantID,
		InviteToken: res.Token,
		ExpiresAt:   res.Invitation.ExpiresAt,
	}
}

func (a *API) authRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", a.login)
		r.Post("/activate", a.activate)
		r.Get("/me", a.protect(guard{}, a.me))
		r.Post("/invite", a.protect(guard{
			tenant: true,
			anyOf:  []string{authz.PermTenantUserInvite, authz.PermTenantUsersInvite},
		}, a.invite))
	})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	email := auth.NormalizeEmail(req.Email)
	allowed, retry, err := a.Throttle.Allow(r.Context(), cache.LoginKey(clientIP(r), email))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !allowed {
		obs.LoginThrottled()
		obs.Logger().WithFields(logrus.Fields{
			"event":      "login_throttled",
			"request_id": RequestIDFromContext(r.Context()),
			"remote_ip":  clientIP(r),
		}).Info("login throttled")
		w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(retry)))
		writeError(w, r, errLoginThrottled)
		return
	}

	session, err := a.Auth.Login(r.Context(), email, req.Password, req.ClientID)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			obs.Logger().WithFields(logrus.Fields{
				"event":      "login_failed",
				"request_id": RequestIDFromContext(r.Context()),
				"code":       apperr.From(err).Code,
			}).Info("login rejected")
		}
		writeError(w, r, err)
		return
	}
	a.Audit.LogAction(r.Context(), model.AuditEntry{
		TenantID:    session.TenantID,
		ActorUserID: session.UserID,
		Action:      "auth.login",
		EntityType:  "user",
		EntityID:    session.UserID,
	})
	writeJSON(w, http.StatusOK, session)
}

func retrySeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (a *API) activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := a.Auth.Activate(r.Context(), req.ClientID, req.Token, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.Audit.LogAction(r.Context(), model.AuditEntry{
		TenantID:    user.TenantID,
		ActorUserID: user.ID,
		Action:      "user.activate",
		EntityType:  "user",
		EntityID:    user.ID,
		Metadata:    map[string]string{"email": user.Email},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   user.ID,
		"email":     user.Email,
		"client_id": user.TenantID,
		"status":    user.Status,
	})
}

func (a *API) me(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	user, _ := rc.User()
	super, err := a.Pipeline.RBAC().IsSuperAdmin(r.Context(), rc, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":             user.ID,
		"email":               user.Email,
		"status":              user.Status,
		"client_id":           user.TenantID,
		"effective_client_id": nullable(rc.TenantID()),
		"tenant_mode":         rc.Mode(),
		"is_super_admin":      super,
	})
}

func (a *API) invite(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := a.Auth.Invite(r.Context(), rc.TenantID(), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.Audit.LogAction(r.Context(), model.AuditEntry{
		TenantID:    rc.TenantID(),
		ActorUserID: rc.UserID(),
		Action:      "user.invite",
		EntityType:  "user",
		EntityID:    res.User.ID,
		Metadata:    map[string]string{"email": res.User.Email},
	})
	writeJSON(w, http.StatusCreated, newInviteResponse(res))
}
