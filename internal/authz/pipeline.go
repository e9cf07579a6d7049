package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/auth"
	"gestoria.cloud/internal/model"
	"gestoria.cloud/internal/obs"
)

// TokenValidator validates session tokens.
type TokenValidator interface {
	Validate(token string) (auth.Identity, error)
}

// Requirement declares what an operation needs from the pipeline.
type Requirement struct {
	// Anonymous makes authentication optional. Without credentials the
	// tenant may only come from the client id header, when enabled.
	Anonymous bool
	// Tenant requires a resolved tenant context.
	Tenant bool
	// PlatformAdmin requires a platform operator identity.
	PlatformAdmin bool
	// AnyOf lists alternative permission codes; one is enough.
	AnyOf []string
	// CompanyLevel, when set, requires an ACL grant on Request.CompanyID.
	CompanyLevel model.AccessLevel
}

// Request is the transport-independent input of the pipeline.
type Request struct {
	Authorization string
	Directive     TenantDirective
	CompanyID     string
}

// Pipeline runs authentication, tenant resolution, permission and company
// ACL checks in that order. It never mutates stored state apart from the
// override audit entry written by tenant resolution.
type Pipeline struct {
	tokens   TokenValidator
	users    IdentityStore
	resolver *TenantResolver
	rbac     *RBAC
	acl      *ACL
}

// NewPipeline wires the guard chain.
func NewPipeline(tokens TokenValidator, users IdentityStore, resolver *TenantResolver, rbac *RBAC, acl *ACL) (*Pipeline, error) {
	switch {
	case tokens == nil:
		return nil, errors.New("authz: token validator is required")
	case users == nil:
		return nil, errors.New("authz: identity store is required")
	case resolver == nil:
		return nil, errors.New("authz: tenant resolver is required")
	case rbac == nil:
		return nil, errors.New("authz: rbac is required")
	case acl == nil:
		return nil, errors.New("authz: acl is required")
	}
	return &Pipeline{tokens: tokens, users: users, resolver: resolver, rbac: rbac, acl: acl}, nil
}

func (p *Pipeline) RBAC() *RBAC { return p.rbac }
func (p *Pipeline) ACL() *ACL   { return p.acl }

// Authorize runs every stage needed by need and returns the request context
// the handler must use.
func (p *Pipeline) Authorize(ctx context.Context, rc *RequestContext, req Request, need Requirement) (*RequestContext, error) {
	ctx, span := obs.Tracer().Start(ctx, "authz.Authorize")
	defer span.End()

	out, err := p.authorize(ctx, rc, req, need)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.From(err).Code)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("authz.tenant_mode", string(out.Mode())),
		attribute.Bool("authz.authenticated", out.Authenticated()),
	)
	return out, nil
}

func (p *Pipeline) authorize(ctx context.Context, rc *RequestContext, req Request, need Requirement) (*RequestContext, error) {
	if rc == nil {
		rc = NewRequestContext()
	}
	var err error
	if !need.Anonymous || strings.TrimSpace(req.Authorization) != "" {
		if rc, err = p.Authenticate(ctx, rc, req.Authorization); err != nil {
			return nil, err
		}
	}
	if rc, err = p.ResolveTenant(ctx, rc, req.Directive); err != nil {
		return nil, err
	}
	if need.Tenant {
		if _, err := rc.RequireTenant(); err != nil {
			obs.ObserveDecision("tenant", "rejected")
			return nil, err
		}
	}
	if need.PlatformAdmin {
		if err := p.RequirePlatformAdmin(ctx, rc); err != nil {
			return nil, err
		}
	}
	if len(need.AnyOf) > 0 {
		if err := p.RequirePermission(ctx, rc, need.AnyOf...); err != nil {
			return nil, err
		}
	}
	if need.CompanyLevel != 0 {
		if _, err := p.RequireCompanyAccess(ctx, rc, req.CompanyID, need.CompanyLevel); err != nil {
			return nil, err
		}
	}
	return rc, nil
}

// Authenticate validates the bearer token and binds the live user.
func (p *Pipeline) Authenticate(ctx context.Context, rc *RequestContext, authorization string) (*RequestContext, error) {
	token, err := BearerToken(authorization)
	if err != nil {
		obs.ObserveDecision("authenticate", "rejected")
		return nil, err
	}
	identity, err := p.tokens.Validate(token)
	if err != nil {
		obs.ObserveDecision("authenticate", "rejected")
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperr.ErrTokenExpired
		}
		return nil, apperr.ErrInvalidToken
	}
	user, err := p.users.GetUser(ctx, identity.TenantID, identity.UserID)
	if errors.Is(err, model.ErrNotFound) {
		obs.ObserveDecision("authenticate", "rejected")
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.TenantID != identity.TenantID {
		obs.ObserveDecision("authenticate", "rejected")
		return nil, apperr.ErrInvalidCredentials
	}
	if !user.Active() {
		obs.ObserveDecision("authenticate", "inactive")
		return nil, apperr.ErrUserInactive
	}
	obs.ObserveDecision("authenticate", "allowed")
	return rc.WithIdentity(user), nil
}

// ResolveTenant runs tenant resolution for the bound identity.
func (p *Pipeline) ResolveTenant(ctx context.Context, rc *RequestContext, d TenantDirective) (*RequestContext, error) {
	out, err := p.resolver.Resolve(ctx, rc, d)
	if err != nil {
		obs.ObserveDecision("tenant", "rejected")
		return nil, err
	}
	obs.ObserveDecision("tenant", string(out.Mode()))
	return out, nil
}

// RequirePermission passes when the identity holds any of codes.
func (p *Pipeline) RequirePermission(ctx context.Context, rc *RequestContext, codes ...string) error {
	user, ok := rc.User()
	if !ok {
		return apperr.ErrMissingToken
	}
	allowed, err := p.rbac.HasAnyPermission(ctx, rc, user, codes...)
	if err != nil {
		return err
	}
	if !allowed {
		obs.ObserveDecision("permission", "rejected")
		return apperr.ErrMissingPermission
	}
	obs.ObserveDecision("permission", "allowed")
	return nil
}

// RequirePlatformAdmin passes for platform operators only.
func (p *Pipeline) RequirePlatformAdmin(ctx context.Context, rc *RequestContext) error {
	user, ok := rc.User()
	if !ok {
		return apperr.ErrMissingToken
	}
	allowed, err := p.rbac.IsPlatformAdmin(ctx, rc, user)
	if err != nil {
		return err
	}
	if !allowed {
		obs.ObserveDecision("platform", "rejected")
		return apperr.ErrMissingPermission
	}
	obs.ObserveDecision("platform", "allowed")
	return nil
}

// RequireCompanyAccess checks the identity's grant on companyID inside the
// resolved tenant.
func (p *Pipeline) RequireCompanyAccess(ctx context.Context, rc *RequestContext, companyID string, level model.AccessLevel) (model.CompanyAccess, error) {
	user, ok := rc.User()
	if !ok {
		return model.CompanyAccess{}, apperr.ErrMissingToken
	}
	tenantID, err := rc.RequireTenant()
	if err != nil {
		return model.CompanyAccess{}, err
	}
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return model.CompanyAccess{}, apperr.BadRequest("company_id_required", "company_id is required.")
	}
	access, err := p.acl.RequireAccess(ctx, user.ID, companyID, tenantID, level)
	if err != nil {
		obs.ObserveDecision("company_access", "rejected")
		return model.CompanyAccess{}, err
	}
	obs.ObserveDecision("company_access", "allowed")
	return access, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, strings.TrimSpace(prefix)) {
		return "", apperr.ErrMissingToken
	}
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", apperr.ErrInvalidToken
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", apperr.ErrMissingToken
	}
	return token, nil
}
