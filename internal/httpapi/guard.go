package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/model"
)

const companyIDParam = "company_id"

// guard declares the authorization a route needs.
type guard struct {
	anonymous bool
	tenant    bool
	platform  bool
	anyOf     []string
	level     model.AccessLevel
}

func (g guard) requirement() authz.Requirement {
	return authz.Requirement{
		Anonymous:     g.anonymous,
		Tenant:        g.tenant,
		PlatformAdmin: g.platform,
		AnyOf:         g.anyOf,
		CompanyLevel:  g.level,
	}
}

// authedHandler receives the request context produced by the pipeline.
type authedHandler func(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext)

// protect runs the pipeline before h. The resolved request context replaces
// the one attached by WithRequestContext.
func (a *API) protect(g guard, h authedHandler) http.HandlerFunc {
	need := g.requirement()
	return func(w http.ResponseWriter, r *http.Request) {
		rc, ok := authz.FromContext(r.Context())
		if !ok {
			rc = authz.NewRequestContext()
		}
		req := authz.Request{
			Authorization: r.Header.Get("Authorization"),
			Directive: authz.TenantDirective{
				AdminTenant: r.Header.Get(authz.AdminTenantHeader),
				ClientID:    r.Header.Get(authz.ClientIDHeader),
				Path:        r.URL.Path,
				Method:      r.Method,
			},
		}
		if need.CompanyLevel != 0 {
			req.CompanyID = companyIDFrom(r)
		}
		out, err := a.Pipeline.Authorize(r.Context(), rc, req, need)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := authz.WithRequestContext(r.Context(), out)
		h(w, r.WithContext(ctx), out)
	}
}

// companyIDFrom reads the company id from the route, then the query string,
// then a JSON body field. The body is restored for the handler.
func companyIDFrom(r *http.Request) string {
	if id := strings.TrimSpace(chi.URLParam(r, companyIDParam)); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.URL.Query().Get(companyIDParam)); id != "" {
		return id
	}
	if r.Body == nil || !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var peek struct {
		CompanyID string `json:"company_id"`
	}
	if json.Unmarshal(raw, &peek) != nil {
		return ""
	}
	return strings.TrimSpace(peek.CompanyID)
}
