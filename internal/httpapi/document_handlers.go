package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/casework"
	"gestoria.cloud/internal/model"
)

type documentRequest struct {
	CompanyID        string `json:"company_id"`
	CaseID           string `json:"case_id"`
	OriginalFilename string `json:"original_filename" validate:"max=255"`
	Filename         string `json:"filename" validate:"max=255"`
	ContentType      string `json:"content_type" validate:"max=128"`
	StoragePath      string `json:"storage_path" validate:"max=1024"`
	SizeBytes        *int64 `json:"size_bytes"`
	DocType          string `json:"doc_type" validate:"max=64"`
	Status           string `json:"status"`
}

// extractionRequest keeps the loosely typed fields as any so that their
// shape errors get specific codes.
type extractionRequest struct {
	SchemaVersion string `json:"schema_version" validate:"max=50"`
	ExtractedJSON any    `json:"extracted_json"`
	Confidence    any    `json:"confidence"`
	Provider      string `json:"provider" validate:"max=100"`
	ModelName     string `json:"model_name" validate:"max=255"`
	Status        string `json:"status"`
	ErrorMessage  string `json:"error_message" validate:"max=10000"`
}

type extractionPage struct {
	Items  []model.DocumentExtraction `json:"items"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
	Count  int                        `json:"count"`
}

// documentRoutes registers the document surface. Upload names its company in
// the body; routes keyed by document id derive the company from the document
// inside the service.
func (a *API) documentRoutes(r chi.Router) {
	byDocument := func(perm string) guard { return guard{tenant: true, anyOf: []string{perm}} }
	r.Route("/documents", func(r chi.Router) {
		r.Post("/upload", a.protect(guard{tenant: true, anyOf: []string{authz.PermDocumentUpload}, level: model.AccessOperator}, a.uploadDocument))
		r.Get("/{document_id}", a.protect(byDocument(authz.PermDocumentRead), a.getDocument))
		r.Post("/{document_id}/extractions", a.protect(byDocument(authz.PermDocumentExtractionWrite), a.createExtraction))
		r.Get("/{document_id}/extractions", a.protect(byDocument(authz.PermDocumentExtractionRead), a.listExtractions))
		r.Get("/{document_id}/extractions/latest", a.protect(byDocument(authz.PermDocumentExtractionRead), a.latestExtraction))
	})
}

func (a *API) uploadDocument(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req documentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	filename := req.OriginalFilename
	if strings.TrimSpace(filename) == "" {
		filename = req.Filename
	}
	doc, err := a.Casework.RegisterDocument(r.Context(), rc, casework.DocumentInput{
		CompanyID:        req.CompanyID,
		CaseID:           req.CaseID,
		OriginalFilename: filename,
		ContentType:      req.ContentType,
		StoragePath:      req.StoragePath,
		SizeBytes:        req.SizeBytes,
		DocType:          req.DocType,
		Status:           model.DocumentStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (a *API) getDocument(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	doc, err := a.Casework.GetDocument(r.Context(), rc, chi.URLParam(r, "document_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) listCaseDocuments(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	docs, err := a.Casework.ListCaseDocuments(r.Context(), rc, chi.URLParam(r, companyIDParam), chi.URLParam(r, "case_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(docs, len(docs)))
}

func (a *API) createExtraction(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	var req extractionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in := casework.ExtractionInput{
		SchemaVersion: req.SchemaVersion,
		Provider:      req.Provider,
		ModelName:     req.ModelName,
		Status:        model.ExtractionStatus(req.Status),
		ErrorMessage:  req.ErrorMessage,
	}
	switch v := req.ExtractedJSON.(type) {
	case map[string]any:
		in.ExtractedJSON = v
	case nil:
	default:
		writeError(w, r, apperr.BadRequest("extracted_json_required", "extracted_json must be an object."))
		return
	}
	switch v := req.Confidence.(type) {
	case float64:
		in.Confidence = &v
	case nil:
	default:
		writeError(w, r, apperr.BadRequest("confidence_must_be_number", ""))
		return
	}
	x, err := a.Casework.CreateExtraction(r.Context(), rc, chi.URLParam(r, "document_id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, x)
}

func (a *API) latestExtraction(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	x, err := a.Casework.LatestExtraction(r.Context(), rc, chi.URLParam(r, "document_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, x)
}

func (a *API) listExtractions(w http.ResponseWriter, r *http.Request, rc *authz.RequestContext) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit < 1 {
		writeError(w, r, apperr.BadRequest("invalid_pagination", ""))
		return
	}
	items, err := a.Casework.ListExtractions(r.Context(), rc, chi.URLParam(r, "document_id"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, extractionPage{Items: items, Limit: limit, Offset: offset, Count: len(items)})
}
