package casework

import (
	"context"
	"fmt"
	"strings"

	"gestoria.cloud/internal/apperr"
	"gestoria.cloud/internal/authz"
	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
)

const (
	defaultExtractionPage = 20
	maxExtractionPage     = 100
)

var (
	ErrDocumentNotFound   = apperr.NotFound("document_not_found", "Document not found.")
	ErrExtractionNotFound = apperr.NotFound("extraction_not_found", "Extraction not found.")
)

// DocumentInput registers the metadata of a file kept in external storage.
// An empty StoragePath is derived from the tenant, company and case.
type DocumentInput struct {
	CompanyID        string
	CaseID           string
	OriginalFilename string
	ContentType      string
	StoragePath      string
	SizeBytes        *int64
	DocType          string
	Status           model.DocumentStatus
}

// ExtractionInput is one structured reading of a document.
type ExtractionInput struct {
	SchemaVersion string
	ExtractedJSON map[string]any
	Confidence    *float64
	Provider      string
	ModelName     string
	Status        model.ExtractionStatus
	ErrorMessage  string
}

// RegisterDocument records the document on its case and appends an
// attachment event. The caller's company grant was checked by the pipeline.
func (s *Service) RegisterDocument(ctx context.Context, rc *authz.RequestContext, in DocumentInput) (model.Document, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.Document{}, err
	}
	companyID, err := required(in.CompanyID, "company_id_required")
	if err != nil {
		return model.Document{}, err
	}
	caseID, err := required(in.CaseID, "case_id_required")
	if err != nil {
		return model.Document{}, err
	}
	filename, err := required(in.OriginalFilename, "original_filename_required")
	if err != nil {
		return model.Document{}, err
	}
	if in.SizeBytes != nil && *in.SizeBytes < 0 {
		return model.Document{}, apperr.BadRequest("invalid_size_bytes", "")
	}
	status := in.Status
	if status == "" {
		status = model.DocumentPending
	}
	if !status.Valid() {
		return model.Document{}, apperr.BadRequest("invalid_status", "")
	}
	if _, err := s.store.GetCase(ctx, sc.tenantID, companyID, caseID); err != nil {
		return model.Document{}, notFound(err, ErrCaseNotFound, "get case")
	}
	storagePath := optional(in.StoragePath)
	if storagePath == "" {
		storagePath = fmt.Sprintf("documents/%s/%s/%s/%s", sc.tenantID, companyID, caseID, filename)
	}

	doc := model.Document{
		ID:               ids.NewEntityID(),
		TenantID:         sc.tenantID,
		CompanyID:        companyID,
		CaseID:           caseID,
		UploadedByUserID: sc.actorID,
		OriginalFilename: filename,
		ContentType:      optional(in.ContentType),
		StoragePath:      storagePath,
		SizeBytes:        in.SizeBytes,
		DocType:          optional(in.DocType),
		Status:           status,
	}
	saved, err := s.store.CreateDocument(ctx, doc, model.CaseEvent{
		ActorUserID: sc.actorID,
		Type:        model.EventAttachment,
		Payload:     map[string]any{"document_id": doc.ID, "filename": filename},
	})
	if err != nil {
		return model.Document{}, notFound(err, ErrCaseNotFound, "create document")
	}
	s.record(ctx, sc, "document.upload", "document", saved.ID, map[string]string{
		"company_id": companyID,
		"case_id":    caseID,
	})
	return saved, nil
}

// ListCaseDocuments returns the documents attached to the case.
func (s *Service) ListCaseDocuments(ctx context.Context, rc *authz.RequestContext, companyID, caseID string) ([]model.Document, error) {
	c, err := s.GetCase(ctx, rc, companyID, caseID)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListCaseDocuments(ctx, c.TenantID, companyID, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list case documents: %w", err)
	}
	if out == nil {
		out = []model.Document{}
	}
	return out, nil
}

// GetDocument returns the document when the caller holds a viewer grant on
// its company.
func (s *Service) GetDocument(ctx context.Context, rc *authz.RequestContext, id string) (model.Document, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.Document{}, err
	}
	return s.documentFor(ctx, sc, id, model.AccessViewer)
}

// CreateExtraction stores a new reading of the document. Operators and above
// on the document's company may write.
func (s *Service) CreateExtraction(ctx context.Context, rc *authz.RequestContext, documentID string, in ExtractionInput) (model.DocumentExtraction, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.DocumentExtraction{}, err
	}
	doc, err := s.documentFor(ctx, sc, documentID, model.AccessOperator)
	if err != nil {
		return model.DocumentExtraction{}, err
	}
	schemaVersion, err := required(in.SchemaVersion, "schema_version_required")
	if err != nil {
		return model.DocumentExtraction{}, err
	}
	if in.ExtractedJSON == nil {
		return model.DocumentExtraction{}, apperr.BadRequest("extracted_json_required", "")
	}
	if in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1) {
		return model.DocumentExtraction{}, apperr.BadRequest("confidence_out_of_range", "")
	}
	status := model.ExtractionStatus(strings.ToLower(optional(string(in.Status))))
	if status == "" {
		status = model.ExtractionSuccess
	}
	if !status.Valid() {
		return model.DocumentExtraction{}, apperr.BadRequest("invalid_status", "")
	}

	x, err := s.store.CreateExtraction(ctx, model.DocumentExtraction{
		TenantID:        sc.tenantID,
		DocumentID:      doc.ID,
		CompanyID:       doc.CompanyID,
		CaseID:          doc.CaseID,
		CreatedByUserID: sc.actorID,
		Provider:        optional(in.Provider),
		ModelName:       optional(in.ModelName),
		SchemaVersion:   schemaVersion,
		ExtractedJSON:   in.ExtractedJSON,
		Confidence:      in.Confidence,
		Status:          status,
		ErrorMessage:    optional(in.ErrorMessage),
	})
	if err != nil {
		return model.DocumentExtraction{}, notFound(err, ErrDocumentNotFound, "create extraction")
	}
	s.record(ctx, sc, "extraction.create", "extraction", x.ID, map[string]string{
		"document_id": doc.ID,
		"status":      string(status),
	})
	return x, nil
}

// LatestExtraction returns the newest extraction of the document.
func (s *Service) LatestExtraction(ctx context.Context, rc *authz.RequestContext, documentID string) (model.DocumentExtraction, error) {
	sc, err := scopeOf(rc)
	if err != nil {
		return model.DocumentExtraction{}, err
	}
	doc, err := s.documentFor(ctx, sc, documentID, model.AccessViewer)
	if err != nil {
		return model.DocumentExtraction{}, err
	}
	x, err := s.store.LatestExtraction(ctx, sc.tenantID, doc.ID)
	if err != nil {
		return model.DocumentExtraction{}, notFound(err, ErrExtractionNotFound, "latest extraction")
	}
	return x, nil
}

// ListExtractions pages through the document's extractions, newest first.
// A zero limit selects the default page size.
func (s *Service) ListExtractions(ctx context.Context, rc *authz.RequestContext, documentID string, limit, offset int) ([]model.DocumentExtraction, error) {
	if limit == 0 {
		limit = defaultExtractionPage
	}
	if limit < 1 || limit > maxExtractionPage || offset < 0 {
		return nil, apperr.BadRequest("invalid_pagination", "")
	}
	sc, err := scopeOf(rc)
	if err != nil {
		return nil, err
	}
	doc, err := s.documentFor(ctx, sc, documentID, model.AccessViewer)
	if err != nil {
		return nil, err
	}
	out, err := s.store.ListExtractions(ctx, sc.tenantID, doc.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	if out == nil {
		out = []model.DocumentExtraction{}
	}
	return out, nil
}

// documentFor loads the document and checks the caller's grant on the
// company it belongs to. A missing document, a missing grant and a grant
// below want all read as document_not_found.
func (s *Service) documentFor(ctx context.Context, sc scope, id string, want model.AccessLevel) (model.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Document{}, ErrDocumentNotFound
	}
	doc, err := s.store.GetDocument(ctx, sc.tenantID, id)
	if err != nil {
		return model.Document{}, notFound(err, ErrDocumentNotFound, "get document")
	}
	if _, err := s.acl.RequireAccess(ctx, sc.actorID, doc.CompanyID, sc.tenantID, want); err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindForbidden:
			return model.Document{}, ErrDocumentNotFound
		}
		return model.Document{}, err
	}
	return doc, nil
}
