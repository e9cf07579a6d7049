package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"gestoria.cloud/internal/ids"
	"gestoria.cloud/internal/model"
)

// Documents

const documentColumns = `id, client_id, company_id, case_id, uploaded_by_user_id, original_filename,
	coalesce(content_type, ''), storage_path, size_bytes, coalesce(doc_type, ''), status, created_at, updated_at`

func scanDocument(row rowScanner) (model.Document, error) {
	var (
		d        model.Document
		uploader sql.NullString
		size     sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.TenantID, &d.CompanyID, &d.CaseID, &uploader, &d.OriginalFilename,
		&d.ContentType, &d.StoragePath, &size, &d.DocType, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return model.Document{}, err
	}
	d.UploadedByUserID = uploader.String
	if size.Valid {
		v := size.Int64
		d.SizeBytes = &v
	}
	return d, nil
}

// CreateDocument inserts the document and its attachment event in one
// transaction. The case must belong to the document's tenant and company.
func (s *Store) CreateDocument(ctx context.Context, d model.Document, ev model.CaseEvent) (model.Document, error) {
	if s.db == nil {
		return model.Document{}, errNoDB
	}
	if d.ID == "" {
		d.ID = ids.NewEntityID()
	}
	c, err := s.GetCase(ctx, d.TenantID, d.CompanyID, d.CaseID)
	if err != nil {
		return model.Document{}, err
	}
	var size sql.NullInt64
	if d.SizeBytes != nil {
		size = sql.NullInt64{Int64: *d.SizeBytes, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Document{}, err
	}
	defer func() { _ = tx.Rollback() }()

	saved, err := scanDocument(tx.QueryRowContext(ctx, `
		insert into documents (id, client_id, company_id, case_id, uploaded_by_user_id, original_filename,
			content_type, storage_path, size_bytes, doc_type, status)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		returning `+documentColumns,
		d.ID, d.TenantID, d.CompanyID, d.CaseID, nullIfEmpty(d.UploadedByUserID), d.OriginalFilename,
		nullIfEmpty(d.ContentType), d.StoragePath, size, nullIfEmpty(d.DocType), d.Status))
	if err != nil {
		return model.Document{}, mapErr(err)
	}
	if _, err := s.insertEvent(ctx, tx, c, ev); err != nil {
		return model.Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Document{}, err
	}
	return saved, nil
}

func (s *Store) GetDocument(ctx context.Context, tenantID, id string) (model.Document, error) {
	if s.db == nil {
		return model.Document{}, errNoDB
	}
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`select `+documentColumns+` from documents where id = $1 and client_id = $2`, id, tenantID))
	if err != nil {
		return model.Document{}, mapErr(err)
	}
	return d, nil
}

func (s *Store) ListCaseDocuments(ctx context.Context, tenantID, companyID, caseID string) ([]model.Document, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+documentColumns+` from documents
		where client_id = $1 and company_id = $2 and case_id = $3
		order by created_at, id`, tenantID, companyID, caseID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Extractions

const extractionColumns = `id, client_id, document_id, company_id, case_id, created_by_user_id,
	coalesce(provider, ''), coalesce(model_name, ''), schema_version, extracted_json, confidence,
	status, coalesce(error_message, ''), created_at`

func scanExtraction(row rowScanner) (model.DocumentExtraction, error) {
	var (
		x          model.DocumentExtraction
		caseID     sql.NullString
		creator    sql.NullString
		payload    []byte
		confidence sql.NullFloat64
	)
	if err := row.Scan(&x.ID, &x.TenantID, &x.DocumentID, &x.CompanyID, &caseID, &creator,
		&x.Provider, &x.ModelName, &x.SchemaVersion, &payload, &confidence,
		&x.Status, &x.ErrorMessage, &x.CreatedAt); err != nil {
		return model.DocumentExtraction{}, err
	}
	x.CaseID = caseID.String
	x.CreatedByUserID = creator.String
	if confidence.Valid {
		v := confidence.Float64
		x.Confidence = &v
	}
	if err := json.Unmarshal(payload, &x.ExtractedJSON); err != nil {
		return model.DocumentExtraction{}, err
	}
	return x, nil
}

// CreateExtraction copies company and case from the document row so an
// extraction can never point outside its document's tenant.
func (s *Store) CreateExtraction(ctx context.Context, x model.DocumentExtraction) (model.DocumentExtraction, error) {
	if s.db == nil {
		return model.DocumentExtraction{}, errNoDB
	}
	if x.ID == "" {
		x.ID = ids.NewEntityID()
	}
	payload, err := json.Marshal(x.ExtractedJSON)
	if err != nil {
		return model.DocumentExtraction{}, err
	}
	var confidence sql.NullFloat64
	if x.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *x.Confidence, Valid: true}
	}
	saved, err := scanExtraction(s.db.QueryRowContext(ctx, `
		insert into document_extractions (id, client_id, document_id, company_id, case_id, created_by_user_id,
			provider, model_name, schema_version, extracted_json, confidence, status, error_message)
		select $1, d.client_id, d.id, d.company_id, d.case_id, $4, $5, $6, $7, $8, $9, $10, $11
		from documents d where d.id = $3 and d.client_id = $2
		returning `+extractionColumns,
		x.ID, x.TenantID, x.DocumentID, nullIfEmpty(x.CreatedByUserID),
		nullIfEmpty(x.Provider), nullIfEmpty(x.ModelName), x.SchemaVersion, payload, confidence,
		x.Status, nullIfEmpty(x.ErrorMessage)))
	if err != nil {
		return model.DocumentExtraction{}, mapErr(err)
	}
	return saved, nil
}

func (s *Store) ListExtractions(ctx context.Context, tenantID, documentID string, limit, offset int) ([]model.DocumentExtraction, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+extractionColumns+` from document_extractions
		where client_id = $1 and document_id = $2
		order by created_at desc, id desc
		limit $3 offset $4`, tenantID, documentID, limit, offset)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.DocumentExtraction
	for rows.Next() {
		x, err := scanExtraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

func (s *Store) LatestExtraction(ctx context.Context, tenantID, documentID string) (model.DocumentExtraction, error) {
	if s.db == nil {
		return model.DocumentExtraction{}, errNoDB
	}
	x, err := scanExtraction(s.db.QueryRowContext(ctx, `
		select `+extractionColumns+` from document_extractions
		where client_id = $1 and document_id = $2
		order by created_at desc, id desc
		limit 1`, tenantID, documentID))
	if err != nil {
		return model.DocumentExtraction{}, mapErr(err)
	}
	return x, nil
}
