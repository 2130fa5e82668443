package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
)

func TestDocumentRepositoryGetByIDMapsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewDocumentRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "filename", "mime_type", "storage_path", "document_code",
		"title", "category", "document_type", "status", "error_message", "created_at", "updated_at",
	}).AddRow("doc-1", "acme", "loto.pdf", "application/pdf", "doc-1_loto.pdf", "PRO-07",
		"LOTO", "company_procedures", "procedure", string(domain.StatusIndexed), "", now, now)

	mock.ExpectQuery("FROM reference_documents").
		WithArgs("doc-1", "acme").
		WillReturnRows(rows)

	doc, err := repo.GetByID(acmeCtx(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.TenantID != "acme" || doc.Status != domain.StatusIndexed || doc.DocumentCode != "PRO-07" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDocumentRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewDocumentRepository(db)
	mock.ExpectQuery("FROM reference_documents").
		WithArgs("missing", "acme").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.GetByID(acmeCtx(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestDocumentRepositoryGetByIDScopedToTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	// doc-a belongs to another tenant; the tenant predicate must make it
	// look missing rather than leak its metadata.
	repo := NewDocumentRepository(db)
	mock.ExpectQuery("FROM reference_documents").
		WithArgs("doc-a", "acme").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.GetByID(acmeCtx(), "doc-a")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound for foreign document, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDocumentRepositoryGetByIDRequiresTenant(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewDocumentRepository(db)
	_, err = repo.GetByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrTenantContextMissing) {
		t.Fatalf("expected ErrTenantContextMissing, got %v", err)
	}
}

func TestDocumentRepositoryCreateInsertsTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewDocumentRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO reference_documents").
		WithArgs("doc-1", "acme", "loto.pdf", "application/pdf", "doc-1_loto.pdf", "",
			"LOTO", "company_procedures", "", string(domain.StatusUploaded), "", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	doc := &domain.ReferenceDocument{
		ID:          "doc-1",
		TenantID:    "acme",
		Filename:    "loto.pdf",
		MimeType:    "application/pdf",
		StoragePath: "doc-1_loto.pdf",
		Title:       "LOTO",
		Category:    "company_procedures",
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Create(acmeCtx(), doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
