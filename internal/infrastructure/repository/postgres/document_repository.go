package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/tenancy"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS reference_documents (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	document_code TEXT,
	title TEXT,
	category TEXT,
	document_type TEXT,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reference_documents_tenant ON reference_documents(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reference_documents_status ON reference_documents(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.ReferenceDocument) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO reference_documents (
	id, tenant_id, filename, mime_type, storage_path, document_code, title, category, document_type, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		doc.ID, doc.TenantID.String(), doc.Filename, doc.MimeType, doc.StoragePath, doc.DocumentCode,
		doc.Title, doc.Category, doc.DocumentType, string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reference document: %w", err)
	}
	return nil
}

// GetByID reads within the context tenant only. A document owned by another
// tenant is indistinguishable from a missing one.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.ReferenceDocument, error) {
	tenant, err := tenancy.Require(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTenantContextMissing, "get document", err)
	}

	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, filename, mime_type, storage_path, document_code, title, category, document_type, status, error_message, created_at, updated_at
FROM reference_documents
WHERE id = $1 AND tenant_id = $2
`, id, tenant.String())

	var doc domain.ReferenceDocument
	var owner, status string

	err = row.Scan(
		&doc.ID, &owner, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.DocumentCode,
		&doc.Title, &doc.Category, &doc.DocumentType, &status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan reference document: %w", err)
	}

	doc.TenantID = domain.TenantID(owner)
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE reference_documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}
