package ports

import (
	"context"
	"io"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
)

// PermitAnalyzer is the single inbound entry point for analysis. It never
// errors for business-level failures: unit failures, retrieval degradation
// and deadline expiry all still produce a well-formed (possibly degraded)
// report. Only a missing tenant or invalid permit is a hard error.
type PermitAnalyzer interface {
	RunAnalysis(ctx context.Context, tenant domain.TenantID, permit domain.Permit) (*domain.Report, error)
}

// DocumentIngestor accepts tenant reference documents for indexing.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType, title, category string, body io.Reader) (*domain.ReferenceDocument, error)
}

// DocumentProcessor indexes an uploaded document asynchronously.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document metadata.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.ReferenceDocument, error)
}

// TenantEraser removes all indexed data of the context tenant, confirmed.
type TenantEraser interface {
	EraseTenantData(ctx context.Context) error
}
