package ports

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
)

// Retrieval modes advertised by RetrievalBackend implementations.
const (
	RetrievalModeSharded  = "sharded"
	RetrievalModeFiltered = "filtered"
	RetrievalModeNull     = "null"
)

// RetrievalBackend searches and maintains tenant-scoped reference material.
// The active tenant is taken from the request context (tenancy package), not
// from a parameter: a missed parameter must not be able to widen visibility.
//
// Search degrades on transient backend failure: implementations log and
// return an empty slice rather than erroring, so retrieval trouble never
// aborts an analysis run. Results are ordered by relevance descending with
// document id ascending as the tiebreak.
type RetrievalBackend interface {
	Search(ctx context.Context, queryText string, filter domain.SearchFilter, limit int) ([]domain.RetrievedDocument, error)
	IndexChunks(ctx context.Context, chunks []domain.DocumentChunk) error
	// DeleteTenantData removes every indexed document of the context tenant
	// and confirms the deletion by re-querying before returning nil.
	DeleteTenantData(ctx context.Context) error
	Mode() string
}

// StructuredPrompt is the opaque contract with the language capability:
// structured input in, structured JSON out.
type StructuredPrompt struct {
	System string
	Task   string
	Input  any
}

// LanguageModel invokes the underlying model. Prompt content and model choice
// are adapter concerns; callers only rely on JSON-or-error semantics.
type LanguageModel interface {
	Invoke(ctx context.Context, prompt StructuredPrompt) (json.RawMessage, error)
}

// ReportCache stores recent reports keyed by permit fingerprint within the
// active tenant. Get returns (nil, nil) on a miss or an entry older than
// maxAge.
type ReportCache interface {
	Get(ctx context.Context, fingerprint string, maxAge time.Duration) (*domain.Report, error)
	Put(ctx context.Context, fingerprint string, report *domain.Report) error
}

// DocumentRepository persists reference document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.ReferenceDocument) error
	GetByID(ctx context.Context, id string) (*domain.ReferenceDocument, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
}

// ObjectStorage stores uploaded source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// AnalysisRequest is the wire payload for asynchronous analysis. The tenant
// travels explicitly because context values do not cross the queue.
type AnalysisRequest struct {
	TenantID domain.TenantID `json:"tenant_id"`
	Permit   domain.Permit   `json:"permit"`
}

// DocumentEvent identifies an uploaded document awaiting indexing.
type DocumentEvent struct {
	TenantID   domain.TenantID `json:"tenant_id"`
	DocumentID string          `json:"document_id"`
}

// MessageQueue publishes and consumes ingestion and analysis events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, event DocumentEvent) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, DocumentEvent) error) error
	PublishAnalysisRequested(ctx context.Context, request AnalysisRequest) error
	SubscribeAnalysisRequested(ctx context.Context, handler func(context.Context, AnalysisRequest) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.ReferenceDocument) (string, error)
}

// Chunker splits text into indexable chunks.
type Chunker interface {
	Split(text string) []string
}
