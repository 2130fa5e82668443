package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/tenancy"
)

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	retrieval ports.RetrievalBackend
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	retrieval ports.RetrievalBackend,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		retrieval: retrieval,
	}
}

// ProcessByID extracts, chunks and indexes an uploaded document into the
// context tenant's shard. Indexing is idempotent: redelivered queue events
// re-upsert the same chunks under the same deterministic ids.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	tenant, err := tenancy.Require(ctx)
	if err != nil {
		return domain.WrapError(domain.ErrTenantContextMissing, "process document", err)
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.TenantID != tenant {
		// The event claimed a tenant that does not own this document.
		return domain.WrapError(domain.ErrUnauthorized, "process document",
			fmt.Errorf("document %s does not belong to tenant %s", documentID, tenant))
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if err := uc.index(ctx, doc); err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, documentID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusIndexed, ""); err != nil {
		return fmt.Errorf("set status=indexed: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) index(ctx context.Context, doc *domain.ReferenceDocument) error {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}

	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	code := doc.DocumentCode
	if code == "" {
		code = doc.ID
	}
	title := doc.Title
	if title == "" {
		title = doc.Filename
	}

	out := make([]domain.DocumentChunk, 0, len(chunks))
	for i, chunk := range chunks {
		out = append(out, domain.DocumentChunk{
			DocumentCode: code,
			Title:        title,
			Content:      chunk,
			Category:     doc.Category,
			DocumentType: doc.DocumentType,
			ChunkIndex:   i,
		})
	}

	if err := uc.retrieval.IndexChunks(ctx, out); err != nil {
		return fmt.Errorf("index chunks in retrieval backend: %w", err)
	}
	return nil
}
