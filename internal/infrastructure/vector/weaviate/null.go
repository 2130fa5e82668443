package weaviate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/tenancy"
)

// NullBackend stands in when no vector store is reachable. Searches degrade
// to empty context so analysis still runs; writes and erasure fail loudly
// because silently dropping them would be unsafe.
type NullBackend struct{}

func NewNullBackend() *NullBackend { return &NullBackend{} }

func (*NullBackend) Mode() string { return ports.RetrievalModeNull }

func (*NullBackend) Search(ctx context.Context, _ string, _ domain.SearchFilter, _ int) ([]domain.RetrievedDocument, error) {
	tenant, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	slog.Warn("retrieval_search_degraded", "mode", ports.RetrievalModeNull, "tenant_id", tenant)
	return []domain.RetrievedDocument{}, nil
}

func (*NullBackend) IndexChunks(ctx context.Context, _ []domain.DocumentChunk) error {
	if _, err := tenancy.Require(ctx); err != nil {
		return err
	}
	return domain.WrapError(domain.ErrRetrievalUnavailable, "index chunks",
		errors.New("no retrieval backend available"))
}

func (*NullBackend) DeleteTenantData(ctx context.Context) error {
	if _, err := tenancy.Require(ctx); err != nil {
		return err
	}
	return domain.WrapError(domain.ErrRetrievalUnavailable, "delete tenant data",
		errors.New("no retrieval backend available"))
}
