package weaviate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/tenancy"
)

// FilteredBackend is the fallback for clusters whose class predates native
// multi-tenancy. Isolation rests on a mandatory tenantId where-operand that
// this backend injects on every query; the operand comes from context, never
// from callers.
type FilteredBackend struct {
	client *Client
}

func NewFilteredBackend(client *Client) *FilteredBackend {
	return &FilteredBackend{client: client}
}

func (b *FilteredBackend) Mode() string { return ports.RetrievalModeFiltered }

func tenantOperand(tenant domain.TenantID) whereOperand {
	return whereOperand{path: "tenantId", value: tenant.String()}
}

func (b *FilteredBackend) Search(
	ctx context.Context,
	queryText string,
	filter domain.SearchFilter,
	limit int,
) ([]domain.RetrievedDocument, error) {
	tenant, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}

	operands := append([]whereOperand{tenantOperand(tenant)}, filterOperands(filter)...)
	data, err := b.client.Query(ctx, searchQuery(b.client.Class(), "", queryText, operands, limit))
	if err != nil {
		slog.Warn("retrieval_search_degraded", "mode", b.Mode(), "tenant_id", tenant, "error", err)
		return []domain.RetrievedDocument{}, nil
	}
	docs, err := decodeSearch(b.client.Class(), data)
	if err != nil {
		slog.Warn("retrieval_search_degraded", "mode", b.Mode(), "tenant_id", tenant, "error", err)
		return []domain.RetrievedDocument{}, nil
	}
	return docs, nil
}

func (b *FilteredBackend) IndexChunks(ctx context.Context, chunks []domain.DocumentChunk) error {
	tenant, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	objects := make([]BatchObject, 0, len(chunks))
	for _, chunk := range chunks {
		objects = append(objects, BatchObject{
			ID:         chunkObjectID(tenant, chunk),
			Class:      b.client.Class(),
			Properties: chunkProperties(tenant, chunk),
		})
	}
	if err := b.client.BatchObjects(ctx, objects); err != nil {
		return fmt.Errorf("batch upsert chunks: %w", err)
	}
	return nil
}

// DeleteTenantData removes every object carrying the tenant's id and confirms
// with repeated count queries until the tenant's object count stays at zero.
func (b *FilteredBackend) DeleteTenantData(ctx context.Context) error {
	tenant, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	operands := []whereOperand{tenantOperand(tenant)}

	if err := b.deleteMatching(ctx, tenant); err != nil {
		return fmt.Errorf("delete tenant objects: %w", err)
	}

	for i := 0; i < erasureConfirmations; i++ {
		select {
		case <-ctx.Done():
			return domain.WrapError(domain.ErrErasureUnconfirmed, "confirm erasure", ctx.Err())
		case <-time.After(erasureConfirmDelay):
		}

		count, err := runCount(ctx, b.client, "", operands)
		if err != nil {
			return domain.WrapError(domain.ErrErasureUnconfirmed, "confirm erasure", err)
		}
		if count > 0 {
			return domain.WrapError(domain.ErrErasureUnconfirmed, "confirm erasure",
				fmt.Errorf("%d objects remain for tenant %s", count, tenant))
		}
	}
	return nil
}

// deleteMatching uses the batch delete API with a tenantId match. Weaviate
// caps one call at its QUERY_MAXIMUM_RESULTS, so the call repeats until a
// pass matches nothing.
func (b *FilteredBackend) deleteMatching(ctx context.Context, tenant domain.TenantID) error {
	payload := map[string]any{
		"match": map[string]any{
			"class": b.client.Class(),
			"where": map[string]any{
				"path":      []string{"tenantId"},
				"operator":  "Equal",
				"valueText": tenant.String(),
			},
		},
	}

	for {
		var out struct {
			Results struct {
				Matches int `json:"matches"`
			} `json:"results"`
		}
		if err := b.client.batchDelete(ctx, payload, &out); err != nil {
			return err
		}
		if out.Results.Matches == 0 {
			return nil
		}
	}
}
