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

// erasure confirmation: the tenant list is re-read this many times with this
// spacing before erasure is reported as done.
const (
	erasureConfirmations = 3
	erasureConfirmDelay  = 200 * time.Millisecond
)

// ShardedBackend isolates tenants with Weaviate native multi-tenancy: every
// tenant lives in its own shard and every operation names exactly one shard,
// so cross-tenant reads are structurally impossible rather than filtered out.
type ShardedBackend struct {
	client *Client
}

func NewShardedBackend(client *Client) *ShardedBackend {
	return &ShardedBackend{client: client}
}

func (b *ShardedBackend) Mode() string { return ports.RetrievalModeSharded }

func (b *ShardedBackend) Search(
	ctx context.Context,
	queryText string,
	filter domain.SearchFilter,
	limit int,
) ([]domain.RetrievedDocument, error) {
	tenant, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	shard := shardName(tenant)
	if err := b.client.EnsureTenant(ctx, shard); err != nil {
		slog.Warn("retrieval_search_degraded", "mode", b.Mode(), "tenant_id", tenant, "error", err)
		return []domain.RetrievedDocument{}, nil
	}

	data, err := b.client.Query(ctx, searchQuery(b.client.Class(), shard, queryText, filterOperands(filter), limit))
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

func (b *ShardedBackend) IndexChunks(ctx context.Context, chunks []domain.DocumentChunk) error {
	tenant, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	shard := shardName(tenant)
	if err := b.client.EnsureTenant(ctx, shard); err != nil {
		return fmt.Errorf("ensure tenant shard: %w", err)
	}

	objects := make([]BatchObject, 0, len(chunks))
	for _, chunk := range chunks {
		objects = append(objects, BatchObject{
			ID:         chunkObjectID(tenant, chunk),
			Class:      b.client.Class(),
			Tenant:     shard,
			Properties: chunkProperties(tenant, chunk),
		})
	}
	if err := b.client.BatchObjects(ctx, objects); err != nil {
		return fmt.Errorf("batch upsert chunks: %w", err)
	}
	return nil
}

// DeleteTenantData drops the tenant's shard and confirms by re-reading the
// tenant list until the shard stays gone. Returning nil means the data is
// verifiably unreachable, not just that a delete was issued.
func (b *ShardedBackend) DeleteTenantData(ctx context.Context) error {
	tenant, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	shard := shardName(tenant)

	if err := b.client.DeleteTenant(ctx, shard); err != nil {
		return fmt.Errorf("delete tenant shard: %w", err)
	}

	for i := 0; i < erasureConfirmations; i++ {
		select {
		case <-ctx.Done():
			return domain.WrapError(domain.ErrErasureUnconfirmed, "confirm erasure", ctx.Err())
		case <-time.After(erasureConfirmDelay):
		}

		tenants, err := b.client.ListTenants(ctx)
		if err != nil {
			return domain.WrapError(domain.ErrErasureUnconfirmed, "confirm erasure", err)
		}
		for _, name := range tenants {
			if name == shard {
				return domain.WrapError(domain.ErrErasureUnconfirmed, "confirm erasure",
					fmt.Errorf("shard %s still present after delete", shard))
			}
		}
	}
	return nil
}
