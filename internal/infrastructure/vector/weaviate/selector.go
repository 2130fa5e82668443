package weaviate

import (
	"context"
	"log/slog"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
)

// SelectorConfig steers backend selection. ForceMode pins a specific mode and
// skips probing; it exists for tests and for operators who know their cluster.
type SelectorConfig struct {
	ForceMode string
}

// SelectBackend probes the cluster once at startup and picks the strongest
// isolation the deployment supports:
//
//	reachable + native multi-tenancy  -> sharded
//	reachable, class without MT       -> filtered
//	unreachable or schema failure     -> null
//
// The decision is made once; a cluster that comes up later needs a restart to
// upgrade from null.
func SelectBackend(ctx context.Context, client *Client, cfg SelectorConfig) ports.RetrievalBackend {
	switch cfg.ForceMode {
	case ports.RetrievalModeSharded:
		return NewShardedBackend(client)
	case ports.RetrievalModeFiltered:
		return NewFilteredBackend(client)
	case ports.RetrievalModeNull:
		return NewNullBackend()
	}

	if err := client.Ready(ctx); err != nil {
		slog.Warn("retrieval_backend_selected", "mode", ports.RetrievalModeNull, "reason", err.Error())
		return NewNullBackend()
	}

	schema, err := client.GetClass(ctx)
	if err != nil {
		slog.Warn("retrieval_backend_selected", "mode", ports.RetrievalModeNull, "reason", err.Error())
		return NewNullBackend()
	}

	if schema == nil {
		// Fresh cluster: create the class with native multi-tenancy.
		if err := client.EnsureClass(ctx, true); err != nil {
			slog.Warn("retrieval_backend_selected", "mode", ports.RetrievalModeNull, "reason", err.Error())
			return NewNullBackend()
		}
		slog.Info("retrieval_backend_selected", "mode", ports.RetrievalModeSharded, "class", client.Class())
		return NewShardedBackend(client)
	}

	if schema.MultiTenancyConfig != nil && schema.MultiTenancyConfig.Enabled {
		slog.Info("retrieval_backend_selected", "mode", ports.RetrievalModeSharded, "class", client.Class())
		return NewShardedBackend(client)
	}

	// Existing class created before multi-tenancy: fall back to property
	// filtering rather than migrating data in-place.
	slog.Info("retrieval_backend_selected", "mode", ports.RetrievalModeFiltered, "class", client.Class())
	return NewFilteredBackend(client)
}
