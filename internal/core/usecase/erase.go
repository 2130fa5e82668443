package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/tenancy"
)

// EraseTenantUseCase implements compliant full erasure of a tenant's indexed
// reference data. The backend deletes the whole shard and confirms by
// re-query before this returns nil; there is no soft-delete flag.
type EraseTenantUseCase struct {
	retrieval ports.RetrievalBackend
}

func NewEraseTenantUseCase(retrieval ports.RetrievalBackend) *EraseTenantUseCase {
	return &EraseTenantUseCase{retrieval: retrieval}
}

func (uc *EraseTenantUseCase) EraseTenantData(ctx context.Context) error {
	tenant, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	if err := uc.retrieval.DeleteTenantData(ctx); err != nil {
		return fmt.Errorf("delete tenant data: %w", err)
	}
	slog.Info("tenant_data_erased", "tenant_id", tenant)
	return nil
}
