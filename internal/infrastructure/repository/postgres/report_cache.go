package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/tenancy"
)

// ReportCache persists finished reports keyed by (tenant, permit fingerprint)
// so a re-submitted identical permit inside the validity window returns the
// stored report without re-running the pipeline. The tenant key comes from
// context, the same fail-closed rule as the retrieval backends.
type ReportCache struct {
	db *sql.DB
}

func NewReportCache(db *sql.DB) *ReportCache {
	return &ReportCache{db: db}
}

func (c *ReportCache) EnsureSchema(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082102)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS analysis_reports (
	tenant_id TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	report JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_analysis_reports_created_at ON analysis_reports(created_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Get returns (nil, nil) when no fresh entry exists. Stale rows are treated
// as misses and left for the janitor delete in Put.
func (c *ReportCache) Get(ctx context.Context, fingerprint string, maxAge time.Duration) (*domain.Report, error) {
	tenant, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-maxAge)

	row := c.db.QueryRowContext(ctx, `
SELECT report
FROM analysis_reports
WHERE tenant_id = $1 AND fingerprint = $2 AND created_at >= $3
`, tenant.String(), fingerprint, cutoff)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan cached report: %w", err)
	}

	var report domain.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("unmarshal cached report: %w", err)
	}
	return &report, nil
}

func (c *ReportCache) Put(ctx context.Context, fingerprint string, report *domain.Report) error {
	tenant, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
INSERT INTO analysis_reports (tenant_id, fingerprint, report, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tenant_id, fingerprint)
DO UPDATE SET report = EXCLUDED.report, created_at = EXCLUDED.created_at
`, tenant.String(), fingerprint, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert cached report: %w", err)
	}
	return nil
}

// PruneOlderThan removes expired entries. The worker calls it periodically;
// correctness does not depend on it because Get filters by age.
func (c *ReportCache) PruneOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := c.db.ExecContext(ctx, `DELETE FROM analysis_reports WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune cached reports: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned reports: %w", err)
	}
	return affected, nil
}
