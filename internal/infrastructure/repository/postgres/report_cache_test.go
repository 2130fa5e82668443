package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/tenancy"
)

func acmeCtx() context.Context {
	return tenancy.WithTenant(context.Background(), "acme")
}

func TestReportCacheGetMissReturnsNilNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	cache := NewReportCache(db)
	mock.ExpectQuery("FROM analysis_reports").
		WithArgs("acme", "fp-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"report"}))

	report, err := cache.Get(acmeCtx(), "fp-1", 24*time.Hour)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if report != nil {
		t.Fatalf("expected miss, got %+v", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReportCacheGetHitDecodesReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	stored := domain.Report{AnalysisID: "analysis_1", PermitID: "p-1", TenantID: "acme", OverallConfidence: 0.7}
	raw, _ := json.Marshal(stored)

	cache := NewReportCache(db)
	mock.ExpectQuery("FROM analysis_reports").
		WithArgs("acme", "fp-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"report"}).AddRow(raw))

	report, err := cache.Get(acmeCtx(), "fp-1", 24*time.Hour)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if report == nil || report.AnalysisID != "analysis_1" || report.OverallConfidence != 0.7 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReportCacheGetRequiresTenant(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	cache := NewReportCache(db)
	_, err = cache.Get(context.Background(), "fp-1", time.Hour)
	if !domain.IsKind(err, domain.ErrTenantContextMissing) {
		t.Fatalf("expected ErrTenantContextMissing, got %v", err)
	}
}

func TestReportCachePutUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	cache := NewReportCache(db)
	mock.ExpectExec("INSERT INTO analysis_reports").
		WithArgs("acme", "fp-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	report := &domain.Report{AnalysisID: "analysis_1", TenantID: "acme"}
	if err := cache.Put(acmeCtx(), "fp-1", report); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReportCachePruneReportsCountError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	cache := NewReportCache(db)
	mock.ExpectExec("DELETE FROM analysis_reports").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows affected unsupported")))

	if _, err := cache.PruneOlderThan(context.Background(), 24*time.Hour); err == nil {
		t.Fatalf("expected error when the affected-row count is unavailable")
	}
}
