package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/safety-permit-analyzer/internal/bootstrap"
	"github.com/kirillkom/safety-permit-analyzer/internal/config"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/tenancy"
	"github.com/kirillkom/safety-permit-analyzer/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("worker metrics server error: %v", err)
		}
	}()

	errs := make(chan error, 2)

	go func() {
		errs <- app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, event ports.DocumentEvent) error {
			processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
			defer cancel()
			processCtx = tenancy.WithTenant(processCtx, event.TenantID)

			workerMetrics.StartDocument()
			started := time.Now()
			err := app.ProcessUC.ProcessByID(processCtx, event.DocumentID)
			workerMetrics.FinishDocument(serviceName, time.Since(started), err)
			return err
		})
	}()

	go func() {
		errs <- app.Queue.SubscribeAnalysisRequested(ctx, func(handlerCtx context.Context, request ports.AnalysisRequest) error {
			analysisCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
			defer cancel()
			analysisCtx = tenancy.WithTenant(analysisCtx, request.TenantID)

			_, err := app.AnalyzeUC.RunAnalysis(analysisCtx, request.TenantID, request.Permit)
			workerMetrics.FinishAnalysisRequest(serviceName, err)
			return err
		})
	}()

	select {
	case err := <-errs:
		if err != nil {
			log.Fatalf("worker subscribe error: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
