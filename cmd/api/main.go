package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/safety-permit-analyzer/internal/adapters/http"
	"github.com/kirillkom/safety-permit-analyzer/internal/bootstrap"
	"github.com/kirillkom/safety-permit-analyzer/internal/config"
	"github.com/kirillkom/safety-permit-analyzer/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	serverMetrics := metrics.NewHTTPServerMetrics(serviceName)
	serverMetrics.SetRetrievalMode(serviceName, app.Retrieval.Mode())

	router := httpadapter.NewRouter(
		app.AnalyzeUC,
		app.IngestUC,
		app.Reader,
		app.EraseUC,
		app.Queue,
		serverMetrics,
		httpadapter.RouterConfig{
			RateLimitRPS:    cfg.RateLimitRPS,
			RateLimitBurst:  cfg.RateLimitBurst,
			MaxConcurrent:   cfg.MaxConcurrent,
			BackpressureMax: cfg.BackpressureWait,
		},
	)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}
