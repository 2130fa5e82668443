package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
	"github.com/kirillkom/safety-permit-analyzer/internal/observability/metrics"
)

const serviceName = "api"

type RouterConfig struct {
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxConcurrent   int
	BackpressureMax time.Duration
}

type Router struct {
	analyzer ports.PermitAnalyzer
	ingestor ports.DocumentIngestor
	reader   ports.DocumentReader
	eraser   ports.TenantEraser
	queue    ports.MessageQueue
	metrics  *metrics.HTTPServerMetrics
	cfg      RouterConfig
}

func NewRouter(
	analyzer ports.PermitAnalyzer,
	ingestor ports.DocumentIngestor,
	reader ports.DocumentReader,
	eraser ports.TenantEraser,
	queue ports.MessageQueue,
	m *metrics.HTTPServerMetrics,
	cfg RouterConfig,
) *Router {
	return &Router{
		analyzer: analyzer,
		ingestor: ingestor,
		reader:   reader,
		eraser:   eraser,
		queue:    queue,
		metrics:  m,
		cfg:      cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	// Tenant-scoped API surface. The tenant middleware sits inside the
	// traffic controls so unauthenticated floods are shed first.
	api := http.NewServeMux()
	api.HandleFunc("/v1/permits/analyze", rt.analyzePermit)
	api.HandleFunc("/v1/documents", rt.uploadDocument)
	api.HandleFunc("/v1/documents/", rt.getDocumentByID)
	api.HandleFunc("/v1/tenant/data", rt.eraseTenantData)

	var protected http.Handler = tenantMiddleware(api)
	if rt.cfg.RateLimitRPS > 0 {
		protected = rateLimitMiddleware(protected, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	}
	if rt.cfg.MaxConcurrent > 0 {
		protected = backpressureMiddleware(protected, rt.cfg.MaxConcurrent, rt.cfg.BackpressureMax)
	}
	mux.Handle("/v1/", protected)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type analyzeRequest struct {
	Async  bool `json:"async"`
	Permit struct {
		ID               string   `json:"id"`
		Title            string   `json:"title"`
		Description      string   `json:"description"`
		Category         string   `json:"category"`
		Location         string   `json:"location"`
		DeclaredMeasures []string `json:"declared_measures"`
		DeclaredActions  []string `json:"declared_actions"`
	} `json:"permit"`
}

func (req analyzeRequest) toDomain() domain.Permit {
	return domain.Permit{
		ID:               req.Permit.ID,
		Title:            req.Permit.Title,
		Description:      req.Permit.Description,
		Category:         req.Permit.Category,
		Location:         req.Permit.Location,
		DeclaredMeasures: req.Permit.DeclaredMeasures,
		DeclaredActions:  req.Permit.DeclaredActions,
	}
}

func (rt *Router) analyzePermit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	tenant, ok := tenantFromRequest(w, r)
	if !ok {
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	permit := req.toDomain()
	if strings.TrimSpace(permit.Title) == "" && strings.TrimSpace(permit.Description) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "permit title or description is required"})
		return
	}

	if req.Async {
		if rt.queue == nil {
			writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "async analysis is not configured"})
			return
		}
		request := ports.AnalysisRequest{TenantID: tenant, Permit: permit}
		if err := rt.queue.PublishAnalysisRequested(r.Context(), request); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":    "queued",
			"permit_id": permit.ID,
		})
		return
	}

	started := time.Now()
	report, err := rt.analyzer.RunAnalysis(r.Context(), tenant, permit)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAnalysis(serviceName, report.Degraded, time.Since(started), report.Metrics.DocumentsRetrieved)
		for _, result := range report.UnitResults {
			rt.metrics.RecordUnitResult(serviceName, result.UnitName, result.Complete)
		}
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		r.FormValue("title"),
		r.FormValue("category"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) eraseTenantData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := rt.eraser.EraseTenantData(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "erased"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
