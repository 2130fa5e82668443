package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/tenancy"
)

type docRepoFake struct {
	docs        map[string]*domain.ReferenceDocument
	transitions []domain.DocumentStatus
	lastError   string
}

func newDocRepoFake() *docRepoFake {
	return &docRepoFake{docs: map[string]*domain.ReferenceDocument{}}
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.ReferenceDocument) error {
	f.docs[doc.ID] = doc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.ReferenceDocument, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (f *docRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.transitions = append(f.transitions, status)
	f.lastError = errMessage
	if doc, ok := f.docs[id]; ok {
		doc.Status = status
		doc.Error = errMessage
	}
	return nil
}

type storageFake struct {
	saved map[string]string
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[key] = string(b)
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	content, ok := f.saved[key]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

type queueFake struct {
	documentEvents []ports.DocumentEvent
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, event ports.DocumentEvent) error {
	f.documentEvents = append(f.documentEvents, event)
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, ports.DocumentEvent) error) error {
	return nil
}

func (f *queueFake) PublishAnalysisRequested(context.Context, ports.AnalysisRequest) error {
	return nil
}

func (f *queueFake) SubscribeAnalysisRequested(context.Context, func(context.Context, ports.AnalysisRequest) error) error {
	return nil
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, *domain.ReferenceDocument) (string, error) {
	return f.text, f.err
}

type chunkerFake struct{ size int }

func (f *chunkerFake) Split(text string) []string {
	size := f.size
	if size <= 0 {
		size = 20
	}
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

func tenantCtx(tenant domain.TenantID) context.Context {
	return tenancy.WithTenant(context.Background(), tenant)
}

func TestUploadStoresPublishesAndStampsTenant(t *testing.T) {
	repo := newDocRepoFake()
	storage := &storageFake{}
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	doc, err := uc.Upload(tenantCtx("acme"), "LOTO procedure.pdf", "application/pdf",
		"LOTO", "company_procedures", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.TenantID != "acme" {
		t.Fatalf("tenant not stamped: %q", doc.TenantID)
	}
	if doc.Status != domain.StatusUploaded {
		t.Fatalf("status = %s", doc.Status)
	}
	if len(storage.saved) != 1 {
		t.Fatalf("expected one stored object, got %d", len(storage.saved))
	}
	for key := range storage.saved {
		if strings.Contains(key, " ") {
			t.Fatalf("storage key not sanitized: %q", key)
		}
	}
	if len(queue.documentEvents) != 1 {
		t.Fatalf("expected one ingestion event, got %d", len(queue.documentEvents))
	}
	if event := queue.documentEvents[0]; event.TenantID != "acme" || event.DocumentID != doc.ID {
		t.Fatalf("event = %+v", event)
	}
}

func TestUploadRequiresTenant(t *testing.T) {
	uc := NewIngestDocumentUseCase(newDocRepoFake(), &storageFake{}, &queueFake{})
	_, err := uc.Upload(context.Background(), "a.txt", "text/plain", "", "", strings.NewReader("x"))
	if !domain.IsKind(err, domain.ErrTenantContextMissing) {
		t.Fatalf("expected ErrTenantContextMissing, got %v", err)
	}
}

func TestProcessByIDIndexesChunks(t *testing.T) {
	repo := newDocRepoFake()
	repo.docs["doc-1"] = &domain.ReferenceDocument{
		ID:       "doc-1",
		TenantID: "acme",
		Filename: "welding.txt",
		Status:   domain.StatusUploaded,
	}
	retrieval := &retrievalFake{}
	uc := NewProcessDocumentUseCase(repo, &extractorFake{text: strings.Repeat("safety text ", 10)}, &chunkerFake{}, retrieval)

	if err := uc.ProcessByID(tenantCtx("acme"), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(retrieval.indexed) == 0 {
		t.Fatalf("no chunks indexed")
	}
	for i, chunk := range retrieval.indexed {
		if chunk.ChunkIndex != i {
			t.Fatalf("chunk %d has index %d", i, chunk.ChunkIndex)
		}
		if chunk.DocumentCode != "doc-1" {
			t.Fatalf("document code not defaulted to id: %q", chunk.DocumentCode)
		}
		if chunk.Title != "welding.txt" {
			t.Fatalf("title not defaulted to filename: %q", chunk.Title)
		}
	}
	want := []domain.DocumentStatus{domain.StatusProcessing, domain.StatusIndexed}
	if len(repo.transitions) != 2 || repo.transitions[0] != want[0] || repo.transitions[1] != want[1] {
		t.Fatalf("status transitions = %v, want %v", repo.transitions, want)
	}
}

func TestProcessByIDRejectsForeignTenant(t *testing.T) {
	repo := newDocRepoFake()
	repo.docs["doc-1"] = &domain.ReferenceDocument{ID: "doc-1", TenantID: "acme"}
	uc := NewProcessDocumentUseCase(repo, &extractorFake{text: "x"}, &chunkerFake{}, &retrievalFake{})

	err := uc.ProcessByID(tenantCtx("other"), "doc-1")
	if !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(repo.transitions) != 0 {
		t.Fatalf("foreign tenant must not touch document status")
	}
}

func TestProcessByIDMarksFailedOnExtractError(t *testing.T) {
	repo := newDocRepoFake()
	repo.docs["doc-1"] = &domain.ReferenceDocument{ID: "doc-1", TenantID: "acme"}
	uc := NewProcessDocumentUseCase(repo, &extractorFake{err: errors.New("corrupt pdf")}, &chunkerFake{}, &retrievalFake{})

	if err := uc.ProcessByID(tenantCtx("acme"), "doc-1"); err == nil {
		t.Fatalf("expected error")
	}
	if got := repo.docs["doc-1"].Status; got != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", got)
	}
	if repo.lastError == "" {
		t.Fatalf("failure reason not persisted")
	}
}

func TestEraseTenantData(t *testing.T) {
	retrieval := &retrievalFake{}
	uc := NewEraseTenantUseCase(retrieval)

	if err := uc.EraseTenantData(tenantCtx("acme")); err != nil {
		t.Fatalf("EraseTenantData() error = %v", err)
	}
	if !retrieval.deleted {
		t.Fatalf("backend delete not invoked")
	}

	if err := uc.EraseTenantData(context.Background()); err == nil {
		t.Fatalf("erasure without tenant must fail closed")
	}
}
