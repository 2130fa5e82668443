package weaviate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/tenancy"
)

func acmeCtx() context.Context {
	return tenancy.WithTenant(context.Background(), "acme")
}

// fakeWeaviate is a minimal in-process stand-in for the REST surface the
// client touches. Handlers can be overridden per test.
type fakeWeaviate struct {
	mux    *http.ServeMux
	server *httptest.Server

	graphqlCalls atomic.Int32
	lastQuery    atomic.Value // string
}

func newFakeWeaviate(t *testing.T) *fakeWeaviate {
	t.Helper()
	f := &fakeWeaviate{mux: http.NewServeMux()}
	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeWeaviate) respondGraphQL(data string) {
	f.mux.HandleFunc("/v1/graphql", func(w http.ResponseWriter, r *http.Request) {
		f.graphqlCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Query string `json:"query"`
		}
		_ = json.Unmarshal(body, &payload)
		f.lastQuery.Store(payload.Query)
		_, _ = w.Write([]byte(`{"data":` + data + `}`))
	})
}

func (f *fakeWeaviate) query() string {
	q, _ := f.lastQuery.Load().(string)
	return q
}

func TestShardedSearchOrdersByRelevanceThenID(t *testing.T) {
	fake := newFakeWeaviate(t)
	fake.mux.HandleFunc("/v1/schema/SafetyDocument/tenants", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"tenant_acme"}]`))
	})
	fake.respondGraphQL(`{"Get":{"SafetyDocument":[
		{"documentCode":"PRO-2","title":"b","content":"x","_additional":{"id":"id-b","score":"0.5"}},
		{"documentCode":"PRO-3","title":"c","content":"x","_additional":{"id":"id-c","score":0.9}},
		{"documentCode":"PRO-1","title":"a","content":"x","_additional":{"id":"id-a","score":"0.5"}}
	]}}`)

	backend := NewShardedBackend(New(fake.server.URL, "SafetyDocument"))
	docs, err := backend.Search(acmeCtx(), "welding", domain.SearchFilter{}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	gotIDs := []string{docs[0].ID, docs[1].ID, docs[2].ID}
	wantIDs := []string{"id-c", "id-a", "id-b"}
	for i := range wantIDs {
		if gotIDs[i] != wantIDs[i] {
			t.Fatalf("order = %v, want %v", gotIDs, wantIDs)
		}
	}
	if !strings.Contains(fake.query(), `tenant: "tenant_acme"`) {
		t.Fatalf("query missing tenant shard argument:\n%s", fake.query())
	}
}

func TestShardedSearchDegradesToEmptyOnBackendError(t *testing.T) {
	fake := newFakeWeaviate(t)
	fake.mux.HandleFunc("/v1/schema/SafetyDocument/tenants", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"tenant_acme"}]`))
	})
	fake.mux.HandleFunc("/v1/graphql", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "shard unavailable", http.StatusInternalServerError)
	})

	backend := NewShardedBackend(New(fake.server.URL, "SafetyDocument"))
	docs, err := backend.Search(acmeCtx(), "welding", domain.SearchFilter{}, 5)
	if err != nil {
		t.Fatalf("transient backend failure must degrade, got error %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", docs)
	}
}

func TestShardedSearchRequiresTenant(t *testing.T) {
	backend := NewShardedBackend(New("http://unreachable.invalid", "SafetyDocument"))
	_, err := backend.Search(context.Background(), "welding", domain.SearchFilter{}, 5)
	if !domain.IsKind(err, domain.ErrTenantContextMissing) {
		t.Fatalf("expected ErrTenantContextMissing, got %v", err)
	}
}

func TestFilteredSearchInjectsTenantOperand(t *testing.T) {
	fake := newFakeWeaviate(t)
	fake.respondGraphQL(`{"Get":{"SafetyDocument":[]}}`)

	backend := NewFilteredBackend(New(fake.server.URL, "SafetyDocument"))
	_, err := backend.Search(acmeCtx(), "welding", domain.SearchFilter{Category: "procedures"}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	query := fake.query()
	if !strings.Contains(query, `path: ["tenantId"], operator: Equal, valueText: "acme"`) {
		t.Fatalf("query missing tenant operand:\n%s", query)
	}
	if !strings.Contains(query, `path: ["category"]`) {
		t.Fatalf("query missing category operand:\n%s", query)
	}
	if strings.Contains(query, "tenant: ") {
		t.Fatalf("filtered mode must not use the native tenant argument:\n%s", query)
	}
}

func TestIndexChunksUsesDeterministicIDs(t *testing.T) {
	var batches [][]BatchObject
	fake := newFakeWeaviate(t)
	fake.mux.HandleFunc("/v1/schema/SafetyDocument/tenants", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`[{"name":"tenant_acme"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	fake.mux.HandleFunc("/v1/batch/objects", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Objects []BatchObject `json:"objects"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		batches = append(batches, payload.Objects)
		_, _ = w.Write([]byte(`[]`))
	})

	backend := NewShardedBackend(New(fake.server.URL, "SafetyDocument"))
	chunks := []domain.DocumentChunk{
		{DocumentCode: "PRO-07", Title: "LOTO", Content: "lockout", ChunkIndex: 0},
		{DocumentCode: "PRO-07", Title: "LOTO", Content: "tagout", ChunkIndex: 1},
	}

	if err := backend.IndexChunks(acmeCtx(), chunks); err != nil {
		t.Fatalf("first IndexChunks() error = %v", err)
	}
	if err := backend.IndexChunks(acmeCtx(), chunks); err != nil {
		t.Fatalf("second IndexChunks() error = %v", err)
	}

	if len(batches) != 2 || len(batches[0]) != 2 {
		t.Fatalf("unexpected batch shape: %d batches", len(batches))
	}
	for i := range batches[0] {
		if batches[0][i].ID != batches[1][i].ID {
			t.Fatalf("re-index produced different id for chunk %d", i)
		}
		if batches[0][i].Tenant != "tenant_acme" {
			t.Fatalf("object %d missing tenant shard: %q", i, batches[0][i].Tenant)
		}
	}
	if batches[0][0].ID == batches[0][1].ID {
		t.Fatalf("distinct chunks share an id")
	}
}

func TestShardedDeleteTenantDataConfirmsErasure(t *testing.T) {
	var listCalls atomic.Int32
	fake := newFakeWeaviate(t)
	fake.mux.HandleFunc("/v1/schema/SafetyDocument/tenants", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusOK)
			return
		}
		listCalls.Add(1)
		_, _ = w.Write([]byte(`[{"name":"tenant_other"}]`))
	})

	backend := NewShardedBackend(New(fake.server.URL, "SafetyDocument"))
	if err := backend.DeleteTenantData(acmeCtx()); err != nil {
		t.Fatalf("DeleteTenantData() error = %v", err)
	}
	if got := listCalls.Load(); got != erasureConfirmations {
		t.Fatalf("expected %d confirmation re-queries, got %d", erasureConfirmations, got)
	}
}

func TestShardedDeleteTenantDataUnconfirmedWhenShardPersists(t *testing.T) {
	fake := newFakeWeaviate(t)
	fake.mux.HandleFunc("/v1/schema/SafetyDocument/tenants", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte(`[{"name":"tenant_acme"}]`))
	})

	backend := NewShardedBackend(New(fake.server.URL, "SafetyDocument"))
	err := backend.DeleteTenantData(acmeCtx())
	if !domain.IsKind(err, domain.ErrErasureUnconfirmed) {
		t.Fatalf("expected ErrErasureUnconfirmed, got %v", err)
	}
}

func TestFilteredDeleteTenantDataRepeatsBatchDelete(t *testing.T) {
	var deleteCalls atomic.Int32
	fake := newFakeWeaviate(t)
	fake.mux.HandleFunc("/v1/batch/objects", func(w http.ResponseWriter, r *http.Request) {
		if deleteCalls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"results":{"matches":120}}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":{"matches":0}}`))
	})
	fake.respondGraphQL(`{"Aggregate":{"SafetyDocument":[{"meta":{"count":0}}]}}`)

	backend := NewFilteredBackend(New(fake.server.URL, "SafetyDocument"))
	if err := backend.DeleteTenantData(acmeCtx()); err != nil {
		t.Fatalf("DeleteTenantData() error = %v", err)
	}
	if got := deleteCalls.Load(); got != 2 {
		t.Fatalf("expected batch delete repeated until zero matches, got %d calls", got)
	}
	if got := fake.graphqlCalls.Load(); got != erasureConfirmations {
		t.Fatalf("expected %d count confirmations, got %d", erasureConfirmations, got)
	}
}

func TestSelectBackendPrefersShardedOnFreshCluster(t *testing.T) {
	var created bool
	fake := newFakeWeaviate(t)
	fake.mux.HandleFunc("/v1/.well-known/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	fake.mux.HandleFunc("/v1/schema/SafetyDocument", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	fake.mux.HandleFunc("/v1/schema", func(w http.ResponseWriter, r *http.Request) {
		var schema classSchema
		_ = json.NewDecoder(r.Body).Decode(&schema)
		created = schema.MultiTenancyConfig != nil && schema.MultiTenancyConfig.Enabled
		w.WriteHeader(http.StatusOK)
	})

	backend := SelectBackend(context.Background(), New(fake.server.URL, "SafetyDocument"), SelectorConfig{})
	if backend.Mode() != ports.RetrievalModeSharded {
		t.Fatalf("mode = %s, want sharded", backend.Mode())
	}
	if !created {
		t.Fatalf("fresh class not created with multi-tenancy enabled")
	}
}

func TestSelectBackendFallsBackToFilteredWithoutMultiTenancy(t *testing.T) {
	fake := newFakeWeaviate(t)
	fake.mux.HandleFunc("/v1/.well-known/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	fake.mux.HandleFunc("/v1/schema/SafetyDocument", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"class":"SafetyDocument"}`))
	})

	backend := SelectBackend(context.Background(), New(fake.server.URL, "SafetyDocument"), SelectorConfig{})
	if backend.Mode() != ports.RetrievalModeFiltered {
		t.Fatalf("mode = %s, want filtered", backend.Mode())
	}
}

func TestSelectBackendNullWhenUnreachable(t *testing.T) {
	client := New("http://127.0.0.1:1", "SafetyDocument")
	backend := SelectBackend(context.Background(), client, SelectorConfig{})
	if backend.Mode() != ports.RetrievalModeNull {
		t.Fatalf("mode = %s, want null", backend.Mode())
	}
}

func TestSelectBackendForceMode(t *testing.T) {
	client := New("http://127.0.0.1:1", "SafetyDocument")
	backend := SelectBackend(context.Background(), client, SelectorConfig{ForceMode: ports.RetrievalModeFiltered})
	if backend.Mode() != ports.RetrievalModeFiltered {
		t.Fatalf("forced mode ignored, got %s", backend.Mode())
	}
}

func TestNullBackendBehaviour(t *testing.T) {
	backend := NewNullBackend()

	docs, err := backend.Search(acmeCtx(), "welding", domain.SearchFilter{}, 5)
	if err != nil || len(docs) != 0 {
		t.Fatalf("null search = (%v, %v), want empty ok", docs, err)
	}
	if err := backend.IndexChunks(acmeCtx(), []domain.DocumentChunk{{Content: "x"}}); !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("null index error = %v", err)
	}
	if err := backend.DeleteTenantData(acmeCtx()); !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("null erase error = %v", err)
	}
}
