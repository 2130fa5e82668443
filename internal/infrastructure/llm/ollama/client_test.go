package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/resilience"
)

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		Retry: resilience.RetryPolicy{
			MaxAttempts:    2,
			InitialBackoff: 1 * time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Multiplier:     2,
		},
	})
}

func TestInvokeRendersStructuredPrompt(t *testing.T) {
	var capturedPrompt string
	var capturedFormat string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		capturedFormat, _ = payload["format"].(string)
		_, _ = w.Write([]byte(`{"response":"{\"summary\":\"ok\"}"}`))
	}))
	defer server.Close()

	client := New(server.URL, "llama3", fastExecutor())
	raw, err := client.Invoke(context.Background(), ports.StructuredPrompt{
		System: "You are a safety analyst.",
		Task:   "Classify the risks.",
		Input:  map[string]string{"title": "Tank welding"},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !strings.Contains(capturedPrompt, "safety analyst") ||
		!strings.Contains(capturedPrompt, "Classify the risks.") ||
		!strings.Contains(capturedPrompt, "Tank welding") {
		t.Fatalf("unexpected prompt: %s", capturedPrompt)
	}
	if capturedFormat != "json" {
		t.Fatalf("format = %q, want json", capturedFormat)
	}
	if !json.Valid(raw) {
		t.Fatalf("invalid JSON returned: %s", raw)
	}
}

func TestInvokeStripsModelChatterAroundJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"Here is the result:\n{\"confidence\": 0.8}\nHope that helps."}`))
	}))
	defer server.Close()

	client := New(server.URL, "llama3", nil)
	raw, err := client.Invoke(context.Background(), ports.StructuredPrompt{Task: "x"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	var out struct {
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal extracted object: %v", err)
	}
	if out.Confidence != 0.8 {
		t.Fatalf("confidence = %v", out.Confidence)
	}
}

func TestInvokeRejectsNonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"I cannot answer that."}`))
	}))
	defer server.Close()

	client := New(server.URL, "llama3", nil)
	if _, err := client.Invoke(context.Background(), ports.StructuredPrompt{Task: "x"}); err == nil {
		t.Fatalf("expected error for non-JSON model output")
	}
}

func TestInvokeRetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response":"{}"}`))
	}))
	defer server.Close()

	client := New(server.URL, "llama3", fastExecutor())
	if _, err := client.Invoke(context.Background(), ports.StructuredPrompt{Task: "x"}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}
