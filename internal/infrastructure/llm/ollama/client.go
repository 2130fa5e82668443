package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/resilience"
)

// Client invokes a local Ollama instance in structured-output mode. Every
// invocation requests format=json and the response must parse as a single
// JSON object; anything else is an invocation error the caller records as a
// unit failure.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, model string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

var _ ports.LanguageModel = (*Client)(nil)

func (c *Client) Invoke(ctx context.Context, prompt ports.StructuredPrompt) (json.RawMessage, error) {
	text, err := renderPrompt(prompt)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"model":  c.model,
		"prompt": text,
		"stream": false,
		"format": "json",
	}

	var raw string
	call := func(ctx context.Context) error {
		var response struct {
			Response string `json:"response"`
		}
		if err := c.postJSON(ctx, "/api/generate", reqBody, &response); err != nil {
			return err
		}
		raw = strings.TrimSpace(response.Response)
		return nil
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama_generate", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama generate", err)
	}

	object := extractJSONObject(raw)
	if !json.Valid([]byte(object)) {
		return nil, fmt.Errorf("ollama returned non-JSON response")
	}
	return json.RawMessage(object), nil
}

// renderPrompt flattens the structured prompt into the single prompt string
// the generate API takes. The input travels as indented JSON so the model
// sees field names verbatim.
func renderPrompt(prompt ports.StructuredPrompt) (string, error) {
	var b strings.Builder
	if prompt.System != "" {
		b.WriteString(prompt.System)
		b.WriteString("\n\n")
	}
	if prompt.Task != "" {
		b.WriteString(prompt.Task)
		b.WriteString("\n\n")
	}
	if prompt.Input != nil {
		encoded, err := json.MarshalIndent(prompt.Input, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal prompt input: %w", err)
		}
		b.WriteString("Input:\n")
		b.Write(encoded)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// extractJSONObject trims model chatter around the JSON payload. Models in
// json mode still occasionally wrap the object in prose or fencing.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
