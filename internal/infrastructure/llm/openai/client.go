package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/resilience"
)

// Client drives any OpenAI-compatible chat completion endpoint. BaseURL makes
// it work against hosted APIs and self-hosted gateways alike.
type Client struct {
	api      *goopenai.Client
	model    string
	executor *resilience.Executor
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

func New(cfg Config, executor *resilience.Executor) *Client {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:      goopenai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		executor: executor,
	}
}

var _ ports.LanguageModel = (*Client)(nil)

func (c *Client) Invoke(ctx context.Context, prompt ports.StructuredPrompt) (json.RawMessage, error) {
	userContent := prompt.Task
	if prompt.Input != nil {
		encoded, err := json.MarshalIndent(prompt.Input, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal prompt input: %w", err)
		}
		userContent += "\n\nInput:\n" + string(encoded)
	}

	request := goopenai.ChatCompletionRequest{
		Model: c.model,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: goopenai.ChatMessageRoleUser, Content: userContent},
		},
	}

	var content string
	call := func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, request)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("chat completion returned no choices")
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "openai_chat_completion", call, classifyOpenAIError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("chat completion returned non-JSON content")
	}
	return json.RawMessage(content), nil
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 408, 429, 500, 502, 503, 504:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
