package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// OllamaBaseURL is the default local Ollama endpoint.
const OllamaBaseURL = "http://localhost:11434"

// Ollama talks to a local Ollama server through its native API.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewOllama constructs an Ollama provider.
func NewOllama(model, baseURL string, client *http.Client, logger *zap.Logger) *Ollama {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ollama{
		baseURL: strings.TrimRight(firstNonEmpty(baseURL, OllamaBaseURL), "/"),
		model:   firstNonEmpty(model, "llama3.1"),
		client:  client,
		logger:  logger,
	}
}

// Name returns the provider label.
func (p *Ollama) Name() string {
	return "Ollama"
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []openAITool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message    ollamaMessage `json:"message"`
	DoneReason string        `json:"done_reason"`
	Error      string        `json:"error"`
}

// Chat sends a non-streaming /api/chat request. Ollama does not assign tool
// call ids, so they are derived from the call position.
func (p *Ollama) Chat(ctx context.Context, messages []Message, tools []ToolSchema) (*Response, error) {
	req := ollamaChatRequest{Model: p.model, Stream: false}
	for _, m := range messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, call := range m.ToolCalls {
			var tc ollamaToolCall
			tc.Function.Name = call.Name
			tc.Function.Arguments = call.Arguments
			om.ToolCalls = append(om.ToolCalls, tc)
		}
		req.Messages = append(req.Messages, om)
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openAITool{Type: "function", Function: t})
	}

	var out ollamaChatResponse
	if err := p.do(ctx, http.MethodPost, "/api/chat", req, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama: %s", out.Error)
	}
	msg := Message{Role: RoleAssistant, Content: out.Message.Content}
	for i, call := range out.Message.ToolCalls {
		args := call.Function.Arguments
		if len(bytes.TrimSpace(args)) == 0 || string(args) == "null" {
			args = json.RawMessage("{}")
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return &Response{Message: msg, FinishReason: out.DoneReason}, nil
}

// ListModels returns locally installed models from /api/tags.
func (p *Ollama) ListModels(ctx context.Context) ([]string, error) {
	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := p.do(ctx, http.MethodGet, "/api/tags", nil, &out); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		models = append(models, m.Name)
	}
	sort.Strings(models)
	return models, nil
}

func (p *Ollama) do(ctx context.Context, method, path string, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ollama read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("ollama decode response: %w", err)
	}
	p.logger.Debug("llm request completed", zap.String("provider", "Ollama"), zap.String("path", path))
	return nil
}
