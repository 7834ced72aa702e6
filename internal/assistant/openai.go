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

// Public endpoints of the OpenAI-compatible providers.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	MaritacaBaseURL   = "https://chat.maritaca.ai/api"
)

// OpenAICompatible talks to any backend exposing the chat completions API.
type OpenAICompatible struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	client      *http.Client
	logger      *zap.Logger
	modelFilter func(id string) bool
}

// NewOpenAI returns a provider for api.openai.com. Only GPT models are listed.
func NewOpenAI(apiKey, model, baseURL string, client *http.Client, logger *zap.Logger) *OpenAICompatible {
	p := newOpenAICompatible("OpenAI", firstNonEmpty(baseURL, OpenAIBaseURL), apiKey, firstNonEmpty(model, "gpt-4o-mini"), client, logger)
	p.modelFilter = func(id string) bool { return strings.Contains(id, "gpt") }
	return p
}

// NewOpenRouter returns a provider for openrouter.ai.
func NewOpenRouter(apiKey, model, baseURL string, client *http.Client, logger *zap.Logger) *OpenAICompatible {
	return newOpenAICompatible("OpenRouter", firstNonEmpty(baseURL, OpenRouterBaseURL), apiKey, firstNonEmpty(model, "mistralai/mistral-7b-instruct:free"), client, logger)
}

// NewMaritaca returns a provider for Maritaca AI.
func NewMaritaca(apiKey, model, baseURL string, client *http.Client, logger *zap.Logger) *OpenAICompatible {
	return newOpenAICompatible("Maritaca", firstNonEmpty(baseURL, MaritacaBaseURL), apiKey, firstNonEmpty(model, "sabia-3"), client, logger)
}

func newOpenAICompatible(name, baseURL, apiKey, model string, client *http.Client, logger *zap.Logger) *OpenAICompatible {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAICompatible{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  client,
		logger:  logger,
	}
}

// Name returns the provider label.
func (p *OpenAICompatible) Name() string {
	return p.name
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAITool struct {
	Type     string     `json:"type"`
	Function ToolSchema `json:"function"`
}

type openAIChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Tools    []openAITool    `json:"tools,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat sends one chat completions request.
func (p *OpenAICompatible) Chat(ctx context.Context, messages []Message, tools []ToolSchema) (*Response, error) {
	req := openAIChatRequest{Model: p.model, Messages: make([]openAIMessage, 0, len(messages))}
	for _, m := range messages {
		req.Messages = append(req.Messages, toOpenAIMessage(m))
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openAITool{Type: "function", Function: t})
	}

	var out openAIChatResponse
	if err := p.do(ctx, http.MethodPost, "/chat/completions", req, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty choices", p.name)
	}
	choice := out.Choices[0]
	msg := Message{Role: RoleAssistant}
	if choice.Message.Content != nil {
		msg.Content = *choice.Message.Content
	}
	for _, call := range choice.Message.ToolCalls {
		args := json.RawMessage(call.Function.Arguments)
		if len(bytes.TrimSpace(args)) == 0 {
			args = json.RawMessage("{}")
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: call.ID, Name: call.Function.Name, Arguments: args})
	}
	return &Response{Message: msg, FinishReason: choice.FinishReason}, nil
}

// ListModels returns the sorted model identifiers exposed by the backend.
func (p *OpenAICompatible) ListModels(ctx context.Context) ([]string, error) {
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := p.do(ctx, http.MethodGet, "/models", nil, &out); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		if p.modelFilter != nil && !p.modelFilter(m.ID) {
			continue
		}
		models = append(models, m.ID)
	}
	sort.Strings(models)
	return models, nil
}

func (p *OpenAICompatible) do(ctx context.Context, method, path string, body, dest interface{}) error {
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
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", p.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s read body: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp openAIErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error.Message != "" {
			return fmt.Errorf("%s: status %d: %s", p.name, resp.StatusCode, errResp.Error.Message)
		}
		return fmt.Errorf("%s: status %d: %s", p.name, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%s decode response: %w", p.name, err)
	}
	p.logger.Debug("llm request completed", zap.String("provider", p.name), zap.String("path", path))
	return nil
}

func toOpenAIMessage(m Message) openAIMessage {
	content := m.Content
	out := openAIMessage{Role: m.Role, Content: &content, ToolCallID: m.ToolCallID, Name: m.Name}
	if m.Role == RoleAssistant && len(m.ToolCalls) > 0 {
		if content == "" {
			out.Content = nil
		}
		for _, call := range m.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openAIToolCall{
				ID:       call.ID,
				Type:     "function",
				Function: openAIFunctionCall{Name: call.Name, Arguments: string(call.Arguments)},
			})
		}
	}
	return out
}
