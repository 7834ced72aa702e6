package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/pkg/config"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of a chat conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolSchema advertises a tool to the model.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Response is the model's answer for one round.
type Response struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Provider is an LLM backend able to chat with tool support.
type Provider interface {
	Name() string
	Chat(ctx context.Context, messages []Message, tools []ToolSchema) (*Response, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Provider identifiers accepted in configuration.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderMaritaca   = "maritaca"
	ProviderOllama     = "ollama"
)

// NewProvider selects the provider named in cfg. BaseURL overrides the
// provider's public endpoint when set.
func NewProvider(cfg config.AssistantConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL, client, logger), nil
	case ProviderOpenRouter:
		return NewOpenRouter(cfg.APIKey, cfg.Model, cfg.BaseURL, client, logger), nil
	case ProviderMaritaca:
		return NewMaritaca(cfg.APIKey, cfg.Model, cfg.BaseURL, client, logger), nil
	case ProviderOllama:
		return NewOllama(cfg.Model, cfg.BaseURL, client, logger), nil
	default:
		return nil, fmt.Errorf("unknown assistant provider %q", cfg.Provider)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
