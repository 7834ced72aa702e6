package assistant

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/logger"
)

const defaultMaxRounds = 5

// DefaultSystemPrompt frames the model as a gradebook helper.
const DefaultSystemPrompt = "You are a teaching assistant for a school gradebook. " +
	"Answer using the provided tools to read classes, students, grades, attendance, incidents and curriculum coverage. " +
	"Grades range from 0 to 10. Never invent identifiers; look them up first."

// ChatResult is the outcome of one conversation turn.
type ChatResult struct {
	Reply     string    `json:"reply"`
	Provider  string    `json:"provider"`
	Rounds    int       `json:"rounds"`
	ToolCalls []string  `json:"tool_calls"`
	Truncated bool      `json:"truncated"`
	Messages  []Message `json:"messages,omitempty"`
}

// Assistant runs the tool-calling loop against a provider.
type Assistant struct {
	provider     Provider
	registry     *Registry
	maxRounds    int
	systemPrompt string
	logger       *zap.Logger
}

// New builds an Assistant. maxRounds <= 0 falls back to the default.
func New(provider Provider, registry *Registry, maxRounds int, logger *zap.Logger) *Assistant {
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		provider:     provider,
		registry:     registry,
		maxRounds:    maxRounds,
		systemPrompt: DefaultSystemPrompt,
		logger:       logger,
	}
}

// Registry exposes the tool registry for direct invocation.
func (a *Assistant) Registry() *Registry {
	return a.registry
}

// ProviderName returns the configured provider label.
func (a *Assistant) ProviderName() string {
	if a.provider == nil {
		return ""
	}
	return a.provider.Name()
}

// ListModels proxies to the provider.
func (a *Assistant) ListModels(ctx context.Context) ([]string, error) {
	if a.provider == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "assistant provider not configured")
	}
	models, err := a.provider.ListModels(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to list models")
	}
	return models, nil
}

// Chat answers the conversation in history. A system prompt is prepended
// when history does not start with one. Tool failures are reported back to
// the model as tool messages rather than aborting the turn. When the round
// limit is reached the last assistant text is returned with Truncated set.
func (a *Assistant) Chat(ctx context.Context, history []Message) (*ChatResult, error) {
	if a.provider == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "assistant provider not configured")
	}
	if len(history) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "messages are required")
	}

	messages := make([]Message, 0, len(history)+1)
	if history[0].Role != RoleSystem {
		messages = append(messages, Message{Role: RoleSystem, Content: a.systemPrompt})
	}
	messages = append(messages, history...)

	log := logger.FromContext(ctx, a.logger).With(zap.String("provider", a.provider.Name()))
	schemas := a.registry.Schemas()
	result := &ChatResult{Provider: a.provider.Name(), ToolCalls: []string{}}

	for round := 1; round <= a.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Rounds = round

		resp, err := a.provider.Chat(ctx, messages, schemas)
		if err != nil {
			log.Error("assistant provider failed", zap.Int("round", round), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "assistant provider request failed")
		}

		reply := resp.Message
		reply.Role = RoleAssistant
		messages = append(messages, reply)
		result.Reply = strings.TrimSpace(reply.Content)

		if len(reply.ToolCalls) == 0 {
			result.Messages = messages
			log.Debug("assistant answered", zap.Int("rounds", round), zap.Strings("tools", result.ToolCalls))
			return result, nil
		}

		for _, call := range reply.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, call.Name)
			messages = append(messages, a.runTool(ctx, call))
		}
	}

	log.Warn("assistant reached round limit", zap.Int("max_rounds", a.maxRounds), zap.Strings("tools", result.ToolCalls))
	result.Truncated = true
	result.Messages = messages
	return result, nil
}

func (a *Assistant) runTool(ctx context.Context, call ToolCall) Message {
	msg := Message{Role: RoleTool, ToolCallID: call.ID, Name: call.Name}

	output, err := a.registry.Call(ctx, call.Name, call.Arguments)
	if err != nil {
		msg.Content = encodeToolPayload(map[string]string{"error": appErrors.FromError(err).Message})
		return msg
	}
	msg.Content = encodeToolPayload(output)
	return msg
}

func encodeToolPayload(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"error":"unable to encode tool result"}`
	}
	return string(data)
}
