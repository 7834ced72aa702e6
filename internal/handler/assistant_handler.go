package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/assistant"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type assistantService interface {
	Chat(ctx context.Context, history []assistant.Message) (*assistant.ChatResult, error)
	ListModels(ctx context.Context) ([]string, error)
	ProviderName() string
}

type toolRegistry interface {
	List() []assistant.Tool
	Call(ctx context.Context, name string, args json.RawMessage) (interface{}, error)
}

// ChatRequest is the payload of POST /assistant/chat.
type ChatRequest struct {
	Messages []assistant.Message `json:"messages" binding:"required,min=1"`
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// AssistantHandler exposes the LLM assistant and its tools.
type AssistantHandler struct {
	assistant assistantService
	tools     toolRegistry
}

// NewAssistantHandler constructs AssistantHandler. assistant may be nil when
// no provider is configured; tools remain callable directly.
func NewAssistantHandler(asst assistantService, tools toolRegistry) *AssistantHandler {
	return &AssistantHandler{assistant: asst, tools: tools}
}

// ListTools godoc
// @Summary List assistant tools
// @Tags Assistant
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /assistant/tools [get]
func (h *AssistantHandler) ListTools(c *gin.Context) {
	tools := h.tools.List()
	out := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolInfo{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// CallTool godoc
// @Summary Invoke a tool directly
// @Tags Assistant
// @Accept json
// @Produce json
// @Param name path string true "Tool name"
// @Param payload body object false "Tool arguments"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assistant/tools/{name} [post]
func (h *AssistantHandler) CallTool(c *gin.Context) {
	var args json.RawMessage
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			response.Error(c, appErrors.Invalid(err, "invalid tool arguments"))
			return
		}
	}
	result, err := h.tools.Call(toolContext(c), c.Param("name"), args)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Chat godoc
// @Summary Chat with the assistant
// @Tags Assistant
// @Accept json
// @Produce json
// @Param payload body ChatRequest true "Conversation"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /assistant/chat [post]
func (h *AssistantHandler) Chat(c *gin.Context) {
	if h.assistant == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "assistant is disabled"))
		return
	}
	var req ChatRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.assistant.Chat(toolContext(c), req.Messages)
	if err != nil {
		response.Error(c, err)
		return
	}
	result.Messages = nil
	response.JSON(c, http.StatusOK, result, nil)
}

// Models godoc
// @Summary List provider models
// @Tags Assistant
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /assistant/models [get]
func (h *AssistantHandler) Models(c *gin.Context) {
	if h.assistant == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "assistant is disabled"))
		return
	}
	models, err := h.assistant.ListModels(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, models, nil, map[string]interface{}{"provider": h.assistant.ProviderName()})
}

// toolContext carries the caller into tool calls so mutating tools reach
// the audit trail.
func toolContext(c *gin.Context) context.Context {
	caller := assistant.Caller{IPAddress: c.ClientIP()}
	if claims := claimsFromContext(c); claims != nil {
		caller.UserID = claims.UserID
	}
	return assistant.WithCaller(c.Request.Context(), caller)
}
