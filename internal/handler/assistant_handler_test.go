package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/assistant"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type assistantMock struct {
	history []assistant.Message
	err     error
}

func (m *assistantMock) Chat(ctx context.Context, history []assistant.Message) (*assistant.ChatResult, error) {
	m.history = history
	if m.err != nil {
		return nil, m.err
	}
	return &assistant.ChatResult{
		Reply:    "5A has 30 students.",
		Provider: "mock",
		Rounds:   2,
		Messages: []assistant.Message{{Role: assistant.RoleTool, Content: "{}"}},
	}, nil
}

func (m *assistantMock) ListModels(ctx context.Context) ([]string, error) {
	return []string{"gpt-4o-mini"}, nil
}

func (m *assistantMock) ProviderName() string { return "mock" }

func newEchoRegistry(t *testing.T) *assistant.Registry {
	t.Helper()
	reg := assistant.NewRegistry(nil, nil, nil)
	require.NoError(t, reg.Register(assistant.Tool{
		Name:        "echo",
		Description: "Echo arguments",
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var out map[string]interface{}
			if err := json.Unmarshal(args, &out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}))
	return reg
}

func TestAssistantHandlerListTools(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAssistantHandler(nil, newEchoRegistry(t))

	c, w := newGinContext(http.MethodGet, "/assistant/tools", nil)
	h.ListTools(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []ToolInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "echo", body.Data[0].Name)
	assert.Equal(t, "object", body.Data[0].Parameters["type"])
}

func TestAssistantHandlerCallTool(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAssistantHandler(nil, newEchoRegistry(t))

	c, w := newGinContext(http.MethodPost, "/assistant/tools/echo", []byte(`{"class_id":"c1"}`))
	c.Params = gin.Params{{Key: "name", Value: "echo"}}
	h.CallTool(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"class_id":"c1"}}`, w.Body.String())
}

func TestAssistantHandlerCallUnknownTool(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAssistantHandler(nil, newEchoRegistry(t))

	c, w := newGinContext(http.MethodPost, "/assistant/tools/nope", []byte(`{}`))
	c.Params = gin.Params{{Key: "name", Value: "nope"}}
	h.CallTool(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssistantHandlerChat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &assistantMock{}
	h := NewAssistantHandler(mock, newEchoRegistry(t))

	c, w := newGinContext(http.MethodPost, "/assistant/chat", []byte(`{"messages":[{"role":"user","content":"How many students in 5A?"}]}`))
	h.Chat(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mock.history, 1)
	assert.Equal(t, "user", mock.history[0].Role)
	assert.Contains(t, w.Body.String(), "5A has 30 students.")
	assert.NotContains(t, w.Body.String(), `"messages"`)
}

func TestAssistantHandlerChatValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAssistantHandler(&assistantMock{}, newEchoRegistry(t))

	c, w := newGinContext(http.MethodPost, "/assistant/chat", []byte(`{"messages":[]}`))
	h.Chat(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssistantHandlerChatUpstreamFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAssistantHandler(&assistantMock{err: appErrors.Clone(appErrors.ErrUpstream, "assistant provider request failed")}, newEchoRegistry(t))

	c, w := newGinContext(http.MethodPost, "/assistant/chat", []byte(`{"messages":[{"role":"user","content":"hi"}]}`))
	h.Chat(c)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestAssistantHandlerDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAssistantHandler(nil, newEchoRegistry(t))

	c, w := newGinContext(http.MethodPost, "/assistant/chat", []byte(`{"messages":[{"role":"user","content":"hi"}]}`))
	h.Chat(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = newGinContext(http.MethodGet, "/assistant/models", nil)
	h.Models(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAssistantHandlerModels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAssistantHandler(&assistantMock{}, newEchoRegistry(t))

	c, w := newGinContext(http.MethodGet, "/assistant/models", nil)
	h.Models(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":["gpt-4o-mini"],"meta":{"provider":"mock"}}`, w.Body.String())
}
