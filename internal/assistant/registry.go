package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

// Handler executes a tool with raw JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Tool is a named capability the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Handler     Handler
	Audit       *ToolAudit
}

type toolRecorder interface {
	RecordToolCall(tool string, err error)
}

// Registry holds the tools exposed to the assistant.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	validate *validator.Validate
	metrics  toolRecorder
	auditor  auditRecorder
	logger   *zap.Logger
}

// NewRegistry builds an empty registry. metrics may be nil.
func NewRegistry(validate *validator.Validate, metrics toolRecorder, logger *zap.Logger) *Registry {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{tools: make(map[string]Tool), validate: validate, metrics: metrics, logger: logger}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" || tool.Handler == nil {
		return fmt.Errorf("tool requires a name and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %q already registered", tool.Name)
	}
	if tool.Parameters == nil {
		tool.Parameters = objectSchema(nil)
	}
	r.tools[tool.Name] = tool
	return nil
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Schemas returns the advertisement sent to providers.
func (r *Registry) Schemas() []ToolSchema {
	tools := r.List()
	schemas := make([]ToolSchema, 0, len(tools))
	for _, t := range tools {
		schemas = append(schemas, ToolSchema{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return schemas
}

// Call runs a tool by name.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		err := appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("tool %s not found", name))
		r.record(name, err)
		return nil, err
	}
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	result, err := tool.Handler(ctx, args)
	r.record(name, err)
	if err != nil {
		r.logger.Warn("assistant tool failed", zap.String("tool", name), zap.Error(err))
		return nil, err
	}
	r.audit(ctx, tool, args)
	return result, nil
}

func (r *Registry) record(name string, err error) {
	if r.metrics != nil {
		r.metrics.RecordToolCall(name, err)
	}
}

// decodeArgs unmarshals and validates tool arguments into dest.
func (r *Registry) decodeArgs(args json.RawMessage, dest interface{}) error {
	if err := json.Unmarshal(args, dest); err != nil {
		return appErrors.Invalid(err, "invalid tool arguments")
	}
	if err := r.validate.Struct(dest); err != nil {
		return appErrors.Invalid(err, "invalid tool arguments")
	}
	return nil
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func numberProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": description}
}
