package assistant

import (
	"context"
	"encoding/json"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// ToolAudit marks a tool as mutating. Successful calls are written to the
// audit trail under Action and Resource; ResourceArg names the argument
// holding the resource id.
type ToolAudit struct {
	Action      string
	Resource    string
	ResourceArg string
}

type auditRecorder interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

// Caller identifies who triggered a tool call.
type Caller struct {
	UserID    string
	IPAddress string
}

type callerKey struct{}

// WithCaller attaches the caller to ctx.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller attached by WithCaller.
func CallerFrom(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok
}

// SetAuditor routes audited tool calls to recorder. nil disables the trail.
func (r *Registry) SetAuditor(recorder auditRecorder) {
	r.mu.Lock()
	r.auditor = recorder
	r.mu.Unlock()
}

func (r *Registry) audit(ctx context.Context, tool Tool, args json.RawMessage) {
	r.mu.RLock()
	recorder := r.auditor
	r.mu.RUnlock()
	if recorder == nil || tool.Audit == nil {
		return
	}

	entry := models.AuditEntry{Action: tool.Audit.Action, Resource: tool.Audit.Resource}
	if caller, ok := CallerFrom(ctx); ok {
		entry.IPAddress = caller.IPAddress
		if caller.UserID != "" {
			userID := caller.UserID
			entry.UserID = &userID
		}
	}

	var fields map[string]interface{}
	_ = json.Unmarshal(args, &fields)
	if id, ok := fields[tool.Audit.ResourceArg].(string); ok && id != "" {
		entry.ResourceID = &id
	}
	entry.Details, _ = json.Marshal(map[string]interface{}{
		"tool":      tool.Name,
		"arguments": fields,
	})
	recorder.Record(ctx, entry)
}
