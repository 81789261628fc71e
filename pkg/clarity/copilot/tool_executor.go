// Package copilot – tool_executor.go manages the registry of callable tools
// and dispatches tool calls from the LLM to the appropriate handlers.
//
// The registry is the single source of truth: the same declaration is used
// both to advertise a tool to the model and to validate and execute it, so
// the two can never drift apart. Every call produces its own success/error
// envelope; a failure in one call never aborts its siblings.
package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DefaultToolTimeout is the maximum time a single tool execution can take.
const DefaultToolTimeout = 30 * time.Second

// ParamSpec declares one argument of a tool: its JSON type, whether it is
// required, and an optional enum constraint.
type ParamSpec struct {
	Name        string
	Type        string // "string", "integer", "boolean", "object"
	Description string
	Required    bool
	Enum        []string
}

// ToolHandlerFunc is the signature for tool execution handlers. Receives
// validated arguments and returns a result envelope. A returned error is
// folded into a {success:false, error} envelope by the executor.
type ToolHandlerFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// Tool bundles a tool declaration with its handler.
type Tool struct {
	Name        string
	Description string
	Params      []ParamSpec
	Handler     ToolHandlerFunc
}

// Definition builds the OpenAI-compatible tool definition from the declared
// parameter specs.
func (t *Tool) Definition() ToolDefinition {
	props := make(map[string]any, len(t.Params))
	var required []string

	for _, p := range t.Params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	schemaJSON, _ := json.Marshal(schema)

	return ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaJSON,
		},
	}
}

// validateArgs checks decoded arguments against the declared specs: unknown
// fields and missing required fields are rejected explicitly, enum-constrained
// values must be members, and basic JSON types must match.
func (t *Tool) validateArgs(args map[string]any) error {
	specs := make(map[string]ParamSpec, len(t.Params))
	for _, p := range t.Params {
		specs[p.Name] = p
	}

	for name := range args {
		if _, ok := specs[name]; !ok {
			return fmt.Errorf("unknown argument %q", name)
		}
	}

	for _, p := range t.Params {
		val, present := args[p.Name]
		if !present || val == nil {
			if p.Required {
				return fmt.Errorf("missing required argument %q", p.Name)
			}
			continue
		}

		switch p.Type {
		case "string":
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("argument %q must be a string", p.Name)
			}
			if len(p.Enum) > 0 {
				valid := false
				for _, e := range p.Enum {
					if s == e {
						valid = true
						break
					}
				}
				if !valid {
					return fmt.Errorf("argument %q must be one of %v", p.Name, p.Enum)
				}
			}
		case "integer":
			switch n := val.(type) {
			case float64:
				if n != float64(int64(n)) {
					return fmt.Errorf("argument %q must be an integer", p.Name)
				}
			case json.Number:
				if _, err := n.Int64(); err != nil {
					return fmt.Errorf("argument %q must be an integer", p.Name)
				}
			default:
				return fmt.Errorf("argument %q must be an integer", p.Name)
			}
		case "boolean":
			if _, ok := val.(bool); !ok {
				return fmt.Errorf("argument %q must be a boolean", p.Name)
			}
		}
	}
	return nil
}

// ToolResult holds the envelope produced by a single tool execution, tagged
// with the originating call's identifier.
type ToolResult struct {
	ToolCallID string
	Name       string
	Envelope   map[string]any
}

// Content serializes the envelope for the model's tool result message.
func (r ToolResult) Content() string {
	b, err := json.Marshal(r.Envelope)
	if err != nil {
		return `{"success":false,"error":"unserializable tool result"}`
	}
	return string(b)
}

// Failed reports whether the envelope carries success=false.
func (r ToolResult) Failed() bool {
	ok, _ := r.Envelope["success"].(bool)
	return !ok
}

// ToolExecutor manages tool registration and dispatches tool calls.
type ToolExecutor struct {
	tools   map[string]*Tool
	order   []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewToolExecutor creates a new empty tool executor.
func NewToolExecutor(logger *slog.Logger) *ToolExecutor {
	return &ToolExecutor{
		tools:   make(map[string]*Tool),
		timeout: DefaultToolTimeout,
		logger:  logger.With("component", "tool_executor"),
	}
}

// Register adds a tool to the registry. Duplicate names and declarations
// without a handler are rejected so a bad registry fails at startup, not
// mid-turn.
func (e *ToolExecutor) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	if _, exists := e.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}

	e.tools[t.Name] = &t
	e.order = append(e.order, t.Name)
	e.logger.Debug("tool registered", "name", t.Name)
	return nil
}

// Definitions returns all registered tool definitions for the LLM, in
// registration order.
func (e *ToolExecutor) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(e.order))
	for _, name := range e.order {
		defs = append(defs, e.tools[name].Definition())
	}
	return defs
}

// HasTool checks if a tool is registered by name.
func (e *ToolExecutor) HasTool(name string) bool {
	_, ok := e.tools[name]
	return ok
}

// Execute dispatches a batch of tool calls to their registered handlers,
// sequentially and in the order the model emitted them. Results come back in
// that same order; each call's failure is isolated to its own envelope.
func (e *ToolExecutor) Execute(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	for i, call := range calls {
		results[i] = e.executeSingle(ctx, call)
	}
	return results
}

// executeSingle runs a single tool call and returns its envelope.
func (e *ToolExecutor) executeSingle(ctx context.Context, call ToolCall) ToolResult {
	name := call.Function.Name
	result := ToolResult{
		ToolCallID: call.ID,
		Name:       name,
	}

	tool, ok := e.tools[name]
	if !ok {
		result.Envelope = failureEnvelope(fmt.Errorf("unknown tool %q", name))
		e.logger.Warn("unknown tool called", "name", name)
		return result
	}

	args, err := parseToolArgs(call.Function.Arguments)
	if err != nil {
		result.Envelope = failureEnvelope(err)
		e.logger.Warn("tool argument parse error", "name", name, "error", err)
		return result
	}

	if err := tool.validateArgs(args); err != nil {
		result.Envelope = failureEnvelope(err)
		e.logger.Warn("tool argument validation failed", "name", name, "error", err)
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	envelope, err := tool.Handler(execCtx, args)
	duration := time.Since(start)

	if err != nil {
		result.Envelope = failureEnvelope(err)
		e.logger.Warn("tool execution failed",
			"name", name,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return result
	}

	if envelope == nil {
		envelope = map[string]any{"success": true}
	}
	if _, ok := envelope["success"]; !ok {
		envelope["success"] = true
	}
	result.Envelope = envelope

	e.logger.Info("tool executed",
		"name", name,
		"duration_ms", duration.Milliseconds(),
		"success", !result.Failed(),
	)

	return result
}

// ---------- Internal Helpers ----------

// parseToolArgs parses JSON-encoded tool arguments into a map. A decode
// failure is fatal for that call only, not for the whole turn.
func parseToolArgs(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	return args, nil
}

// failureEnvelope builds the uniform error envelope.
func failureEnvelope(err error) map[string]any {
	return map[string]any{"success": false, "error": err.Error()}
}
