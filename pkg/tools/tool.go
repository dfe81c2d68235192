// Package tools defines the Tool interface the agent loop executes, a
// registry, schema helpers and argument validation.
package tools

import (
	"context"
	"encoding/json"

	"github.com/bitop-dev/shopagent/pkg/ai"
)

// ---------------------------------------------------------------------------
// Tool interface
// ---------------------------------------------------------------------------

// Result is the output of a tool execution.
type Result struct {
	// Content is sent back to the model.
	Content []ai.ContentBlock
	// Details is the structured value behind Content. The runtime server
	// forwards it as the functionResponse payload.
	Details any
}

// UpdateFn streams partial results to listeners.
type UpdateFn func(partial Result)

// Tool is the interface every tool implements.
type Tool interface {
	// Definition returns the schema handed to the model.
	Definition() ai.ToolDefinition
	// Execute runs the tool. onUpdate may be nil.
	Execute(ctx context.Context, callID string, params map[string]any, onUpdate UpdateFn) (Result, error)
}

// ---------------------------------------------------------------------------
// Result constructors
// ---------------------------------------------------------------------------

func TextResult(text string) Result {
	return Result{Content: []ai.ContentBlock{ai.TextContent{Type: "text", Text: text}}}
}

func ErrorResult(err error) Result {
	r := TextResult("error: " + err.Error())
	r.Details = map[string]any{"status": "error", "message": err.Error()}
	return r
}

// JSONResult encodes v as the text content and keeps v as Details.
func JSONResult(v any) Result {
	b, err := json.Marshal(v)
	if err != nil {
		return ErrorResult(err)
	}
	r := TextResult(string(b))
	r.Details = v
	return r
}

// ---------------------------------------------------------------------------
// Func adapts a plain function into a Tool.
// ---------------------------------------------------------------------------

// HandlerFunc is the body of a Func tool. The returned value is encoded with
// JSONResult.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Func is a Tool backed by a HandlerFunc.
type Func struct {
	Name        string
	Description string
	Schema      SimpleSchema
	Handler     HandlerFunc

	params json.RawMessage
}

// NewFunc builds a Func and compiles its schema once.
func NewFunc(name, description string, schema SimpleSchema, h HandlerFunc) *Func {
	return &Func{
		Name:        name,
		Description: description,
		Schema:      schema,
		Handler:     h,
		params:      MustSchema(schema),
	}
}

func (f *Func) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{Name: f.Name, Description: f.Description, Parameters: f.params}
}

func (f *Func) Execute(ctx context.Context, _ string, params map[string]any, _ UpdateFn) (Result, error) {
	v, err := f.Handler(ctx, Args(params))
	if err != nil {
		return Result{}, err
	}
	if s, ok := v.(string); ok {
		return TextResult(s), nil
	}
	return JSONResult(v), nil
}

// ---------------------------------------------------------------------------
// Schema helpers
// ---------------------------------------------------------------------------

type SimpleSchema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property is one JSON Schema property. Items describes array elements and
// Properties/Required describe nested objects. Default replaces a value that
// cannot be coerced to Type.
type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Enum        []any               `json:"enum,omitempty"`
	Default     any                 `json:"default,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`
}

// MustSchema returns the JSON Schema object for s.
func MustSchema(s SimpleSchema) json.RawMessage {
	props := s.Properties
	if props == nil {
		props = map[string]Property{}
	}
	obj := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(s.Required) > 0 {
		obj["required"] = s.Required
	}
	b, err := json.Marshal(obj)
	if err != nil {
		panic("tools.MustSchema: " + err.Error())
	}
	return b
}
