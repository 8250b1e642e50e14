// Package tools maps (tool_name, arguments) pairs onto the service
// operations. The transport layer delivers raw JSON arguments; each tool
// validates them and returns a list of typed content items.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ContentItem is one typed element of a tool response
type ContentItem struct {
	Type string      `json:"type"`
	Text string      `json:"text,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// Result is the complete response of one tool call: no partial or streaming
// output, one result or one error per call.
type Result struct {
	Content []ContentItem `json:"content"`
}

// TextContent builds a human-readable content item
func TextContent(format string, args ...interface{}) ContentItem {
	return ContentItem{Type: "text", Text: fmt.Sprintf(format, args...)}
}

// JSONContent builds a structured content item
func JSONContent(data interface{}) ContentItem {
	return ContentItem{Type: "json", Data: data}
}

// Handler executes one tool call from raw JSON arguments
type Handler func(ctx context.Context, args json.RawMessage) (*Result, error)

// Tool is one callable operation with its LLM-facing description
type Tool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Handler     Handler `json:"-"`
}

// UnknownToolError is returned when a call names an unregistered tool
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// Registry holds the registered tools in registration order
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool; re-registering a name replaces the handler
func (r *Registry) Register(tool Tool) {
	if _, exists := r.tools[tool.Name]; !exists {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = tool
}

// List returns the registered tools in registration order
func (r *Registry) List() []Tool {
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Dispatch invokes the named tool with raw JSON arguments
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (*Result, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return tool.Handler(ctx, args)
}
