package toolbox

import (
	"context"
	"encoding/json"
)

// Handler executes a tool with the given JSON input and returns a text result.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool is a named operation with a description, a JSON Schema for its input,
// and a handler.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Handler     Handler         `json:"-"`
}

// Result is the outcome of a tool call. Handler errors are reported as a
// Result with IsError set rather than as a Go error.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"isError,omitempty"`
}
