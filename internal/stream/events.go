package stream

import "encoding/json"

// MessageStart opens an assistant message for a provider round.
type MessageStart struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Round int    `json:"round"`
}

// ContentBlockStart opens a text block.
type ContentBlockStart struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// TextDelta is a fragment of assistant text.
type TextDelta struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// ContentBlockStop closes a text block.
type ContentBlockStop struct {
	Index int `json:"index"`
}

// ToolUseStart announces a tool call.
type ToolUseStart struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// ToolUseDelta is a raw fragment of the tool call's JSON input.
type ToolUseDelta struct {
	ID          string `json:"id"`
	PartialJSON string `json:"partial_json"`
}

// ToolUseStop carries the fully parsed tool input.
type ToolUseStop struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the output of a server-side tool.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Name      string `json:"name"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error,omitempty"`
}

// PendingToolCall is a client tool the caller must run before continuing.
type PendingToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// MessageStop ends the turn.
type MessageStop struct {
	StopReason       string            `json:"stop_reason"`
	PendingToolCalls []PendingToolCall `json:"pending_tool_calls,omitempty"`
}

// Error reports a failure after the stream has started.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
