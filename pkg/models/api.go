package models

import "encoding/json"

// LanguageModelProvider represents a supported completion backend
type LanguageModelProvider string

// Supported language model providers
const (
	ProviderAnthropic LanguageModelProvider = "anthropic"
	ProviderOpenAI    LanguageModelProvider = "openai"
)

// ChatRequest is the body of POST /api/agent. Messages is kept raw so that a
// missing or non-array value can be reported as a 400.
type ChatRequest struct {
	Messages json.RawMessage `json:"messages"`
}

// ErrorResponse is the JSON body of every non-streaming failure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// TokenResponse is returned by GET /api/jwt-token
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
	ExpiresAt int64  `json:"expiresAt"`
}

// ModelUsage tracks token usage for a model
type ModelUsage struct {
	Model        string `json:"model"`
	Requests     int64  `json:"requests"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// StatusResponse is returned by GET /status
type StatusResponse struct {
	Status        string       `json:"status"`
	Provider      string       `json:"provider"`
	ActiveStreams int          `json:"active_streams"`
	Usage         []ModelUsage `json:"usage"`
}
