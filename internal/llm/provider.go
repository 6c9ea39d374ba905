package llm

import (
	"context"

	"github.com/archil-l/archil-io-v2/internal/tools"
	"github.com/archil-l/archil-io-v2/pkg/models"
)

// EventType discriminates normalized provider events.
type EventType string

// Provider event types. Every provider adapter translates its native stream
// into this sequence: one message_start, per-index block start/delta/stop,
// an optional message_delta, then message_stop.
const (
	ProviderMessageStart EventType = "message_start"
	ProviderBlockStart   EventType = "content_block_start"
	ProviderBlockDelta   EventType = "content_block_delta"
	ProviderBlockStop    EventType = "content_block_stop"
	ProviderMessageDelta EventType = "message_delta"
	ProviderMessageStop  EventType = "message_stop"
)

// BlockKind is the type of a content block.
type BlockKind string

const (
	BlockText    BlockKind = "text"
	BlockToolUse BlockKind = "tool_use"
)

// DeltaKind is the type of a block delta.
type DeltaKind string

const (
	DeltaText      DeltaKind = "text_delta"
	DeltaInputJSON DeltaKind = "input_json_delta"
)

// Usage counts tokens reported by the provider.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// ProviderEvent is one normalized streaming event.
type ProviderEvent struct {
	Type  EventType
	Index int

	// message_start
	MessageID string
	Model     string

	// content_block_start
	Block    BlockKind
	ToolID   string
	ToolName string

	// content_block_delta
	Delta       DeltaKind
	Text        string
	PartialJSON string

	// message_delta
	StopReason string

	Usage Usage
}

// CompletionRequest is one provider round.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []models.Message
	Tools     []tools.ManifestEntry
	MaxTokens int64
}

// EventStream is a pull-based iterator over provider events. Err is valid
// once Next has returned false.
type EventStream interface {
	Next() bool
	Current() ProviderEvent
	Err() error
	Close() error
}

// Provider opens a streaming completion.
type Provider interface {
	Name() models.LanguageModelProvider
	Stream(ctx context.Context, req CompletionRequest) EventStream
}
