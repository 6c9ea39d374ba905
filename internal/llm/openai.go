package llm

import (
	"context"
	"strings"

	"github.com/archil-l/archil-io-v2/internal/tools"
	"github.com/archil-l/archil-io-v2/pkg/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider streams completions from any OpenAI-compatible chat
// completions endpoint and reshapes the chunks into block events.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a provider; baseURL overrides the API endpoint when set.
func NewOpenAIProvider(apiKey string, baseURL string, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() models.LanguageModelProvider {
	return models.ProviderOpenAI
}

// Stream implements Provider.
func (p *OpenAIProvider) Stream(ctx context.Context, req CompletionRequest) EventStream {
	params := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(req.Model),
		Messages:  toOpenAIMessages(req.System, req.Messages),
		MaxTokens: openai.Int(req.MaxTokens),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	return newOpenAIStream(p.client.Chat.Completions.NewStreaming(ctx, params))
}

// openAIChunks is satisfied by the SDK's SSE stream.
type openAIChunks interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

// openAIStream turns flat chunks into the block-structured event sequence.
// Text and each tool call get their own block index in order of appearance.
type openAIStream struct {
	chunks openAIChunks
	queue  []ProviderEvent
	cur    ProviderEvent

	started    bool
	done       bool
	nextIndex  int
	textIndex  int
	toolIndex  map[int64]int
	openTools  []int
	stopReason string
	usage      Usage
}

func newOpenAIStream(chunks openAIChunks) *openAIStream {
	return &openAIStream{
		chunks:    chunks,
		textIndex: -1,
		toolIndex: make(map[int64]int),
	}
}

func (s *openAIStream) Next() bool {
	for len(s.queue) == 0 {
		if s.done {
			return false
		}
		if !s.chunks.Next() {
			s.done = true
			if s.chunks.Err() == nil && s.started {
				s.finish()
			}
			continue
		}
		s.translate(s.chunks.Current())
	}

	s.cur = s.queue[0]
	s.queue = s.queue[1:]
	return true
}

func (s *openAIStream) Current() ProviderEvent {
	return s.cur
}

func (s *openAIStream) Err() error {
	if err := s.chunks.Err(); err != nil {
		return ClassifyError(err)
	}
	return nil
}

func (s *openAIStream) Close() error {
	return s.chunks.Close()
}

func (s *openAIStream) emit(ev ProviderEvent) {
	s.queue = append(s.queue, ev)
}

func (s *openAIStream) translate(chunk openai.ChatCompletionChunk) {
	if !s.started {
		s.started = true
		s.emit(ProviderEvent{Type: ProviderMessageStart, MessageID: chunk.ID, Model: chunk.Model})
	}

	if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
		s.usage = Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
		}
	}

	for _, choice := range chunk.Choices {
		if choice.Index != 0 {
			continue
		}

		if choice.Delta.Content != "" {
			if s.textIndex < 0 {
				s.textIndex = s.nextIndex
				s.nextIndex++
				s.emit(ProviderEvent{Type: ProviderBlockStart, Index: s.textIndex, Block: BlockText})
			}
			s.emit(ProviderEvent{Type: ProviderBlockDelta, Index: s.textIndex, Delta: DeltaText, Text: choice.Delta.Content})
		}

		for _, call := range choice.Delta.ToolCalls {
			idx, ok := s.toolIndex[call.Index]
			if !ok {
				s.closeText()
				idx = s.nextIndex
				s.nextIndex++
				s.toolIndex[call.Index] = idx
				s.openTools = append(s.openTools, idx)
				s.emit(ProviderEvent{
					Type:     ProviderBlockStart,
					Index:    idx,
					Block:    BlockToolUse,
					ToolID:   call.ID,
					ToolName: call.Function.Name,
				})
			}
			if call.Function.Arguments != "" {
				s.emit(ProviderEvent{Type: ProviderBlockDelta, Index: idx, Delta: DeltaInputJSON, PartialJSON: call.Function.Arguments})
			}
		}

		if choice.FinishReason != "" {
			s.stopReason = mapFinishReason(choice.FinishReason)
		}
	}
}

func (s *openAIStream) closeText() {
	if s.textIndex >= 0 {
		s.emit(ProviderEvent{Type: ProviderBlockStop, Index: s.textIndex})
		s.textIndex = -1
	}
}

func (s *openAIStream) finish() {
	s.closeText()
	for _, idx := range s.openTools {
		s.emit(ProviderEvent{Type: ProviderBlockStop, Index: idx})
	}
	s.openTools = nil

	stop := s.stopReason
	if stop == "" {
		stop = "end_turn"
	}
	s.emit(ProviderEvent{Type: ProviderMessageDelta, StopReason: stop, Usage: s.usage})
	s.emit(ProviderEvent{Type: ProviderMessageStop})
}

func mapFinishReason(reason string) string {
	switch reason {
	case "tool_calls", "function_call":
		return "tool_use"
	case "length":
		return "max_tokens"
	case "stop":
		return "end_turn"
	}
	return reason
}

// toOpenAITools converts the tool manifest to OpenAI function tools.
func toOpenAITools(manifest []tools.ManifestEntry) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(manifest))
	for i, t := range manifest {
		out[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.InputSchema),
			},
		}
	}
	return out
}

// toOpenAIMessages flattens block messages into chat messages. Tool results
// become one tool message each, placed before any user text of the same turn.
func toOpenAIMessages(system string, history []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}

	for _, m := range history {
		var text []string
		if m.Role == models.RoleAssistant {
			asst := openai.ChatCompletionAssistantMessageParam{}
			for _, b := range m.Content {
				switch b.Type {
				case models.BlockText:
					text = append(text, b.Text)
				case models.BlockToolUse:
					asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
						ID: b.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      b.Name,
							Arguments: string(inputOrEmpty(b.Input)),
						},
					})
				}
			}
			if joined := strings.Join(text, ""); joined != "" {
				asst.Content.OfString = openai.String(joined)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
			continue
		}

		for _, b := range m.Content {
			switch b.Type {
			case models.BlockToolResult:
				out = append(out, openai.ToolMessage(b.Content, b.ToolUseID))
			case models.BlockText:
				text = append(text, b.Text)
			}
		}
		if joined := strings.Join(text, ""); joined != "" {
			out = append(out, openai.UserMessage(joined))
		}
	}
	return out
}
