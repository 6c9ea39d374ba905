package llm

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/archil-l/archil-io-v2/internal/tools"
	"github.com/archil-l/archil-io-v2/pkg/models"
)

// AnthropicProvider streams completions from the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
}

// NewAnthropicProvider creates a provider; baseURL overrides the API endpoint when set.
func NewAnthropicProvider(apiKey string, baseURL string, opts ...option.RequestOption) *AnthropicProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &client}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() models.LanguageModelProvider {
	return models.ProviderAnthropic
}

// Stream implements Provider.
func (p *AnthropicProvider) Stream(ctx context.Context, req CompletionRequest) EventStream {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	return &anthropicStream{events: p.client.Messages.NewStreaming(ctx, params)}
}

// anthropicEvents is satisfied by the SDK's SSE stream.
type anthropicEvents interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

type anthropicStream struct {
	events anthropicEvents
	cur    ProviderEvent
}

func (s *anthropicStream) Next() bool {
	for s.events.Next() {
		if ev, ok := translateAnthropicEvent(s.events.Current()); ok {
			s.cur = ev
			return true
		}
	}
	return false
}

func (s *anthropicStream) Current() ProviderEvent {
	return s.cur
}

func (s *anthropicStream) Err() error {
	if err := s.events.Err(); err != nil {
		return ClassifyError(err)
	}
	return nil
}

func (s *anthropicStream) Close() error {
	return s.events.Close()
}

// translateAnthropicEvent maps a native stream event. Block types the relay
// does not handle, such as thinking, are dropped.
func translateAnthropicEvent(event anthropic.MessageStreamEventUnion) (ProviderEvent, bool) {
	switch ev := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		return ProviderEvent{
			Type:      ProviderMessageStart,
			MessageID: ev.Message.ID,
			Model:     string(ev.Message.Model),
			Usage:     Usage{InputTokens: ev.Message.Usage.InputTokens},
		}, true

	case anthropic.ContentBlockStartEvent:
		out := ProviderEvent{Type: ProviderBlockStart, Index: int(ev.Index)}
		switch ev.ContentBlock.Type {
		case "text":
			out.Block = BlockText
		case "tool_use":
			out.Block = BlockToolUse
			out.ToolID = ev.ContentBlock.ID
			out.ToolName = ev.ContentBlock.Name
		default:
			return ProviderEvent{}, false
		}
		return out, true

	case anthropic.ContentBlockDeltaEvent:
		out := ProviderEvent{Type: ProviderBlockDelta, Index: int(ev.Index)}
		switch ev.Delta.Type {
		case "text_delta":
			out.Delta = DeltaText
			out.Text = ev.Delta.Text
		case "input_json_delta":
			out.Delta = DeltaInputJSON
			out.PartialJSON = ev.Delta.PartialJSON
		default:
			return ProviderEvent{}, false
		}
		return out, true

	case anthropic.ContentBlockStopEvent:
		return ProviderEvent{Type: ProviderBlockStop, Index: int(ev.Index)}, true

	case anthropic.MessageDeltaEvent:
		return ProviderEvent{
			Type:       ProviderMessageDelta,
			StopReason: string(ev.Delta.StopReason),
			Usage:      Usage{OutputTokens: ev.Usage.OutputTokens},
		}, true

	case anthropic.MessageStopEvent:
		return ProviderEvent{Type: ProviderMessageStop}, true
	}
	return ProviderEvent{}, false
}

// toAnthropicTools converts the tool manifest to Anthropic tool params.
func toAnthropicTools(manifest []tools.ManifestEntry) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(manifest))
	for i, t := range manifest {
		props, _ := t.InputSchema["properties"].(map[string]any)
		if props == nil {
			props = map[string]any{}
		}

		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   requiredFields(t.InputSchema),
				},
			},
		}
	}
	return out
}

func requiredFields(schema tools.Schema) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// toAnthropicMessages converts history to Anthropic message params. Empty
// text blocks are dropped since the API rejects them.
func toAnthropicMessages(history []models.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case models.BlockText:
				if b.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			case models.BlockToolUse:
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    b.ID,
						Name:  b.Name,
						Input: inputOrEmpty(b.Input),
					},
				})
			case models.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}

		if m.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func inputOrEmpty(input json.RawMessage) json.RawMessage {
	if len(input) == 0 {
		return json.RawMessage("{}")
	}
	return input
}
