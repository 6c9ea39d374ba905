package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/archil-l/archil-io-v2/internal/stream"
	"github.com/archil-l/archil-io-v2/internal/tools"
	"github.com/archil-l/archil-io-v2/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// Sink receives relay events in order. *stream.Framer implements it.
type Sink interface {
	Write(evt stream.Event) error
	Started() bool
}

// UsageRecorder accumulates provider token counts.
type UsageRecorder interface {
	RecordUsage(model string, usage Usage)
}

// RelayConfig tunes a Relay.
type RelayConfig struct {
	Model           string
	SystemPrompt    string
	MaxTokens       int64
	MaxRounds       int
	ToolConcurrency int
}

// Relay drives one conversation turn: it streams provider rounds to a Sink,
// runs requested server tools, and loops until the model stops calling tools
// or the round cap is hit.
type Relay struct {
	provider Provider
	registry *tools.Registry
	config   RelayConfig
	usage    UsageRecorder
	logger   logrus.FieldLogger
}

// NewRelay creates a relay. usage may be nil.
func NewRelay(provider Provider, registry *tools.Registry, config RelayConfig, usage UsageRecorder, logger logrus.FieldLogger) *Relay {
	if config.MaxRounds < 1 {
		config.MaxRounds = 1
	}
	if config.ToolConcurrency < 1 {
		config.ToolConcurrency = 1
	}
	return &Relay{
		provider: provider,
		registry: registry,
		config:   config,
		usage:    usage,
		logger:   logger,
	}
}

// WithLogger returns a copy of the relay logging to logger.
func (r *Relay) WithLogger(logger logrus.FieldLogger) *Relay {
	clone := *r
	clone.logger = logger
	return &clone
}

type toolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

type roundResult struct {
	blocks     []models.ContentBlock
	calls      []toolCall
	stopReason string
}

type blockState struct {
	kind  BlockKind
	id    string
	name  string
	text  strings.Builder
	input strings.Builder
	done  bool
}

// Run relays one turn. It returns nil when the turn completed. Failures that
// happen before anything was written come back as *ProviderError so the
// caller can still answer with a status code; later ones are sent as an
// error event and returned wrapped in ErrReportedInBand. A *TransportError
// means the client went away and nothing more can be sent.
func (r *Relay) Run(ctx context.Context, history []models.Message, sink Sink) error {
	messages := make([]models.Message, len(history))
	copy(messages, history)
	manifest := r.registry.Manifest()

	for round := 1; round <= r.config.MaxRounds; round++ {
		logger := r.logger.WithField("round", round)

		result, err := r.runRound(ctx, round, messages, manifest, sink)
		if err != nil {
			return r.fail(err, sink, logger)
		}

		if len(result.calls) == 0 {
			logger.WithField("stop_reason", result.stopReason).Debug("Turn complete")
			return r.finish(sink, stream.MessageStop{StopReason: result.stopReason})
		}

		var serverCalls []toolCall
		var pending []stream.PendingToolCall
		for _, call := range result.calls {
			if decl, ok := r.registry.Lookup(call.Name); ok && !decl.IsServer() {
				pending = append(pending, stream.PendingToolCall{ID: call.ID, Name: call.Name, Input: call.Input})
				continue
			}
			serverCalls = append(serverCalls, call)
		}

		logger.WithFields(logrus.Fields{
			"server_tools": len(serverCalls),
			"client_tools": len(pending),
		}).Debug("Model requested tools")

		results := r.executeTools(ctx, serverCalls)
		if err := ctx.Err(); err != nil {
			return r.fail(&TransportError{Err: err}, sink, logger)
		}

		resultBlocks := make([]models.ContentBlock, len(serverCalls))
		for i, call := range serverCalls {
			res := results[i]
			if res.IsError {
				logger.WithError(res.Err).WithField("tool", call.Name).Warn("Tool execution failed")
			}
			resultBlocks[i] = models.ContentBlock{
				Type:      models.BlockToolResult,
				ToolUseID: call.ID,
				Content:   res.Output,
				IsError:   res.IsError,
			}
			if err := emit(sink, stream.EventToolResult, stream.ToolResult{
				ToolUseID: call.ID,
				Name:      call.Name,
				Result:    res.Output,
				IsError:   res.IsError,
			}); err != nil {
				return r.fail(err, sink, logger)
			}
		}

		if len(pending) > 0 {
			return r.finish(sink, stream.MessageStop{StopReason: "tool_use", PendingToolCalls: pending})
		}

		messages = append(messages,
			models.Message{Role: models.RoleAssistant, Content: result.blocks},
			models.Message{Role: models.RoleUser, Content: resultBlocks},
		)
	}

	return r.fail(fmt.Errorf("%w after %d rounds", ErrToolRoundLimit, r.config.MaxRounds), sink, r.logger)
}

func (r *Relay) runRound(ctx context.Context, round int, messages []models.Message, manifest []tools.ManifestEntry, sink Sink) (roundResult, error) {
	events := r.provider.Stream(ctx, CompletionRequest{
		Model:     r.config.Model,
		System:    r.config.SystemPrompt,
		Messages:  messages,
		Tools:     manifest,
		MaxTokens: r.config.MaxTokens,
	})
	defer events.Close()

	var (
		result  roundResult
		usage   Usage
		model   = r.config.Model
		blocks  = make(map[int]*blockState)
		order   []int
		started bool
	)

	// Every round opens with exactly one message_start, even when the
	// provider sends none or repeats it.
	begin := func(id string) error {
		if started {
			return nil
		}
		started = true
		return emit(sink, stream.EventMessageStart, stream.MessageStart{ID: id, Model: model, Round: round})
	}

	for events.Next() {
		ev := events.Current()

		if ev.Type != ProviderMessageStart {
			if err := begin(""); err != nil {
				return result, err
			}
		}

		switch ev.Type {
		case ProviderMessageStart:
			if ev.Model != "" {
				model = ev.Model
			}
			usage.InputTokens += ev.Usage.InputTokens
			if err := begin(ev.MessageID); err != nil {
				return result, err
			}

		case ProviderBlockStart:
			b := &blockState{kind: ev.Block, id: ev.ToolID, name: ev.ToolName}
			blocks[ev.Index] = b
			order = append(order, ev.Index)

			var err error
			if b.kind == BlockToolUse {
				err = emit(sink, stream.EventToolUseStart, stream.ToolUseStart{ID: b.id, Name: b.name, Index: ev.Index})
			} else {
				err = emit(sink, stream.EventContentBlockStart, stream.ContentBlockStart{Type: string(BlockText), Index: ev.Index})
			}
			if err != nil {
				return result, err
			}

		case ProviderBlockDelta:
			b, ok := blocks[ev.Index]
			if !ok {
				continue
			}

			var err error
			switch ev.Delta {
			case DeltaText:
				b.text.WriteString(ev.Text)
				err = emit(sink, stream.EventTextDelta, stream.TextDelta{Text: ev.Text, Index: ev.Index})
			case DeltaInputJSON:
				b.input.WriteString(ev.PartialJSON)
				err = emit(sink, stream.EventToolUseDelta, stream.ToolUseDelta{ID: b.id, PartialJSON: ev.PartialJSON})
			}
			if err != nil {
				return result, err
			}

		case ProviderBlockStop:
			b, ok := blocks[ev.Index]
			if !ok || b.done {
				continue
			}
			b.done = true

			var err error
			if b.kind == BlockToolUse {
				err = emit(sink, stream.EventToolUseStop, stream.ToolUseStop{ID: b.id, Name: b.name, Input: parseToolInput(b.input.String())})
			} else {
				err = emit(sink, stream.EventContentBlockStop, stream.ContentBlockStop{Index: ev.Index})
			}
			if err != nil {
				return result, err
			}

		case ProviderMessageDelta:
			if ev.StopReason != "" {
				result.stopReason = ev.StopReason
			}
			usage.OutputTokens += ev.Usage.OutputTokens
		}
	}

	if err := ctx.Err(); err != nil {
		return result, &TransportError{Err: err}
	}
	if err := events.Err(); err != nil {
		return result, ClassifyError(err)
	}
	if err := begin(""); err != nil {
		return result, err
	}

	if r.usage != nil {
		r.usage.RecordUsage(model, usage)
	}

	for _, idx := range order {
		b := blocks[idx]
		switch b.kind {
		case BlockText:
			if text := b.text.String(); text != "" {
				result.blocks = append(result.blocks, models.ContentBlock{Type: models.BlockText, Text: text})
			}
		case BlockToolUse:
			input := parseToolInput(b.input.String())
			result.blocks = append(result.blocks, models.ContentBlock{
				Type:  models.BlockToolUse,
				ID:    b.id,
				Name:  b.name,
				Input: input,
			})
			result.calls = append(result.calls, toolCall{ID: b.id, Name: b.name, Input: input})
		}
	}

	if result.stopReason == "" {
		result.stopReason = "end_turn"
	}
	return result, nil
}

// executeTools runs calls with bounded concurrency. Results are indexed by
// request order regardless of completion order.
func (r *Relay) executeTools(ctx context.Context, calls []toolCall) []tools.Result {
	results := make([]tools.Result, len(calls))

	var g errgroup.Group
	g.SetLimit(r.config.ToolConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = r.registry.Execute(ctx, call.Name, call.Input)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Relay) finish(sink Sink, stop stream.MessageStop) error {
	if err := emit(sink, stream.EventMessageStop, stop); err != nil {
		return err
	}
	return emit(sink, stream.EventDone, nil)
}

// fail logs err and reports it in-band if the stream has started.
func (r *Relay) fail(err error, sink Sink, logger logrus.FieldLogger) error {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		logger.WithError(err).Info("Client stream closed")
		return err
	}

	var event stream.Error
	if errors.Is(err, ErrToolRoundLimit) {
		logger.WithError(err).Warn("Stopping tool loop")
		event = stream.Error{
			Kind:    "tool_round_limit",
			Message: fmt.Sprintf("Stopped after %d rounds of tool calls without a final answer.", r.config.MaxRounds),
		}
	} else {
		providerErr := ClassifyError(err)
		logger.WithError(err).WithField("kind", providerErr.Kind).Error("Provider request failed")
		event = stream.Error{Kind: string(providerErr.Kind), Message: providerErr.UserMessage()}
		err = providerErr
	}

	if !sink.Started() {
		return err
	}
	if emitErr := emit(sink, stream.EventError, event); emitErr != nil {
		return emitErr
	}
	return fmt.Errorf("%w: %w", ErrReportedInBand, err)
}

func emit(sink Sink, typ stream.EventType, data any) error {
	if err := sink.Write(stream.Event{Type: typ, Data: data}); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

// parseToolInput returns the buffered input if it is a JSON object and {}
// otherwise.
func parseToolInput(raw string) json.RawMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}
