// Package models holds the wire types shared by the HTTP surface, the relay
// and the completion providers.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType is the discriminator of a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

var (
	// ErrInvalidMessage is returned when a history entry cannot be relayed
	ErrInvalidMessage = errors.New("invalid message")
)

// ContentBlock is one segment of a message: text, a tool invocation made by
// the assistant, or the result of such an invocation supplied by the user turn.
type ContentBlock struct {
	Type BlockType `json:"type"`
	Text string    `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// UnmarshalJSON accepts tool_result content either as a plain string or as an
// array of text blocks, which is how the Messages API echoes it back.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	type alias ContentBlock
	var raw struct {
		alias
		Content json.RawMessage `json:"content,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*b = ContentBlock(raw.alias)
	if len(raw.Content) == 0 {
		return nil
	}

	content := gjson.ParseBytes(raw.Content)
	switch {
	case content.Type == gjson.String:
		b.Content = content.String()
	case content.IsArray():
		var parts []string
		content.ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == string(BlockText) {
				parts = append(parts, block.Get("text").String())
			}
			return true
		})
		b.Content = strings.Join(parts, "\n")
	case content.Type == gjson.Null:
	default:
		b.Content = content.Raw
	}
	return nil
}

// MessageMetadata carries client-side annotations that never reach the model.
type MessageMetadata struct {
	CaptchaToken string `json:"captchaToken,omitempty"`
}

// Message is one entry of the conversation history.
type Message struct {
	Role     Role             `json:"role"`
	Content  []ContentBlock   `json:"content"`
	Metadata *MessageMetadata `json:"metadata,omitempty"`
}

// NewTextMessage builds a single-block text message.
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentBlock{{Type: BlockText, Text: text}},
	}
}

// UnmarshalJSON accepts content as a string, as an array of blocks, or, when
// content is absent, as an array of UI "parts" of which only text is kept.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role     Role             `json:"role"`
		Content  json.RawMessage  `json:"content"`
		Parts    json.RawMessage  `json:"parts"`
		Metadata *MessageMetadata `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Role = raw.Role
	m.Metadata = raw.Metadata
	m.Content = nil

	content := gjson.ParseBytes(raw.Content)
	switch {
	case content.Type == gjson.String:
		m.Content = []ContentBlock{{Type: BlockText, Text: content.String()}}
	case content.IsArray():
		if err := json.Unmarshal(raw.Content, &m.Content); err != nil {
			return fmt.Errorf("content: %w", err)
		}
	case len(raw.Parts) > 0:
		parts := gjson.ParseBytes(raw.Parts)
		parts.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == string(BlockText) {
				m.Content = append(m.Content, ContentBlock{Type: BlockText, Text: part.Get("text").String()})
			}
			return true
		})
	}
	return nil
}

// Text concatenates the text blocks of the message.
func (m Message) Text() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// Validate checks that the message can be forwarded to a provider.
func (m Message) Validate() error {
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return fmt.Errorf("%w: unsupported role %q", ErrInvalidMessage, m.Role)
	}
	if len(m.Content) == 0 {
		return fmt.Errorf("%w: content is empty", ErrInvalidMessage)
	}
	for i, block := range m.Content {
		switch block.Type {
		case BlockText:
		case BlockToolUse:
			if block.ID == "" || block.Name == "" {
				return fmt.Errorf("%w: content[%d]: tool_use requires id and name", ErrInvalidMessage, i)
			}
		case BlockToolResult:
			if block.ToolUseID == "" {
				return fmt.Errorf("%w: content[%d]: tool_result requires tool_use_id", ErrInvalidMessage, i)
			}
		default:
			return fmt.Errorf("%w: content[%d]: unsupported block type %q", ErrInvalidMessage, i, block.Type)
		}
	}
	return nil
}

// ValidateHistory validates every message of a conversation.
func ValidateHistory(history []Message) error {
	if len(history) == 0 {
		return fmt.Errorf("%w: messages array is empty", ErrInvalidMessage)
	}
	for i, msg := range history {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
	}
	return nil
}
