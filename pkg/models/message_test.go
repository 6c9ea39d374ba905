package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageUnmarshalStringContent(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":"hello","metadata":{"captchaToken":"abc"}}`), &msg))

	assert.Equal(t, RoleUser, msg.Role)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, BlockText, msg.Content[0].Type)
	assert.Equal(t, "hello", msg.Text())
	require.NotNil(t, msg.Metadata)
	assert.Equal(t, "abc", msg.Metadata.CaptchaToken)
}

func TestMessageUnmarshalBlocks(t *testing.T) {
	raw := `[
		{"role":"assistant","content":[
			{"type":"text","text":"Let me check."},
			{"type":"tool_use","id":"toolu_1","name":"getContactInfo","input":{}}
		]},
		{"role":"user","content":[
			{"type":"tool_result","tool_use_id":"toolu_1","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]},
			{"type":"tool_result","tool_use_id":"toolu_2","content":"plain"}
		]}
	]`

	var history []Message
	require.NoError(t, json.Unmarshal([]byte(raw), &history))
	require.NoError(t, ValidateHistory(history))

	use := history[0].Content[1]
	assert.Equal(t, "toolu_1", use.ID)
	assert.JSONEq(t, `{}`, string(use.Input))

	assert.Equal(t, "a\nb", history[1].Content[0].Content)
	assert.Equal(t, "plain", history[1].Content[1].Content)
}

func TestMessageUnmarshalParts(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","parts":[{"type":"text","text":"hi"},{"type":"step-start"}]}`), &msg))
	require.Len(t, msg.Content, 1)
	assert.Equal(t, "hi", msg.Text())
}

func TestValidateHistory(t *testing.T) {
	tests := []struct {
		name    string
		history []Message
		wantErr bool
	}{
		{"empty", nil, true},
		{"ok", []Message{NewTextMessage(RoleUser, "hi")}, false},
		{"system role", []Message{NewTextMessage("system", "x")}, true},
		{"no content", []Message{{Role: RoleUser}}, true},
		{"tool_use without id", []Message{{Role: RoleAssistant, Content: []ContentBlock{{Type: BlockToolUse, Name: "x"}}}}, true},
		{"tool_result without id", []Message{{Role: RoleUser, Content: []ContentBlock{{Type: BlockToolResult}}}}, true},
		{"unknown block", []Message{{Role: RoleUser, Content: []ContentBlock{{Type: "image"}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHistory(tt.history)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
