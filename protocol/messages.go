// Package protocol defines the NDJSON wire protocol spoken by the agent CLI
// in stream-json mode: the closed set of inbound message kinds, the token
// level stream events nested inside stream_event records, content blocks,
// and the records the host writes to the agent's stdin.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates between message kinds.
type MessageType string

const (
	MessageTypeSystem         MessageType = "system"
	MessageTypeAssistant      MessageType = "assistant"
	MessageTypeUser           MessageType = "user"
	MessageTypeResult         MessageType = "result"
	MessageTypeStreamEvent    MessageType = "stream_event"
	MessageTypeControlRequest MessageType = "control_request"
)

// SystemSubtypeInit is the subtype of the first record of every session.
const SystemSubtypeInit = "init"

// Message is the interface for all inbound protocol messages.
type Message interface {
	MsgType() MessageType
}

// SystemMessage represents session initialization and other system notices.
type SystemMessage struct {
	Type           MessageType `json:"type"`
	Subtype        string      `json:"subtype"`
	SessionID      string      `json:"session_id"`
	UUID           string      `json:"uuid,omitempty"`
	Model          string      `json:"model,omitempty"`
	CWD            string      `json:"cwd,omitempty"`
	PermissionMode string      `json:"permissionMode,omitempty"`
	AgentVersion   string      `json:"claude_code_version,omitempty"`
	Tools          []string    `json:"tools,omitempty"`
}

// MsgType returns the message type.
func (m SystemMessage) MsgType() MessageType { return MessageTypeSystem }

// IsInit reports whether this is the session init record.
func (m SystemMessage) IsInit() bool { return m.Subtype == SystemSubtypeInit }

// Usage tracks token usage.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	OutputTokens             int `json:"output_tokens"`
}

// FlexibleContent can be either a string or an array of content blocks.
type FlexibleContent struct {
	raw json.RawMessage
}

// NewStringContent wraps a plain string.
func NewStringContent(s string) FlexibleContent {
	b, _ := json.Marshal(s)
	return FlexibleContent{raw: b}
}

// UnmarshalJSON implements json.Unmarshaler.
func (fc *FlexibleContent) UnmarshalJSON(data []byte) error {
	fc.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (fc FlexibleContent) MarshalJSON() ([]byte, error) {
	if fc.raw == nil {
		return []byte("null"), nil
	}
	return fc.raw, nil
}

// IsString returns true if the content is a string.
func (fc FlexibleContent) IsString() bool {
	if len(fc.raw) == 0 {
		return false
	}
	return fc.raw[0] == '"'
}

// AsString returns the content as a string (if it is one).
func (fc FlexibleContent) AsString() (string, bool) {
	if !fc.IsString() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(fc.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// AsBlocks returns the content as content blocks (if it is an array).
func (fc FlexibleContent) AsBlocks() (ContentBlocks, bool) {
	if fc.IsString() || len(fc.raw) == 0 {
		return nil, false
	}
	var blocks ContentBlocks
	if err := json.Unmarshal(fc.raw, &blocks); err != nil {
		return nil, false
	}
	return blocks, true
}

// MessageContent is the inner content of assistant/user messages.
type MessageContent struct {
	StopReason *string         `json:"stop_reason,omitempty"`
	Model      string          `json:"model,omitempty"`
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Role       string          `json:"role"`
	Content    FlexibleContent `json:"content"`
	Usage      Usage           `json:"usage,omitempty"`
}

// AssistantMessage is a complete (snapshot) message from the agent.
type AssistantMessage struct {
	ParentToolUseID *string        `json:"parent_tool_use_id"`
	Type            MessageType    `json:"type"`
	SessionID       string         `json:"session_id"`
	UUID            string         `json:"uuid,omitempty"`
	Message         MessageContent `json:"message"`
}

// MsgType returns the message type.
func (m AssistantMessage) MsgType() MessageType { return MessageTypeAssistant }

// UserMessage carries tool results echoed back by the agent.
type UserMessage struct {
	ParentToolUseID *string        `json:"parent_tool_use_id"`
	Type            MessageType    `json:"type"`
	SessionID       string         `json:"session_id"`
	UUID            string         `json:"uuid,omitempty"`
	Message         MessageContent `json:"message"`
}

// MsgType returns the message type.
func (m UserMessage) MsgType() MessageType { return MessageTypeUser }

// ToolResults returns the tool_result blocks carried by the message.
func (m UserMessage) ToolResults() []ToolResultBlock {
	blocks, ok := m.Message.Content.AsBlocks()
	if !ok {
		return nil
	}
	var results []ToolResultBlock
	for _, b := range blocks {
		if r, ok := b.(ToolResultBlock); ok {
			results = append(results, r)
		}
	}
	return results
}

// ResultMessage is the terminal record of a turn.
type ResultMessage struct {
	Type          MessageType `json:"type"`
	Subtype       string      `json:"subtype"`
	SessionID     string      `json:"session_id"`
	UUID          string      `json:"uuid,omitempty"`
	Result        string      `json:"result"`
	Errors        []string    `json:"errors,omitempty"`
	Usage         Usage       `json:"usage"`
	TotalCostUSD  float64     `json:"total_cost_usd"`
	NumTurns      int         `json:"num_turns"`
	DurationAPIMs int64       `json:"duration_api_ms"`
	DurationMs    int64       `json:"duration_ms"`
	IsError       bool        `json:"is_error"`
}

// MsgType returns the message type.
func (m ResultMessage) MsgType() MessageType { return MessageTypeResult }

// UserMessageToSend is what we write to the agent's stdin.
type UserMessageToSend struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"session_id"`
	Message   UserMessageToSendInner `json:"message"`
}

// UserMessageToSendInner is the inner part of messages we send.
type UserMessageToSendInner struct {
	Content interface{} `json:"content"`
	Role    string      `json:"role"`
}

// Marshal serializes the message to a JSON line ready to write to the CLI.
func (m UserMessageToSend) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal UserMessageToSend: %w", err)
	}
	return b, nil
}
