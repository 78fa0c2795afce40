package protocol

import (
	"encoding/json"
	"log/slog"
)

// StreamEvent wraps token-level updates. It is only emitted when the agent
// runs with partial messages enabled.
type StreamEvent struct {
	ParentToolUseID *string         `json:"parent_tool_use_id"`
	Type            MessageType     `json:"type"`
	SessionID       string          `json:"session_id"`
	UUID            string          `json:"uuid,omitempty"`
	Event           json.RawMessage `json:"event"`
}

// MsgType returns the message type.
func (m StreamEvent) MsgType() MessageType { return MessageTypeStreamEvent }

// Parsed decodes the inner event.
func (m StreamEvent) Parsed() (StreamEventData, error) {
	return ParseStreamEvent(m.Event)
}

// StreamEventType discriminates between stream event kinds.
type StreamEventType string

const (
	StreamEventTypeMessageStart      StreamEventType = "message_start"
	StreamEventTypeContentBlockStart StreamEventType = "content_block_start"
	StreamEventTypeContentBlockDelta StreamEventType = "content_block_delta"
	StreamEventTypeContentBlockStop  StreamEventType = "content_block_stop"
	StreamEventTypeMessageDelta      StreamEventType = "message_delta"
	StreamEventTypeMessageStop       StreamEventType = "message_stop"
)

// StreamEventData is the interface for stream event discrimination.
type StreamEventData interface {
	EventType() StreamEventType
}

// BlockEvent is implemented by the three events addressed to a block index.
type BlockEvent interface {
	StreamEventData
	BlockIndex() int
}

// MessageStartEvent starts a new model message. Block indices restart at 0.
type MessageStartEvent struct {
	Type    StreamEventType `json:"type"`
	Message MessageContent  `json:"message"`
}

// EventType returns the stream event type.
func (e MessageStartEvent) EventType() StreamEventType { return StreamEventTypeMessageStart }

// ContentBlockStartEvent opens a content block.
type ContentBlockStartEvent struct {
	Type         StreamEventType `json:"type"`
	ContentBlock json.RawMessage `json:"content_block"`
	Index        int             `json:"index"`
}

// EventType returns the stream event type.
func (e ContentBlockStartEvent) EventType() StreamEventType { return StreamEventTypeContentBlockStart }

// BlockIndex returns the addressed block index.
func (e ContentBlockStartEvent) BlockIndex() int { return e.Index }

// ParsedBlock parses the content_block field.
func (e ContentBlockStartEvent) ParsedBlock() (ContentBlock, error) {
	return UnmarshalContentBlock(e.ContentBlock)
}

// ContentBlockDeltaEvent contains incremental content.
type ContentBlockDeltaEvent struct {
	Type  StreamEventType `json:"type"`
	Delta json.RawMessage `json:"delta"`
	Index int             `json:"index"`
}

// EventType returns the stream event type.
func (e ContentBlockDeltaEvent) EventType() StreamEventType { return StreamEventTypeContentBlockDelta }

// BlockIndex returns the addressed block index.
func (e ContentBlockDeltaEvent) BlockIndex() int { return e.Index }

// ParsedDelta parses the delta field.
func (e ContentBlockDeltaEvent) ParsedDelta() (DeltaData, error) {
	return ParseContentBlockDelta(e.Delta)
}

// ContentBlockStopEvent closes a content block.
type ContentBlockStopEvent struct {
	Type  StreamEventType `json:"type"`
	Index int             `json:"index"`
}

// EventType returns the stream event type.
func (e ContentBlockStopEvent) EventType() StreamEventType { return StreamEventTypeContentBlockStop }

// BlockIndex returns the addressed block index.
func (e ContentBlockStopEvent) BlockIndex() int { return e.Index }

// MessageDelta contains message metadata updates.
type MessageDelta struct {
	StopReason   *string `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

// MessageDeltaEvent updates message metadata.
type MessageDeltaEvent struct {
	Type  StreamEventType `json:"type"`
	Delta MessageDelta    `json:"delta"`
	Usage Usage           `json:"usage"`
}

// EventType returns the stream event type.
func (e MessageDeltaEvent) EventType() StreamEventType { return StreamEventTypeMessageDelta }

// MessageStopEvent marks message completion.
type MessageStopEvent struct {
	Type StreamEventType `json:"type"`
}

// EventType returns the stream event type.
func (e MessageStopEvent) EventType() StreamEventType { return StreamEventTypeMessageStop }

// Delta type tags.
const (
	DeltaTypeText      = "text_delta"
	DeltaTypeThinking  = "thinking_delta"
	DeltaTypeInputJSON = "input_json_delta"
)

// DeltaData is the interface for content block delta discrimination.
type DeltaData interface {
	DeltaType() string
}

// TextDelta is a text fragment to append to a text block.
type TextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// DeltaType returns the delta type.
func (d TextDelta) DeltaType() string { return DeltaTypeText }

// ThinkingDelta is a thinking fragment.
type ThinkingDelta struct {
	Type     string `json:"type"`
	Thinking string `json:"thinking"`
}

// DeltaType returns the delta type.
func (d ThinkingDelta) DeltaType() string { return DeltaTypeThinking }

// InputJSONDelta is a fragment of a tool's JSON input.
type InputJSONDelta struct {
	Type        string `json:"type"`
	PartialJSON string `json:"partial_json"`
}

// DeltaType returns the delta type.
func (d InputJSONDelta) DeltaType() string { return DeltaTypeInputJSON }

// decodeAs unmarshals data into a fresh T.
func decodeAs[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

func decodeDelta[T DeltaData](data []byte) (DeltaData, error) {
	v, err := decodeAs[T](data)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func decodeEvent[T StreamEventData](data []byte) (StreamEventData, error) {
	v, err := decodeAs[T](data)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ParseContentBlockDelta parses the inner delta of a ContentBlockDeltaEvent.
// Unknown delta kinds yield (nil, nil).
func ParseContentBlockDelta(data json.RawMessage) (DeltaData, error) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, err
	}

	switch base.Type {
	case DeltaTypeText:
		return decodeDelta[TextDelta](data)
	case DeltaTypeThinking:
		return decodeDelta[ThinkingDelta](data)
	case DeltaTypeInputJSON:
		return decodeDelta[InputJSONDelta](data)
	default:
		slog.Debug("skipping unknown content block delta type", "type", base.Type)
		return nil, nil
	}
}

// ParseStreamEvent parses the inner event of a StreamEvent. Unknown event
// kinds yield (nil, nil).
func ParseStreamEvent(data json.RawMessage) (StreamEventData, error) {
	var base struct {
		Type StreamEventType `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, err
	}

	switch base.Type {
	case StreamEventTypeMessageStart:
		return decodeEvent[MessageStartEvent](data)
	case StreamEventTypeContentBlockStart:
		return decodeEvent[ContentBlockStartEvent](data)
	case StreamEventTypeContentBlockDelta:
		return decodeEvent[ContentBlockDeltaEvent](data)
	case StreamEventTypeContentBlockStop:
		return decodeEvent[ContentBlockStopEvent](data)
	case StreamEventTypeMessageDelta:
		return decodeEvent[MessageDeltaEvent](data)
	case StreamEventTypeMessageStop:
		return decodeEvent[MessageStopEvent](data)
	default:
		slog.Debug("skipping unknown stream event type", "type", base.Type)
		return nil, nil
	}
}
