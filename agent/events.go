package agent

import "github.com/bazelment/yoloswe/agentsession/protocol"

// EventType discriminates between event kinds.
type EventType int

const (
	// EventTypeSystem fires for system records, including session init.
	EventTypeSystem EventType = iota
	// EventTypeAssistant fires for complete assistant message snapshots.
	EventTypeAssistant
	// EventTypeUser fires for user records carrying tool results.
	EventTypeUser
	// EventTypeStream fires for token-level stream events.
	EventTypeStream
	// EventTypeResult fires when a turn completes.
	EventTypeResult
	// EventTypeText fires for stdout lines that are not protocol records.
	EventTypeText
	// EventTypeError is terminal: the session attempt failed.
	EventTypeError
	// EventTypeExit is terminal: the process exited cleanly or was stopped.
	EventTypeExit
)

// String returns the event kind name.
func (t EventType) String() string {
	switch t {
	case EventTypeSystem:
		return "system"
	case EventTypeAssistant:
		return "assistant"
	case EventTypeUser:
		return "user"
	case EventTypeStream:
		return "streamEvent"
	case EventTypeResult:
		return "result"
	case EventTypeText:
		return "text"
	case EventTypeError:
		return "error"
	case EventTypeExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Event is the interface for all supervisor events.
type Event interface {
	Type() EventType
}

// SystemEvent carries a system record.
type SystemEvent struct {
	Message protocol.SystemMessage
}

// Type returns the event type.
func (e SystemEvent) Type() EventType { return EventTypeSystem }

// AssistantEvent carries a complete assistant message.
type AssistantEvent struct {
	Message protocol.AssistantMessage
}

// Type returns the event type.
func (e AssistantEvent) Type() EventType { return EventTypeAssistant }

// UserEvent carries tool results echoed by the agent.
type UserEvent struct {
	Message protocol.UserMessage
}

// Type returns the event type.
func (e UserEvent) Type() EventType { return EventTypeUser }

// StreamEvent carries a token-level event. Data is the decoded inner event.
type StreamEvent struct {
	Data    protocol.StreamEventData
	Message protocol.StreamEvent
}

// Type returns the event type.
func (e StreamEvent) Type() EventType { return EventTypeStream }

// ResultEvent carries the terminal record of a turn.
type ResultEvent struct {
	Message protocol.ResultMessage
}

// Type returns the event type.
func (e ResultEvent) Type() EventType { return EventTypeResult }

// TextEvent carries a stdout line that could not be decoded.
type TextEvent struct {
	Err  *ProtocolError
	Line string
}

// Type returns the event type.
func (e TextEvent) Type() EventType { return EventTypeText }

// ErrorEvent ends a session attempt with a failure.
type ErrorEvent struct {
	Err     error
	Context string
}

// Type returns the event type.
func (e ErrorEvent) Type() EventType { return EventTypeError }

// ExitEvent ends a session attempt. Requested is true when the exit followed
// Stop or context cancellation. Code is -1 if the process died by signal.
type ExitEvent struct {
	Code      int
	Requested bool
}

// Type returns the event type.
func (e ExitEvent) Type() EventType { return EventTypeExit }

// IsTerminal reports whether ev ends a session attempt.
func IsTerminal(ev Event) bool {
	t := ev.Type()
	return t == EventTypeError || t == EventTypeExit
}
