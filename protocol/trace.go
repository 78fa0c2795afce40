package protocol

import "encoding/json"

// Trace directions.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// TraceEntry is one line of a session recording. It wraps a raw protocol
// record with the direction it travelled and when.
type TraceEntry struct {
	Timestamp string          `json:"timestamp"`
	Direction string          `json:"direction"`
	SessionID string          `json:"sessionId,omitempty"`
	Message   json.RawMessage `json:"message"`
}

// ParseTraceEntry parses a recording line and decodes the wrapped protocol
// record. Lines that are not trace entries are decoded as raw protocol
// records, so plain captured stdout can be replayed too.
func ParseTraceEntry(line []byte) (TraceEntry, Message, error) {
	var entry TraceEntry
	if err := json.Unmarshal(line, &entry); err != nil || len(entry.Message) == 0 {
		msg, perr := ParseMessage(line)
		return TraceEntry{Direction: DirectionReceived, Message: line}, msg, perr
	}
	msg, err := ParseMessage(entry.Message)
	return entry, msg, err
}
