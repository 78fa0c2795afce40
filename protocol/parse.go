package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/bazelment/yoloswe/agentsession/internal/ndjson"
)

// ParseMessage decodes one NDJSON record. Records whose type is not part of
// the protocol yield (nil, nil) so newer agent builds stay readable.
func ParseMessage(line []byte) (Message, error) {
	var base struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(line, &base); err != nil {
		return nil, fmt.Errorf("decode message type: %w", err)
	}

	var (
		msg Message
		err error
	)
	switch base.Type {
	case MessageTypeSystem:
		msg, err = decodeAs[SystemMessage](line)
	case MessageTypeAssistant:
		msg, err = decodeAs[AssistantMessage](line)
	case MessageTypeUser:
		msg, err = decodeAs[UserMessage](line)
	case MessageTypeResult:
		msg, err = decodeAs[ResultMessage](line)
	case MessageTypeStreamEvent:
		msg, err = decodeAs[StreamEvent](line)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s message: %w", base.Type, err)
	}
	return msg, nil
}

// Record is one framed line and its decoding outcome. Exactly one of Msg and
// Err is set for protocol lines; both are nil for well-formed records of an
// unknown type.
type Record struct {
	Msg  Message
	Err  error
	Line []byte
}

// Decoder turns raw stdout bytes into protocol records. It keeps the
// partial trailing line between calls and is owned by a single reader.
type Decoder struct {
	framer ndjson.Framer
}

// Feed consumes p and returns a record for every complete line.
func (d *Decoder) Feed(p []byte) []Record {
	lines := d.framer.Feed(p)
	if len(lines) == 0 {
		return nil
	}
	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		records = append(records, DecodeLine(line))
	}
	return records
}

// Flush decodes the unterminated tail, if any, and resets the buffer.
func (d *Decoder) Flush() (Record, bool) {
	tail := d.framer.Remainder()
	d.framer.Reset()
	if tail == nil {
		return Record{}, false
	}
	return DecodeLine(tail), true
}

// DecodeLine decodes a single framed line into a Record.
func DecodeLine(line []byte) Record {
	msg, err := ParseMessage(line)
	return Record{Line: line, Msg: msg, Err: err}
}
