package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseContentBlockDelta(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType string
		check    func(t *testing.T, d DeltaData)
	}{
		{
			name:     "text",
			raw:      `{"type":"text_delta","text":"hello"}`,
			wantType: DeltaTypeText,
			check: func(t *testing.T, d DeltaData) {
				if got := d.(TextDelta).Text; got != "hello" {
					t.Errorf("Text = %q", got)
				}
			},
		},
		{
			name:     "thinking",
			raw:      `{"type":"thinking_delta","thinking":"hmm"}`,
			wantType: DeltaTypeThinking,
			check: func(t *testing.T, d DeltaData) {
				if got := d.(ThinkingDelta).Thinking; got != "hmm" {
					t.Errorf("Thinking = %q", got)
				}
			},
		},
		{
			name:     "input json keeps the fragment verbatim",
			raw:      `{"type":"input_json_delta","partial_json":"{\"file_path\":\"/tmp/a"}`,
			wantType: DeltaTypeInputJSON,
			check: func(t *testing.T, d DeltaData) {
				if got := d.(InputJSONDelta).PartialJSON; got != `{"file_path":"/tmp/a` {
					t.Errorf("PartialJSON = %q", got)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseContentBlockDelta(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("ParseContentBlockDelta: %v", err)
			}
			if d == nil {
				t.Fatal("got nil delta")
			}
			if d.DeltaType() != tt.wantType {
				t.Fatalf("DeltaType() = %q, want %q", d.DeltaType(), tt.wantType)
			}
			tt.check(t, d)
		})
	}
}

func TestParseContentBlockDelta_SkipsUnknownAndRejectsGarbage(t *testing.T) {
	d, err := ParseContentBlockDelta(json.RawMessage(`{"type":"citations_delta","citation":{}}`))
	if err != nil || d != nil {
		t.Errorf("unknown delta: got (%v, %v), want (nil, nil)", d, err)
	}
	if _, err := ParseContentBlockDelta(json.RawMessage(`{"type":`)); err == nil {
		t.Error("truncated delta: expected error")
	}
}

func TestParseStreamEvent_Kinds(t *testing.T) {
	tests := []struct {
		raw       string
		wantType  StreamEventType
		wantIndex int // -1 for events not addressed to a block
	}{
		{`{"type":"message_start","message":{"role":"assistant","content":[]}}`, StreamEventTypeMessageStart, -1},
		{`{"type":"content_block_start","index":2,"content_block":{"type":"text","text":""}}`, StreamEventTypeContentBlockStart, 2},
		{`{"type":"content_block_delta","index":3,"delta":{"type":"text_delta","text":"x"}}`, StreamEventTypeContentBlockDelta, 3},
		{`{"type":"content_block_stop","index":4}`, StreamEventTypeContentBlockStop, 4},
		{`{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":7}}`, StreamEventTypeMessageDelta, -1},
		{`{"type":"message_stop"}`, StreamEventTypeMessageStop, -1},
	}
	for _, tt := range tests {
		t.Run(string(tt.wantType), func(t *testing.T) {
			ev, err := ParseStreamEvent(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("ParseStreamEvent: %v", err)
			}
			if ev.EventType() != tt.wantType {
				t.Fatalf("EventType() = %q, want %q", ev.EventType(), tt.wantType)
			}
			be, isBlock := ev.(BlockEvent)
			if isBlock != (tt.wantIndex >= 0) {
				t.Fatalf("BlockEvent = %v, want index %d", isBlock, tt.wantIndex)
			}
			if isBlock && be.BlockIndex() != tt.wantIndex {
				t.Errorf("BlockIndex() = %d, want %d", be.BlockIndex(), tt.wantIndex)
			}
		})
	}
}

func TestParseStreamEvent_MessageDeltaStopReason(t *testing.T) {
	ev, err := ParseStreamEvent(json.RawMessage(`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`))
	if err != nil {
		t.Fatalf("ParseStreamEvent: %v", err)
	}
	md := ev.(MessageDeltaEvent)
	if md.Delta.StopReason == nil || *md.Delta.StopReason != "end_turn" {
		t.Errorf("StopReason = %v", md.Delta.StopReason)
	}
}

func TestParseStreamEvent_Unknown(t *testing.T) {
	ev, err := ParseStreamEvent(json.RawMessage(`{"type":"ping"}`))
	if err != nil || ev != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", ev, err)
	}
}

// streamEventData decodes a captured stream_event line down to its inner event.
func streamEventData(t *testing.T, line string) StreamEventData {
	t.Helper()
	msg, err := ParseMessage([]byte(line))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	se, ok := msg.(StreamEvent)
	if !ok {
		t.Fatalf("got %T, want StreamEvent", msg)
	}
	data, err := se.Parsed()
	if err != nil {
		t.Fatalf("Parsed: %v", err)
	}
	return data
}

func TestStreamEvent_CapturedLines(t *testing.T) {
	start := streamEventData(t, streamToolUseStart).(ContentBlockStartEvent)
	block, err := start.ParsedBlock()
	if err != nil {
		t.Fatalf("ParsedBlock: %v", err)
	}
	tu, ok := block.(ToolUseBlock)
	if !ok {
		t.Fatalf("got %T, want ToolUseBlock", block)
	}
	if tu.Name != "WebSearch" || tu.ID == "" {
		t.Errorf("tool_use start = %+v", tu)
	}

	textStart := streamEventData(t, streamContentBlockStart).(ContentBlockStartEvent)
	if b, err := textStart.ParsedBlock(); err != nil || b.BlockType() != ContentBlockTypeText {
		t.Errorf("text start = (%v, %v)", b, err)
	}

	textDelta := streamEventData(t, streamTextDelta).(ContentBlockDeltaEvent)
	d, err := textDelta.ParsedDelta()
	if err != nil {
		t.Fatalf("ParsedDelta: %v", err)
	}
	if got := d.(TextDelta).Text; got != "I'll search for the latest news about" {
		t.Errorf("text delta = %q", got)
	}

	jsonDelta := streamEventData(t, streamInputJSONDelta).(ContentBlockDeltaEvent)
	d, err = jsonDelta.ParsedDelta()
	if err != nil {
		t.Fatalf("ParsedDelta: %v", err)
	}
	if got := d.(InputJSONDelta).PartialJSON; got != `{"query": "US ` {
		t.Errorf("input_json delta = %q", got)
	}
}
