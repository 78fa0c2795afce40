package protocol

import (
	"strings"
	"testing"
)

// Fixtures captured from a real agent session.
const (
	systemInit = `{"type":"system","subtype":"init","cwd":"/tmp/work","session_id":"e2a1c7f0-6b7d-4c55-9d0e-9d7c2f0d1a11","tools":["Task","Bash","Glob","Grep","Read","Edit","Write","WebSearch"],"model":"claude-sonnet-4-5","permissionMode":"default","claude_code_version":"2.0.14","uuid":"0c0f1d1e-1111-4222-8333-444455556666"}`

	streamMessageStart = `{"type":"stream_event","event":{"type":"message_start","message":{"model":"claude-sonnet-4-5","id":"msg_01","type":"message","role":"assistant","content":[],"stop_reason":null,"usage":{"input_tokens":3,"output_tokens":1}}},"session_id":"e2a1c7f0-6b7d-4c55-9d0e-9d7c2f0d1a11","parent_tool_use_id":null,"uuid":"a1"}`

	streamContentBlockStart = `{"type":"stream_event","event":{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}},"session_id":"e2a1c7f0-6b7d-4c55-9d0e-9d7c2f0d1a11","parent_tool_use_id":null,"uuid":"a2"}`

	streamTextDelta = `{"type":"stream_event","event":{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"I'll search for the latest news about"}},"session_id":"e2a1c7f0-6b7d-4c55-9d0e-9d7c2f0d1a11","parent_tool_use_id":null,"uuid":"a3"}`

	streamToolUseStart = `{"type":"stream_event","event":{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_01WS","name":"WebSearch","input":{}}},"session_id":"e2a1c7f0-6b7d-4c55-9d0e-9d7c2f0d1a11","parent_tool_use_id":null,"uuid":"a4"}`

	streamInputJSONDelta = `{"type":"stream_event","event":{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"query\": \"US "}},"session_id":"e2a1c7f0-6b7d-4c55-9d0e-9d7c2f0d1a11","parent_tool_use_id":null,"uuid":"a5"}`

	assistantSnapshot = `{"type":"assistant","message":{"model":"claude-sonnet-4-5","id":"msg_01","type":"message","role":"assistant","content":[{"type":"text","text":"I'll search for the latest news about US tariffs."},{"type":"tool_use","id":"toolu_01WS","name":"WebSearch","input":{"query":"US tariffs news"}}],"stop_reason":null,"usage":{"input_tokens":3,"output_tokens":42}},"parent_tool_use_id":null,"session_id":"e2a1c7f0-6b7d-4c55-9d0e-9d7c2f0d1a11","uuid":"a6"}`

	userToolResult = `{"type":"user","message":{"role":"user","content":[{"tool_use_id":"toolu_01WS","type":"tool_result","content":[{"type":"text","text":"Top stories"}]}]},"parent_tool_use_id":null,"session_id":"e2a1c7f0-6b7d-4c55-9d0e-9d7c2f0d1a11","uuid":"a7"}`

	resultSuccess = `{"type":"result","subtype":"success","is_error":false,"duration_ms":5123,"duration_api_ms":4800,"num_turns":2,"result":"Here is a summary.","session_id":"e2a1c7f0-6b7d-4c55-9d0e-9d7c2f0d1a11","total_cost_usd":0.0123,"usage":{"input_tokens":10,"output_tokens":120},"uuid":"a8"}`
)

func TestParseMessage_SystemInit(t *testing.T) {
	msg, err := ParseMessage([]byte(systemInit))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sys, ok := msg.(SystemMessage)
	if !ok {
		t.Fatalf("expected SystemMessage, got %T", msg)
	}
	if !sys.IsInit() {
		t.Error("expected init subtype")
	}
	if sys.SessionID != "e2a1c7f0-6b7d-4c55-9d0e-9d7c2f0d1a11" {
		t.Errorf("unexpected session id %q", sys.SessionID)
	}
	if sys.Model != "claude-sonnet-4-5" {
		t.Errorf("unexpected model %q", sys.Model)
	}
	if len(sys.Tools) != 8 {
		t.Errorf("expected 8 tools, got %d", len(sys.Tools))
	}
}

func TestParseMessage_AssistantSnapshot(t *testing.T) {
	msg, err := ParseMessage([]byte(assistantSnapshot))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	a, ok := msg.(AssistantMessage)
	if !ok {
		t.Fatalf("expected AssistantMessage, got %T", msg)
	}
	blocks, ok := a.Message.Content.AsBlocks()
	if !ok {
		t.Fatal("expected block content")
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	tu, ok := blocks[1].(ToolUseBlock)
	if !ok {
		t.Fatalf("expected ToolUseBlock, got %T", blocks[1])
	}
	if tu.Input["query"] != "US tariffs news" {
		t.Errorf("unexpected input %v", tu.Input)
	}
}

func TestParseMessage_UserToolResult(t *testing.T) {
	msg, err := ParseMessage([]byte(userToolResult))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	u, ok := msg.(UserMessage)
	if !ok {
		t.Fatalf("expected UserMessage, got %T", msg)
	}
	results := u.ToolResults()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Failed() {
		t.Error("result should not be an error")
	}
	if results[0].Text() != "Top stories" {
		t.Errorf("unexpected text %q", results[0].Text())
	}
}

func TestParseMessage_Result(t *testing.T) {
	msg, err := ParseMessage([]byte(resultSuccess))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	r, ok := msg.(ResultMessage)
	if !ok {
		t.Fatalf("expected ResultMessage, got %T", msg)
	}
	if r.Result != "Here is a summary." {
		t.Errorf("unexpected result %q", r.Result)
	}
	if r.NumTurns != 2 || r.IsError {
		t.Errorf("unexpected result fields: %+v", r)
	}
}

func TestParseMessage_StreamEvent(t *testing.T) {
	msg, err := ParseMessage([]byte(streamMessageStart))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	se, ok := msg.(StreamEvent)
	if !ok {
		t.Fatalf("expected StreamEvent, got %T", msg)
	}
	data, err := se.Parsed()
	if err != nil {
		t.Fatalf("Parsed failed: %v", err)
	}
	start, ok := data.(MessageStartEvent)
	if !ok {
		t.Fatalf("expected MessageStartEvent, got %T", data)
	}
	if start.Message.ID != "msg_01" {
		t.Errorf("unexpected message id %q", start.Message.ID)
	}
}

func TestParseMessage_UnknownType(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"keep_alive"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != nil {
		t.Errorf("expected nil for unknown type, got %T", msg)
	}
}

func TestParseMessage_Malformed(t *testing.T) {
	for _, line := range []string{`not json`, `{"type":"assistant","message":"oops"}`, `[1,2]`} {
		if _, err := ParseMessage([]byte(line)); err == nil {
			t.Errorf("expected error for %q", line)
		}
	}
}

func TestDecoder_SplitAcrossReads(t *testing.T) {
	stream := systemInit + "\n" + streamTextDelta + "\n" + resultSuccess + "\n"

	var d Decoder
	var records []Record
	// Feed in uneven chunks that split records mid-token.
	for i := 0; i < len(stream); i += 37 {
		end := i + 37
		if end > len(stream) {
			end = len(stream)
		}
		records = append(records, d.Feed([]byte(stream[i:end]))...)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if _, ok := records[0].Msg.(SystemMessage); !ok {
		t.Errorf("record 0: expected SystemMessage, got %T", records[0].Msg)
	}
	if _, ok := records[1].Msg.(StreamEvent); !ok {
		t.Errorf("record 1: expected StreamEvent, got %T", records[1].Msg)
	}
	if _, ok := records[2].Msg.(ResultMessage); !ok {
		t.Errorf("record 2: expected ResultMessage, got %T", records[2].Msg)
	}
	if _, ok := d.Flush(); ok {
		t.Error("expected no remainder")
	}
}

func TestDecoder_MalformedLineDoesNotStopStream(t *testing.T) {
	var d Decoder
	records := d.Feed([]byte("garbage line\n\n" + resultSuccess + "\n"))

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Err == nil {
		t.Error("expected decode error for garbage line")
	}
	if string(records[0].Line) != "garbage line" {
		t.Errorf("unexpected raw line %q", records[0].Line)
	}
	if records[1].Err != nil || records[1].Msg == nil {
		t.Errorf("expected result record, got %+v", records[1])
	}
}

func TestDecoder_FlushTail(t *testing.T) {
	var d Decoder
	if got := d.Feed([]byte(strings.TrimSpace(resultSuccess))); got != nil {
		t.Fatalf("expected no complete records, got %d", len(got))
	}
	rec, ok := d.Flush()
	if !ok {
		t.Fatal("expected a tail record")
	}
	if _, isResult := rec.Msg.(ResultMessage); !isResult {
		t.Errorf("expected ResultMessage, got %T", rec.Msg)
	}
	if _, ok := d.Flush(); ok {
		t.Error("second flush should be empty")
	}
}
