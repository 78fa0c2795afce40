package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewUserTextMessage(t *testing.T) {
	msg := NewUserTextMessage("default", "hello world")

	if msg.Type != "user" {
		t.Errorf("expected type 'user', got %q", msg.Type)
	}
	if msg.SessionID != "default" {
		t.Errorf("expected session_id 'default', got %q", msg.SessionID)
	}
	if msg.Message.Role != "user" {
		t.Errorf("expected role 'user', got %q", msg.Message.Role)
	}
	if msg.Message.Content != "hello world" {
		t.Errorf("expected content 'hello world', got %v", msg.Message.Content)
	}
}

func TestNewUserTextMessage_Marshal(t *testing.T) {
	msg := NewUserTextMessage("sess-1", "ping")

	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if parsed["type"] != "user" {
		t.Errorf("expected type 'user', got %v", parsed["type"])
	}
	if parsed["session_id"] != "sess-1" {
		t.Errorf("expected session_id 'sess-1', got %v", parsed["session_id"])
	}
	inner := parsed["message"].(map[string]interface{})
	if inner["role"] != "user" {
		t.Errorf("expected role 'user', got %v", inner["role"])
	}
	if inner["content"] != "ping" {
		t.Errorf("expected content 'ping', got %v", inner["content"])
	}
	for _, b := range data {
		if b == '\n' {
			t.Fatal("marshaled record must not contain a newline")
		}
	}
}

func TestNewUserTextMessage_EscapesNewlines(t *testing.T) {
	data, err := NewUserTextMessage("s", "line one\nline two").Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, b := range data {
		if b == '\n' {
			t.Fatal("embedded newline must be escaped")
		}
	}
}

func TestNewToolResultMessage_Marshal(t *testing.T) {
	data, err := NewToolResultMessage("s", "toolu_1", "done", true).Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	// The agent echoes this shape back, so it must parse as a UserMessage.
	msg, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	user, ok := msg.(UserMessage)
	if !ok {
		t.Fatalf("expected UserMessage, got %T", msg)
	}
	results := user.ToolResults()
	if len(results) != 1 {
		t.Fatalf("expected 1 tool result, got %d", len(results))
	}
	if results[0].ToolUseID != "toolu_1" {
		t.Errorf("unexpected tool_use_id %q", results[0].ToolUseID)
	}
	if !results[0].Failed() {
		t.Error("expected is_error=true")
	}
	if results[0].Text() != "done" {
		t.Errorf("unexpected content %q", results[0].Text())
	}
}

func TestNewInterrupt_Structure(t *testing.T) {
	req := NewInterrupt("req_int")

	if req.Type != "control_request" {
		t.Errorf("expected type 'control_request', got %q", req.Type)
	}
	if req.RequestID != "req_int" {
		t.Errorf("expected request_id 'req_int', got %q", req.RequestID)
	}

	body, ok := req.Request.(InterruptRequestToSend)
	if !ok {
		t.Fatalf("expected InterruptRequestToSend, got %T", req.Request)
	}
	if body.Subtype != "interrupt" {
		t.Errorf("expected subtype 'interrupt', got %q", body.Subtype)
	}
}

func TestNewInterrupt_Marshal(t *testing.T) {
	req := NewInterrupt("req_5")
	data, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if parsed["request_id"] != "req_5" {
		t.Errorf("expected request_id 'req_5', got %v", parsed["request_id"])
	}
	body := parsed["request"].(map[string]interface{})
	if body["subtype"] != "interrupt" {
		t.Errorf("expected subtype 'interrupt', got %v", body["subtype"])
	}
}
