package protocol

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalContentBlock_UnknownType(t *testing.T) {
	raw := json.RawMessage(`{"type":"server_tool_use","id":"srv_123","name":"some_tool"}`)

	block, err := UnmarshalContentBlock(raw)
	if err != nil {
		t.Fatalf("expected no error for unknown type, got: %v", err)
	}
	if block != nil {
		t.Fatalf("expected nil block for unknown type, got: %v", block)
	}
}

func TestContentBlocks_SkipsUnknownTypes(t *testing.T) {
	// Mix of known and unknown block types
	raw := `[
		{"type":"text","text":"hello"},
		{"type":"server_tool_use","id":"srv_123","name":"some_tool"},
		{"type":"tool_use","id":"toolu_abc","name":"Bash","input":{"command":"ls"}},
		{"type":"image","source":{"type":"base64","data":"..."}}
	]`

	var blocks ContentBlocks
	if err := json.Unmarshal([]byte(raw), &blocks); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// Should only have the two known blocks (text + tool_use)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}

	if blocks[0].BlockType() != ContentBlockTypeText {
		t.Errorf("expected first block to be text, got %s", blocks[0].BlockType())
	}
	if blocks[1].BlockType() != ContentBlockTypeToolUse {
		t.Errorf("expected second block to be tool_use, got %s", blocks[1].BlockType())
	}

	// Verify text content preserved
	textBlock, ok := blocks[0].(TextBlock)
	if !ok {
		t.Fatal("first block is not TextBlock")
	}
	if textBlock.Text != "hello" {
		t.Errorf("expected text 'hello', got %q", textBlock.Text)
	}
}

func TestToolResultBlock_Text(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"string", `"file written"`, "file written"},
		{"text items", `[{"type":"text","text":"a"},{"type":"image"},{"type":"text","text":"b"}]`, "a\nb"},
		{"null", `null`, ""},
		{"object", `{"k":1}`, `{"k":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ToolResultBlock{Content: json.RawMessage(tt.content)}
			if got := b.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlexibleContent_StringOrBlocks(t *testing.T) {
	var fc FlexibleContent
	if err := json.Unmarshal([]byte(`"plain"`), &fc); err != nil {
		t.Fatal(err)
	}
	if s, ok := fc.AsString(); !ok || s != "plain" {
		t.Errorf("AsString() = %q, %v", s, ok)
	}
	if _, ok := fc.AsBlocks(); ok {
		t.Error("string content must not decode as blocks")
	}

	if err := json.Unmarshal([]byte(`[{"type":"text","text":"hi"}]`), &fc); err != nil {
		t.Fatal(err)
	}
	blocks, ok := fc.AsBlocks()
	if !ok || len(blocks) != 1 {
		t.Fatalf("AsBlocks() = %v, %v", blocks, ok)
	}
}
