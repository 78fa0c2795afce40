package transcript

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Block is a TextBlock or a ToolBlock.
type Block interface {
	isBlock()
	clone() Block
}

// TextBlock is append-only text.
type TextBlock struct {
	Text string
}

func (*TextBlock) isBlock() {}

func (b *TextBlock) clone() Block {
	c := *b
	return &c
}

// ToolBlock is one tool invocation. Input is always a JSON object; while
// Streaming it holds the last successful parse of the partial input. At most
// one of Result and Error is set.
type ToolBlock struct {
	Input     map[string]any
	Result    *string
	Error     *string
	ID        string
	Name      string
	Streaming bool
}

func (*ToolBlock) isBlock() {}

func (b *ToolBlock) clone() Block {
	c := *b
	c.Input = copyObject(b.Input)
	if b.Result != nil {
		r := *b.Result
		c.Result = &r
	}
	if b.Error != nil {
		e := *b.Error
		c.Error = &e
	}
	return &c
}

// Done reports whether the tool has a result or an error.
func (b *ToolBlock) Done() bool {
	return b.Result != nil || b.Error != nil
}

// Turn is one user or assistant entry.
type Turn struct {
	Role   Role
	Blocks []Block
}

// Clone returns a deep copy of t.
func (t Turn) Clone() Turn {
	c := Turn{Role: t.Role, Blocks: make([]Block, len(t.Blocks))}
	for i, b := range t.Blocks {
		c.Blocks[i] = b.clone()
	}
	return c
}

// Text concatenates the turn's text blocks.
func (t Turn) Text() string {
	var out string
	for _, b := range t.Blocks {
		if tb, ok := b.(*TextBlock); ok {
			out += tb.Text
		}
	}
	return out
}

// Tools returns the turn's tool blocks.
func (t Turn) Tools() []*ToolBlock {
	var out []*ToolBlock
	for _, b := range t.Blocks {
		if tb, ok := b.(*ToolBlock); ok {
			out = append(out, tb)
		}
	}
	return out
}

// EndReason says why a turn ended.
type EndReason int

const (
	EndDone EndReason = iota
	EndAborted
	EndReset
)

func (r EndReason) String() string {
	switch r {
	case EndDone:
		return "done"
	case EndAborted:
		return "aborted"
	case EndReset:
		return "reset"
	default:
		return "unknown"
	}
}

func copyObject(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyObject(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
