// Package transcript reconstructs a conversation transcript from the agent's
// protocol records. The agent may deliver an assistant reply as token-level
// stream events, as whole-message snapshots, as a final result string, or as
// any mix of the three; the Reconstructor converges on one transcript
// regardless.
package transcript

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/bazelment/yoloswe/agentsession/protocol"
)

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithLogger sets the logger used for protocol anomalies.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconstructor) {
		r.logger = l
	}
}

// WithOnChange registers a listener called with a copy of every turn that
// changed, after the change. It runs on the caller's goroutine without locks
// held.
func WithOnChange(fn func(index int, turn Turn)) Option {
	return func(r *Reconstructor) {
		r.onChange = fn
	}
}

// openBlock is the streaming state for one content block index.
type openBlock struct {
	text  *TextBlock
	tool  *ToolBlock
	input *inputBuffer
}

// Reconstructor builds the ordered list of turns. It is safe for concurrent
// use, though the protocol stream is expected to be applied from a single
// goroutine.
type Reconstructor struct {
	logger   *slog.Logger
	onChange func(int, Turn)
	open     map[int]*openBlock
	turns    []*Turn
	mu       sync.Mutex
	// current is the index of the assistant turn being built, or -1.
	current int
	// msgStart is the first block of the current turn that belongs to the
	// message being streamed.
	msgStart int
	// streamedText is set once a text_delta arrived for the current turn.
	streamedText bool
}

// New creates an empty Reconstructor.
func New(opts ...Option) *Reconstructor {
	r := &Reconstructor{
		logger:  slog.Default(),
		open:    make(map[int]*openBlock),
		current: -1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// update runs fn under the lock and notifies the listener about the turn
// indices fn reports as changed.
func (r *Reconstructor) update(fn func() []int) {
	r.mu.Lock()
	changed := fn()
	type snap struct {
		turn  Turn
		index int
	}
	var snaps []snap
	if r.onChange != nil {
		seen := make(map[int]bool, len(changed))
		for _, i := range changed {
			if i < 0 || i >= len(r.turns) || seen[i] {
				continue
			}
			seen[i] = true
			snaps = append(snaps, snap{index: i, turn: r.turns[i].Clone()})
		}
	}
	r.mu.Unlock()

	for _, s := range snaps {
		r.onChange(s.index, s.turn)
	}
}

// AddUserTurn ends any assistant turn in progress and appends a user turn.
// It returns the new turn's index.
func (r *Reconstructor) AddUserTurn(text string) int {
	var index int
	r.update(func() []int {
		r.endTurnLocked()
		r.turns = append(r.turns, &Turn{Role: RoleUser, Blocks: []Block{&TextBlock{Text: text}}})
		index = len(r.turns) - 1
		return []int{index}
	})
	return index
}

// RetractUserTurn removes the user turn at index if it is still the last
// turn, for a prompt that never reached the agent. It reports whether the
// turn was removed.
func (r *Reconstructor) RetractUserTurn(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index != len(r.turns)-1 || r.turns[index].Role != RoleUser {
		return false
	}
	r.turns = r.turns[:index]
	return true
}

// Apply routes a decoded protocol message to the matching handler. System
// messages, unknown kinds, and records produced inside a sub-agent (those
// with a parent tool use id) are ignored.
func (r *Reconstructor) Apply(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.AssistantMessage:
		if m.ParentToolUseID == nil {
			r.ApplyAssistant(m)
		}
	case protocol.UserMessage:
		if m.ParentToolUseID == nil {
			r.ApplyUser(m)
		}
	case protocol.ResultMessage:
		r.ApplyResult(m)
	case protocol.StreamEvent:
		if m.ParentToolUseID != nil {
			return
		}
		data, err := m.Parsed()
		if err != nil {
			r.logger.Debug("dropping undecodable stream event", "error", err)
			return
		}
		if data != nil {
			r.ApplyStreamEvent(data)
		}
	}
}

// assistantLocked returns the assistant turn being built, starting one if
// needed.
func (r *Reconstructor) assistantLocked() (*Turn, int) {
	if r.current < 0 {
		r.turns = append(r.turns, &Turn{Role: RoleAssistant})
		r.current = len(r.turns) - 1
	}
	return r.turns[r.current], r.current
}

// ApplyStreamEvent applies one token-level event.
func (r *Reconstructor) ApplyStreamEvent(ev protocol.StreamEventData) {
	r.update(func() []int {
		switch e := ev.(type) {
		case protocol.MessageStartEvent:
			r.open = make(map[int]*openBlock)
			turn, idx := r.assistantLocked()
			r.msgStart = len(turn.Blocks)
			return []int{idx}
		case protocol.ContentBlockStartEvent:
			return r.blockStartLocked(e)
		case protocol.ContentBlockDeltaEvent:
			return r.blockDeltaLocked(e)
		case protocol.ContentBlockStopEvent:
			return r.blockStopLocked(e.Index)
		}
		return nil
	})
}

func (r *Reconstructor) blockStartLocked(e protocol.ContentBlockStartEvent) []int {
	block, err := e.ParsedBlock()
	if err != nil {
		r.logger.Debug("dropping undecodable content block", "index", e.Index, "error", err)
		return nil
	}
	turn, idx := r.assistantLocked()

	switch b := block.(type) {
	case protocol.TextBlock:
		tb := &TextBlock{Text: b.Text}
		turn.Blocks = append(turn.Blocks, tb)
		r.open[e.Index] = &openBlock{text: tb}
		if b.Text != "" {
			r.streamedText = true
		}
	case protocol.ToolUseBlock:
		tool, owner := r.findToolLocked(b.ID)
		if tool == nil {
			tool = &ToolBlock{ID: b.ID, Name: b.Name, Input: map[string]any{}}
			turn.Blocks = append(turn.Blocks, tool)
			owner = idx
		}
		if !tool.Done() {
			tool.Streaming = true
		}
		if len(b.Input) > 0 {
			tool.Input = copyObject(b.Input)
		}
		r.open[e.Index] = &openBlock{tool: tool, input: &inputBuffer{}}
		return []int{idx, owner}
	default:
		// Thinking and unknown blocks are not part of the transcript.
		delete(r.open, e.Index)
		return nil
	}
	return []int{idx}
}

func (r *Reconstructor) blockDeltaLocked(e protocol.ContentBlockDeltaEvent) []int {
	delta, err := e.ParsedDelta()
	if err != nil || delta == nil {
		return nil
	}
	switch d := delta.(type) {
	case protocol.TextDelta:
		turn, idx := r.assistantLocked()
		ob := r.open[e.Index]
		if ob == nil || ob.text == nil {
			// Delta without a start: open the block implicitly.
			ob = &openBlock{text: &TextBlock{}}
			turn.Blocks = append(turn.Blocks, ob.text)
			r.open[e.Index] = ob
		}
		ob.text.Text += d.Text
		if d.Text != "" {
			r.streamedText = true
		}
		return []int{idx}
	case protocol.InputJSONDelta:
		ob := r.open[e.Index]
		if ob == nil || ob.tool == nil {
			r.logger.Debug("input_json_delta for unknown block", "index", e.Index)
			return nil
		}
		if ob.input.Append(d.PartialJSON) {
			ob.tool.Input = ob.input.Value()
		}
		_, owner := r.findToolLocked(ob.tool.ID)
		return []int{owner}
	}
	return nil
}

func (r *Reconstructor) blockStopLocked(index int) []int {
	ob := r.open[index]
	delete(r.open, index)
	if ob == nil || ob.tool == nil {
		return nil
	}
	if ob.input.Len() > 0 {
		// Keeps the previous value when the final text still does not parse.
		if ob.input.parse() {
			ob.tool.Input = ob.input.Value()
		}
	}
	if ob.tool.Input == nil {
		ob.tool.Input = map[string]any{}
	}
	ob.tool.Streaming = false
	_, owner := r.findToolLocked(ob.tool.ID)
	return []int{owner}
}

// ApplyAssistant reconciles a complete assistant message with what the token
// stream already built. Tool blocks from the snapshot are merged by id,
// keeping any recorded result or error; tool blocks are never removed. Text
// the turn already holds is not duplicated.
func (r *Reconstructor) ApplyAssistant(m protocol.AssistantMessage) {
	r.update(func() []int {
		turn, idx := r.assistantLocked()
		changed := []int{idx}

		var blocks protocol.ContentBlocks
		if s, ok := m.Message.Content.AsString(); ok {
			blocks = protocol.ContentBlocks{protocol.TextBlock{Type: protocol.ContentBlockTypeText, Text: s}}
		} else if bs, ok := m.Message.Content.AsBlocks(); ok {
			blocks = bs
		}

		own := make(map[string]bool)
		for _, block := range blocks {
			if b, ok := block.(protocol.ToolUseBlock); ok {
				own[b.ID] = true
			}
		}
		start := r.messageStartLocked(turn, own)

		for _, block := range blocks {
			switch b := block.(type) {
			case protocol.TextBlock:
				r.mergeSnapshotTextLocked(turn, start, b.Text)
			case protocol.ToolUseBlock:
				tool, owner := r.findToolLocked(b.ID)
				if tool == nil {
					tool = &ToolBlock{ID: b.ID}
					turn.Blocks = append(turn.Blocks, tool)
					owner = idx
				}
				tool.Name = b.Name
				if b.Input != nil {
					tool.Input = copyObject(b.Input)
				} else if tool.Input == nil {
					tool.Input = map[string]any{}
				}
				tool.Streaming = false
				r.closeOpenToolLocked(b.ID)
				changed = append(changed, owner)
			}
		}
		return changed
	})
}

// mergeSnapshotTextLocked folds snapshot text into the text blocks from
// start on. Text from earlier messages of the turn is never matched.
func (r *Reconstructor) mergeSnapshotTextLocked(turn *Turn, start int, text string) {
	if text == "" {
		return
	}
	for _, b := range turn.Blocks[start:] {
		tb, ok := b.(*TextBlock)
		if !ok || tb.Text == "" {
			continue
		}
		switch {
		case strings.HasPrefix(tb.Text, text):
			return
		case strings.HasPrefix(text, tb.Text):
			tb.Text = text
			return
		}
	}
	turn.Blocks = append(turn.Blocks, &TextBlock{Text: text})
}

// messageStartLocked returns the index of the first block of the message a
// snapshot describes: past the last message_start and past any finished tool
// the snapshot does not carry, since a reply to a tool result is always a
// new message.
func (r *Reconstructor) messageStartLocked(turn *Turn, own map[string]bool) int {
	start := min(r.msgStart, len(turn.Blocks))
	for i := len(turn.Blocks) - 1; i >= start; i-- {
		if tb, ok := turn.Blocks[i].(*ToolBlock); ok && tb.Done() && !own[tb.ID] {
			return i + 1
		}
	}
	return start
}

// closeOpenToolLocked stops streaming deltas into a tool the snapshot has
// completed.
func (r *Reconstructor) closeOpenToolLocked(id string) {
	for i, ob := range r.open {
		if ob.tool != nil && ob.tool.ID == id {
			delete(r.open, i)
		}
	}
}

// ApplyUser correlates tool results with their tool blocks. Results for
// unknown ids are dropped with a warning.
func (r *Reconstructor) ApplyUser(m protocol.UserMessage) {
	results := m.ToolResults()
	if len(results) == 0 {
		return
	}
	r.update(func() []int {
		var changed []int
		for _, res := range results {
			tool, owner := r.findToolLocked(res.ToolUseID)
			if tool == nil {
				r.logger.Warn("tool result for unknown tool", "tool_use_id", res.ToolUseID)
				continue
			}
			text := res.Text()
			if res.Failed() {
				tool.Error, tool.Result = &text, nil
			} else {
				tool.Result, tool.Error = &text, nil
			}
			tool.Streaming = false
			r.closeOpenToolLocked(tool.ID)
			changed = append(changed, owner)
		}
		return changed
	})
}

// ApplyResult applies the final result text and ends the turn. The text is
// used only when the turn holds no text yet, so a streamed or snapshot
// answer is never duplicated.
func (r *Reconstructor) ApplyResult(m protocol.ResultMessage) {
	r.update(func() []int {
		var changed []int
		if m.Result != "" {
			turn, idx := r.assistantLocked()
			if !r.streamedText && strings.TrimSpace(turn.Text()) == "" {
				turn.Blocks = append(turn.Blocks, &TextBlock{Text: m.Result})
				changed = append(changed, idx)
			}
		}
		r.endTurnLocked()
		return changed
	})
}

// EndTurn clears streaming state. Blocks are left exactly as they are, so an
// aborted turn keeps whatever the agent produced.
func (r *Reconstructor) EndTurn(reason EndReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current >= 0 {
		r.logger.Debug("turn ended", "reason", reason.String(), "turn", r.current)
	}
	r.endTurnLocked()
}

func (r *Reconstructor) endTurnLocked() {
	r.open = make(map[int]*openBlock)
	r.current = -1
	r.streamedText = false
	r.msgStart = 0
}

// Clear drops every turn and all streaming state.
func (r *Reconstructor) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endTurnLocked()
	r.turns = nil
}

// Turns returns a deep copy of the transcript.
func (r *Reconstructor) Turns() []Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Turn, len(r.turns))
	for i, t := range r.turns {
		out[i] = t.Clone()
	}
	return out
}

// FindTool returns a copy of the tool block with id.
func (r *Reconstructor) FindTool(id string) (ToolBlock, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tool, _ := r.findToolLocked(id)
	if tool == nil {
		return ToolBlock{}, false
	}
	return *tool.clone().(*ToolBlock), true
}

// findToolLocked searches turns newest first.
func (r *Reconstructor) findToolLocked(id string) (*ToolBlock, int) {
	if id == "" {
		return nil, -1
	}
	for i := len(r.turns) - 1; i >= 0; i-- {
		for _, b := range r.turns[i].Blocks {
			if tb, ok := b.(*ToolBlock); ok && tb.ID == id {
				return tb, i
			}
		}
	}
	return nil, -1
}
