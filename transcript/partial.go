package transcript

import (
	"encoding/json"
	"strings"
)

// inputBuffer accumulates input_json_delta fragments for one tool block and
// remembers the last prefix that parsed as a JSON object.
type inputBuffer struct {
	last map[string]any
	raw  strings.Builder
}

// Append adds a fragment and reparses. It reports whether the accumulated
// text now parses.
func (b *inputBuffer) Append(fragment string) bool {
	b.raw.WriteString(fragment)
	return b.parse()
}

func (b *inputBuffer) parse() bool {
	s := strings.TrimSpace(b.raw.String())
	if s == "" {
		return false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return false
	}
	b.last = obj
	return true
}

// Value returns the last good parse, or an empty object if none succeeded.
func (b *inputBuffer) Value() map[string]any {
	if b.last == nil {
		return map[string]any{}
	}
	return b.last
}

// Len returns the number of buffered bytes.
func (b *inputBuffer) Len() int {
	return b.raw.Len()
}
