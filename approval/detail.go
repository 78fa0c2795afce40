package approval

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultDetailBudget bounds the length of a formatted detail string.
const DefaultDetailBudget = 400

const ellipsis = "…"

// FormatDetail renders a tool invocation for a human approver, truncated to
// budget runes. Write-like tools show the path and a content preview,
// patch-like tools show old/new excerpts, shell tools show the literal
// command, and anything else is rendered as JSON.
func FormatDetail(toolName string, input map[string]any, budget int) string {
	if budget <= 0 {
		budget = DefaultDetailBudget
	}

	var out string
	switch toolName {
	case "Write":
		out = withPreview(stringField(input, "file_path"), stringField(input, "content"), budget)
	case "NotebookEdit":
		out = withPreview(stringField(input, "notebook_path"), stringField(input, "new_source"), budget)
	case "Edit":
		out = patchDetail(stringField(input, "file_path"), []edit{{
			old: stringField(input, "old_string"),
			new: stringField(input, "new_string"),
		}}, budget)
	case "MultiEdit":
		out = patchDetail(stringField(input, "file_path"), multiEdits(input), budget)
	case "Bash":
		out = "$ " + stringField(input, "command")
	default:
		b, err := json.Marshal(input)
		if err != nil {
			out = fmt.Sprint(input)
		} else {
			out = string(b)
		}
	}
	return truncate(out, budget)
}

type edit struct {
	old string
	new string
}

func multiEdits(input map[string]any) []edit {
	raw, _ := input["edits"].([]any)
	edits := make([]edit, 0, len(raw))
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		edits = append(edits, edit{old: stringField(m, "old_string"), new: stringField(m, "new_string")})
	}
	return edits
}

// withPreview keeps the full path and spends the rest of the budget on the
// content.
func withPreview(path, content string, budget int) string {
	if content == "" {
		return path
	}
	room := budget - utf8.RuneCountInString(path) - 1
	if room < 16 {
		room = 16
	}
	return path + "\n" + truncate(content, room)
}

func patchDetail(path string, edits []edit, budget int) string {
	var sb strings.Builder
	sb.WriteString(path)
	if len(edits) == 0 {
		return sb.String()
	}
	// Share the remaining budget evenly between the old and new excerpts.
	room := (budget - utf8.RuneCountInString(path)) / (2 * len(edits))
	if room < 16 {
		room = 16
	}
	for _, e := range edits {
		sb.WriteString("\n- ")
		sb.WriteString(truncate(oneLine(e.old), room))
		sb.WriteString("\n+ ")
		sb.WriteString(truncate(oneLine(e.new), room))
	}
	return sb.String()
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", "⏎")
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// truncate shortens s to at most max runes, marking the cut with an
// ellipsis.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 1 {
		return ellipsis
	}
	runes := []rune(s)
	return string(runes[:max-1]) + ellipsis
}
