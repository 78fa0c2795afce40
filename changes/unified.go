package changes

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// contextLines is the number of unchanged lines around each hunk.
const contextLines = 3

type lineOp struct {
	text string
	kind diffmatchpatch.Operation
}

// Unified renders a unified diff of before and after. Empty names render
// as /dev/null, marking a created or deleted file. Identical inputs
// produce "".
func Unified(oldName, newName, before, after string) string {
	if before == after {
		return ""
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var ops []lineOp
	for _, d := range diffs {
		for _, line := range splitKeep(d.Text) {
			ops = append(ops, lineOp{text: line, kind: d.Type})
		}
	}

	// oldNo[i] and newNo[i] count the lines of each side before ops[i].
	oldNo := make([]int, len(ops)+1)
	newNo := make([]int, len(ops)+1)
	for i, op := range ops {
		oldNo[i+1], newNo[i+1] = oldNo[i], newNo[i]
		if op.kind != diffmatchpatch.DiffInsert {
			oldNo[i+1]++
		}
		if op.kind != diffmatchpatch.DiffDelete {
			newNo[i+1]++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", diffName("a/", oldName), diffName("b/", newName))
	for _, h := range hunks(ops) {
		start, end := h[0], h[1]
		oldCount := oldNo[end] - oldNo[start]
		newCount := newNo[end] - newNo[start]
		fmt.Fprintf(&sb, "@@ -%s +%s @@\n", hunkRange(oldNo[start], oldCount), hunkRange(newNo[start], newCount))
		for _, op := range ops[start:end] {
			switch op.kind {
			case diffmatchpatch.DiffInsert:
				sb.WriteByte('+')
			case diffmatchpatch.DiffDelete:
				sb.WriteByte('-')
			default:
				sb.WriteByte(' ')
			}
			sb.WriteString(op.text)
			if !strings.HasSuffix(op.text, "\n") {
				sb.WriteString("\n\\ No newline at end of file\n")
			}
		}
	}
	return sb.String()
}

// hunks groups changed ops with their context into [start, end) spans.
func hunks(ops []lineOp) [][2]int {
	var out [][2]int
	for i := 0; i < len(ops); {
		if ops[i].kind == diffmatchpatch.DiffEqual {
			i++
			continue
		}
		start := max(0, i-contextLines)
		last := i
		for j := i + 1; j < len(ops); j++ {
			if ops[j].kind != diffmatchpatch.DiffEqual {
				last = j
				continue
			}
			if j-last > 2*contextLines {
				break
			}
		}
		end := min(len(ops), last+contextLines+1)
		out = append(out, [2]int{start, end})
		i = end
	}
	return out
}

func hunkRange(before, count int) string {
	switch count {
	case 0:
		return fmt.Sprintf("%d,0", before)
	case 1:
		return fmt.Sprintf("%d", before+1)
	default:
		return fmt.Sprintf("%d,%d", before+1, count)
	}
}

func diffName(prefix, name string) string {
	if name == "" {
		return "/dev/null"
	}
	return prefix + name
}

// splitKeep splits s after each newline, keeping the terminators.
func splitKeep(s string) []string {
	var out []string
	for s != "" {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}
