package main

import (
	"fmt"
	"io"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/mattn/go-runewidth"

	"github.com/bazelment/yoloswe/agentsession/approval"
	"github.com/bazelment/yoloswe/agentsession/changes"
	"github.com/bazelment/yoloswe/agentsession/engine"
	"github.com/bazelment/yoloswe/agentsession/transcript"
)

const summaryBudget = 120

var (
	toolStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	askStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

type blockKey struct {
	turn, block int
}

// renderer prints transcript updates incrementally. Turn updates carry the
// whole turn, so it remembers how much of each block is already on screen.
type renderer struct {
	out      io.Writer
	printed  map[blockKey]int
	started  map[string]bool
	finished map[string]bool
	// width limits one-line summaries when positive.
	width int
	color bool
}

func newRenderer(out io.Writer) *renderer {
	r := &renderer{out: out}
	r.reset()
	return r
}

func (r *renderer) reset() {
	r.printed = make(map[blockKey]int)
	r.started = make(map[string]bool)
	r.finished = make(map[string]bool)
}

func (r *renderer) turn(u engine.TurnUpdate) {
	if u.Turn.Role != transcript.RoleAssistant {
		return
	}
	for i, b := range u.Turn.Blocks {
		switch b := b.(type) {
		case *transcript.TextBlock:
			k := blockKey{u.Index, i}
			if n := r.printed[k]; len(b.Text) > n {
				fmt.Fprint(r.out, b.Text[n:])
				r.printed[k] = len(b.Text)
			}
		case *transcript.ToolBlock:
			if !b.Streaming && !r.started[b.ID] {
				r.started[b.ID] = true
				fmt.Fprintf(r.out, "\n%s %s\n", r.style(toolStyle, "● "+b.Name), r.fit(toolSummary(b), len(b.Name)+3))
			}
			if b.Done() && !r.finished[b.ID] {
				r.finished[b.ID] = true
				if b.Error != nil {
					fmt.Fprintf(r.out, "  %s %s\n", r.style(errorStyle, "✗"), r.fit(firstLine(*b.Error), 4))
				} else {
					fmt.Fprintf(r.out, "  %s %s\n", r.style(okStyle, "✓"), r.style(dimStyle, r.fit(firstLine(*b.Result), 4)))
				}
			}
		}
	}
}

func (r *renderer) fileChanged(u engine.FileChangedUpdate) {
	fmt.Fprintf(r.out, "  %s %s (%s)\n", fileMark(u.File), u.File.Path, rangeSummary(u.File))
}

func (r *renderer) approval(p approval.PendingApproval) {
	fmt.Fprintf(r.out, "\n%s\n%s\n[y/N] ", r.style(askStyle, "? Allow "+p.ToolName+"?"), indent(p.Detail))
}

func (r *renderer) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

// fit truncates s so that it fits the terminal after a prefix of the given
// width.
func (r *renderer) fit(s string, prefix int) string {
	if r.width <= 0 || r.width-prefix <= 1 {
		return s
	}
	return runewidth.Truncate(s, r.width-prefix, "…")
}

func toolSummary(b *transcript.ToolBlock) string {
	return firstLine(approval.FormatDetail(b.Name, b.Input, summaryBudget))
}

func fileMark(f changes.TrackedFile) string {
	if !f.Existed {
		return "+"
	}
	return "~"
}

func rangeSummary(f changes.TrackedFile) string {
	var parts []string
	if n := f.Added.Lines(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d added", n))
	}
	if n := f.Modified.Lines(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", n))
	}
	if len(parts) == 0 {
		return "lines removed"
	}
	return strings.Join(parts, ", ")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}
