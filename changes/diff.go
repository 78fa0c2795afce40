package changes

import "strings"

// LineDiff classifies the lines of an "after" content against its
// "before" content. Ranges index lines of the after content.
type LineDiff struct {
	Added    RangeSet
	Modified RangeSet
}

// Empty reports whether the diff found no changed lines.
func (d LineDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0
}

// DiffLines trims the longest common leading and trailing runs of lines
// and treats what remains as a replacement of the before middle by the
// after middle. Middle lines with a counterpart in the before middle are
// modified; the rest are added. Pure deletions report nothing.
func DiffLines(before, after string) LineDiff {
	b := splitLines(before)
	a := splitLines(after)

	prefix := 0
	for prefix < len(b) && prefix < len(a) && b[prefix] == a[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(b)-prefix && suffix < len(a)-prefix &&
		b[len(b)-1-suffix] == a[len(a)-1-suffix] {
		suffix++
	}

	oldMid := len(b) - prefix - suffix
	newMid := len(a) - prefix - suffix
	overlap := min(oldMid, newMid)

	var d LineDiff
	if overlap > 0 {
		d.Modified = RangeSet{{Start: prefix, End: prefix + overlap}}
	}
	if newMid > overlap {
		d.Added = RangeSet{{Start: prefix + overlap, End: prefix + newMid}}
	}
	return d
}

// splitLines splits s into lines. A trailing newline does not start an
// extra empty line, and "" has no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
