package changes

import (
	"fmt"
	"sort"
)

// LineRange is a zero-based, half-open span of lines [Start, End).
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of lines in r.
func (r LineRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

func (r LineRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// RangeSet is a canonical set of lines: sorted, non-empty, non-overlapping,
// non-adjacent ranges. The zero value is the empty set. Two sets holding
// the same lines are equal element for element.
type RangeSet []LineRange

// Union returns the lines in either s or o.
func (s RangeSet) Union(o RangeSet) RangeSet {
	all := make([]LineRange, 0, len(s)+len(o))
	all = append(all, s...)
	all = append(all, o...)
	return normalize(all)
}

// Add returns s with r included.
func (s RangeSet) Add(r LineRange) RangeSet {
	return s.Union(RangeSet{r})
}

// Subtract returns the lines of s not in o.
func (s RangeSet) Subtract(o RangeSet) RangeSet {
	var out RangeSet
	for _, r := range s {
		cur := []LineRange{r}
		for _, cut := range o {
			var next []LineRange
			for _, c := range cur {
				if cut.End <= c.Start || cut.Start >= c.End {
					next = append(next, c)
					continue
				}
				if cut.Start > c.Start {
					next = append(next, LineRange{c.Start, cut.Start})
				}
				if cut.End < c.End {
					next = append(next, LineRange{cut.End, c.End})
				}
			}
			cur = next
		}
		out = append(out, cur...)
	}
	return normalize(out)
}

// Contains reports whether line is in s.
func (s RangeSet) Contains(line int) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].End > line })
	return i < len(s) && s[i].Start <= line
}

// Lines returns the number of lines in s.
func (s RangeSet) Lines() int {
	n := 0
	for _, r := range s {
		n += r.Len()
	}
	return n
}

func normalize(rs []LineRange) RangeSet {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Start != rs[j].Start {
			return rs[i].Start < rs[j].Start
		}
		return rs[i].End < rs[j].End
	})
	var out RangeSet
	for _, r := range rs {
		if r.Len() == 0 {
			continue
		}
		if n := len(out); n > 0 && r.Start <= out[n-1].End {
			if r.End > out[n-1].End {
				out[n-1].End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
