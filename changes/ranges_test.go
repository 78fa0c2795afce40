package changes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeSet_Union(t *testing.T) {
	tests := []struct {
		name string
		a, b RangeSet
		want RangeSet
	}{
		{name: "empty", want: nil},
		{name: "disjoint", a: RangeSet{{0, 2}}, b: RangeSet{{5, 6}}, want: RangeSet{{0, 2}, {5, 6}}},
		{name: "overlapping", a: RangeSet{{0, 4}}, b: RangeSet{{2, 6}}, want: RangeSet{{0, 6}}},
		{name: "adjacent", a: RangeSet{{0, 2}}, b: RangeSet{{2, 3}}, want: RangeSet{{0, 3}}},
		{name: "contained", a: RangeSet{{0, 10}}, b: RangeSet{{3, 4}}, want: RangeSet{{0, 10}}},
		{name: "unsorted input", a: RangeSet{{8, 9}}, b: RangeSet{{1, 2}, {4, 5}}, want: RangeSet{{1, 2}, {4, 5}, {8, 9}}},
		{name: "empty ranges dropped", a: RangeSet{{3, 3}}, b: RangeSet{{1, 2}}, want: RangeSet{{1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Union(tt.b))
			assert.Equal(t, tt.want, tt.b.Union(tt.a), "commutative")
		})
	}
}

func TestRangeSet_UnionIdempotent(t *testing.T) {
	s := RangeSet{{0, 3}, {7, 9}}
	assert.Equal(t, s, s.Union(s))
	assert.Equal(t, s, s.Add(LineRange{1, 2}))
}

func TestRangeSet_Subtract(t *testing.T) {
	tests := []struct {
		name string
		a, b RangeSet
		want RangeSet
	}{
		{name: "nothing to cut", a: RangeSet{{0, 3}}, b: RangeSet{{5, 6}}, want: RangeSet{{0, 3}}},
		{name: "cut middle", a: RangeSet{{0, 10}}, b: RangeSet{{3, 5}}, want: RangeSet{{0, 3}, {5, 10}}},
		{name: "cut everything", a: RangeSet{{2, 4}}, b: RangeSet{{0, 10}}, want: nil},
		{name: "cut edges", a: RangeSet{{0, 10}}, b: RangeSet{{0, 2}, {8, 12}}, want: RangeSet{{2, 8}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Subtract(tt.b))
		})
	}
}

func TestRangeSet_Contains(t *testing.T) {
	s := RangeSet{{2, 4}, {8, 9}}
	for line, want := range map[int]bool{0: false, 2: true, 3: true, 4: false, 8: true, 9: false} {
		assert.Equal(t, want, s.Contains(line), "line %d", line)
	}
	assert.Equal(t, 3, s.Lines())
}
