package changes

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnified(t *testing.T) {
	t.Run("identical", func(t *testing.T) {
		assert.Empty(t, Unified("f", "f", "a\n", "a\n"))
	})

	t.Run("modified line", func(t *testing.T) {
		got := Unified("f.txt", "f.txt", "a\nb\nc\n", "a\nB\nc\n")
		assert.Equal(t, "--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n", got)
	})

	t.Run("created file", func(t *testing.T) {
		got := Unified("", "new.txt", "", "x\ny\n")
		assert.Equal(t, "--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1,2 @@\n+x\n+y\n", got)
	})

	t.Run("deleted file", func(t *testing.T) {
		got := Unified("gone.txt", "", "x\n", "")
		assert.Equal(t, "--- a/gone.txt\n+++ /dev/null\n@@ -1 +0,0 @@\n-x\n", got)
	})

	t.Run("missing trailing newline", func(t *testing.T) {
		got := Unified("f", "f", "a\n", "a\nb")
		assert.Contains(t, got, "+b\n\\ No newline at end of file\n")
	})

	t.Run("distant changes split into hunks", func(t *testing.T) {
		var before []string
		for i := 0; i < 30; i++ {
			before = append(before, fmt.Sprintf("line %d", i))
		}
		after := append([]string(nil), before...)
		after[2] = "changed 2"
		after[25] = "changed 25"

		got := Unified("f", "f", strings.Join(before, "\n")+"\n", strings.Join(after, "\n")+"\n")
		assert.Equal(t, 2, strings.Count(got, "@@ -"), got)
		assert.Contains(t, got, "@@ -1,6 +1,6 @@\n")
		assert.Contains(t, got, "@@ -23,7 +23,7 @@\n")
	})
}

func TestSplitKeep(t *testing.T) {
	assert.Equal(t, []string{"a\n", "b\n"}, splitKeep("a\nb\n"))
	assert.Equal(t, []string{"a\n", "b"}, splitKeep("a\nb"))
	assert.Nil(t, splitKeep(""))
}
