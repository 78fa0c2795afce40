package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInputBuffer(t *testing.T) {
	var b inputBuffer
	assert.Equal(t, map[string]any{}, b.Value())

	assert.False(t, b.Append(`{"a":`))
	assert.Equal(t, map[string]any{}, b.Value())

	assert.True(t, b.Append(`1}`))
	assert.Equal(t, map[string]any{"a": float64(1)}, b.Value())

	assert.False(t, b.Append(` trailing`))
	assert.Equal(t, map[string]any{"a": float64(1)}, b.Value(), "last good parse survives")
}

func TestInputBuffer_NonObjectIgnored(t *testing.T) {
	var b inputBuffer
	assert.False(t, b.Append(`[1,2]`))
	assert.False(t, b.Append(``))
	assert.Equal(t, map[string]any{}, b.Value())
}
