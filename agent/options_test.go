package agent

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParentDeathSignalOption(t *testing.T) {
	c := defaultConfig()
	assert.Equal(t, syscall.SIGTERM, c.ParentDeathSignal)

	WithParentDeathSignal(syscall.SIGKILL)(&c)
	assert.Equal(t, syscall.SIGKILL, c.ParentDeathSignal)

	WithParentDeathSignal(0)(&c)
	assert.Zero(t, c.ParentDeathSignal)
}
