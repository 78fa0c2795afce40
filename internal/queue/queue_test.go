package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_OrderAndClose(t *testing.T) {
	q := New[int]()
	out := make(chan int) // unbuffered: the producer must never block on it
	go q.Pump(out)

	for i := 0; i < 1000; i++ {
		assert.True(t, q.Push(i))
	}
	q.Close()
	assert.False(t, q.Push(-1), "push after close is rejected")

	i := 0
	for v := range out {
		assert.Equal(t, i, v)
		i++
	}
	assert.Equal(t, 1000, i)
}

func TestQueue_PushNeverWaitsForConsumer(t *testing.T) {
	q := New[string]()
	out := make(chan string)
	go q.Pump(out)

	// Nothing is received until every push has returned.
	for i := 0; i < 500; i++ {
		assert.True(t, q.Push("x"))
	}

	q.Close()
	n := 0
	for range out {
		n++
	}
	assert.Equal(t, 500, n)
}

func TestQueue_CloseEmpty(t *testing.T) {
	q := New[int]()
	out := make(chan int)
	go q.Pump(out)
	q.Close()
	_, ok := <-out
	assert.False(t, ok)
}
