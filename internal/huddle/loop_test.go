package huddle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	l := newLoop()
	defer l.stop()

	var got []int
	for i := range 5 {
		l.post(func() { got = append(got, i) })
	}
	// A task posted from inside a task runs after it.
	l.post(func() {
		l.post(func() { got = append(got, 99) })
		got = append(got, 5)
	})
	l.call(func() {})
	l.call(func() {})

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 99}, got)
}

func TestLoopStop(t *testing.T) {
	l := newLoop()
	l.stop()
	l.stop()

	assert.False(t, l.post(func() { t.Error("task ran after stop") }))
	assert.False(t, l.call(func() { t.Error("task ran after stop") }))
}
