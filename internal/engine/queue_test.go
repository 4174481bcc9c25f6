package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marker(out *[]string, name string) task {
	return task{fn: func() { *out = append(*out, name) }, done: make(chan struct{})}
}

func TestTaskQueue_FIFO(t *testing.T) {
	q := newTaskQueue()
	var ran []string
	for _, name := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(marker(&ran, name)))
	}
	for {
		tk, ok := q.TryDequeue()
		if !ok {
			break
		}
		tk.fn()
	}
	assert.Equal(t, []string{"A", "B", "C"}, ran)
}

func TestTaskQueue_TryDequeue_Empty(t *testing.T) {
	q := newTaskQueue()
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestTaskQueue_Wait_Signals(t *testing.T) {
	q := newTaskQueue()
	var ran []string
	q.Enqueue(marker(&ran, "A"))
	q.Enqueue(marker(&ran, "B"))

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("no signal after enqueue")
	}
	assert.Equal(t, 2, q.Len())
}

func TestTaskQueue_Close(t *testing.T) {
	q := newTaskQueue()
	var ran []string
	q.Enqueue(marker(&ran, "A"))
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(marker(&ran, "B")), "enqueue after close should fail")

	// Closing wakes waiters but keeps queued work.
	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("close should wake waiters")
	}
	tk, ok := q.TryDequeue()
	require.True(t, ok)
	tk.fn()
	assert.Equal(t, []string{"A"}, ran)
}

func TestTaskQueue_ThreadSafe(t *testing.T) {
	q := newTaskQueue()
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				q.Enqueue(task{fn: func() {}, done: make(chan struct{})})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, q.Len())
}
