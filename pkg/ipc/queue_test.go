package ipc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperationQueueRunsInOrder(t *testing.T) {
	q := newOperationQueue()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.enqueue(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	q.stop()

	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestOperationQueueStopDrainsQueued(t *testing.T) {
	q := newOperationQueue()

	done := make(chan struct{})
	release := make(chan struct{})
	q.enqueue(func() { <-release })
	q.enqueue(func() { close(done) })

	close(release)
	q.stop()

	select {
	case <-done:
	default:
		t.Fatal("stop should drain operations that were already queued")
	}
}

func TestOperationQueueRejectsAfterStop(t *testing.T) {
	q := newOperationQueue()
	q.stop()

	ran := false
	q.enqueue(func() { ran = true })
	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran)
}

func TestOperationQueueStopIdempotent(t *testing.T) {
	q := newOperationQueue()
	q.stop()
	q.stop()
}
