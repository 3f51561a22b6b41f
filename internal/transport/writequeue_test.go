package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twitchtv/twitch-native-ipc/pkg/ipc/frame"
)

func TestWriteQueueFIFO(t *testing.T) {
	q := newWriteQueue()
	q.push(1, 10, []byte("a"))
	q.push(1, 11, []byte("b"))
	q.push(2, 0, []byte("c"))

	e, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, uint32(1), e.conn)
	assert.Equal(t, uint32(10), e.requestID)
	assert.Equal(t, frame.Encode(10, []byte("a")), e.frame)

	e, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, uint32(11), e.requestID)

	e, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, uint32(2), e.conn)

	_, ok = q.pop()
	assert.False(t, ok)
}

func TestWriteQueueWake(t *testing.T) {
	q := newWriteQueue()

	select {
	case <-q.wake:
		t.Fatal("wake should be empty before any push")
	default:
	}

	q.push(1, 0, nil)
	q.push(1, 0, nil)

	select {
	case <-q.wake:
	default:
		t.Fatal("wake should be signaled after push")
	}

	// The wake handle coalesces; a second receive would block.
	select {
	case <-q.wake:
		t.Fatal("wake should coalesce multiple pushes")
	default:
	}
}
