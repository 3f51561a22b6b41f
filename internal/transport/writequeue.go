package transport

import (
	"sync"

	"github.com/twitchtv/twitch-native-ipc/pkg/ipc/frame"
)

type writeEntry struct {
	conn      uint32
	requestID uint32
	frame     []byte
}

// writeQueue is the cross-thread FIFO of outbound frames. Producers
// are arbitrary user goroutines; the single consumer is the
// transport's write loop, woken through the wake channel.
type writeQueue struct {
	mu      sync.Mutex
	entries []writeEntry
	wake    chan struct{}
}

func newWriteQueue() *writeQueue {
	return &writeQueue{wake: make(chan struct{}, 1)}
}

func (q *writeQueue) push(conn, requestID uint32, body []byte) {
	q.mu.Lock()
	q.entries = append(q.entries, writeEntry{conn: conn, requestID: requestID, frame: frame.Encode(requestID, body)})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *writeQueue) pop() (writeEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return writeEntry{}, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}
