package transport

import (
	"sync/atomic"

	"github.com/twitchtv/twitch-native-ipc/pkg/ipc/frame"
)

// peer is one accepted or established stream together with its frame
// reassembly state. The decoder is touched only by the peer's read
// goroutine.
type peer struct {
	conn   StreamConn
	handle uint32
	dec    frame.Decoder
}

func newPeer(conn StreamConn, handle uint32) *peer {
	return &peer{conn: conn, handle: handle}
}

// nextConnHandle allocates a connection handle, skipping 0 on
// wraparound; 0 is reserved for "no specific peer".
func nextConnHandle(last *atomic.Uint32) uint32 {
	h := last.Add(1)
	if h == 0 {
		h = last.Add(1)
	}
	return h
}
