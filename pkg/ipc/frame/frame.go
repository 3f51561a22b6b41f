package frame

import "encoding/binary"

// Wire format: an 8-byte header followed by the body. Integers are
// little-endian regardless of host order so heterogeneous peers agree.
//
//	┌────────────┬────────────┬──────────────┐
//	│ request_id │ body_size  │ body (bytes) │
//	│   4 bytes  │  4 bytes   │  body_size B │
//	└────────────┴────────────┴──────────────┘
const (
	HeaderSize = 8

	// ResponseFlag is the high bit of a request id. Clear in outgoing
	// requests, set in the response that correlates with them.
	ResponseFlag uint32 = 0x80000000
)

// Header describes one frame on the wire.
type Header struct {
	RequestID uint32
	BodySize  uint32
}

// Encode prepends the header to body and returns the wire bytes.
func Encode(requestID uint32, body []byte) []byte {
	buf := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], requestID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(body)))
	copy(buf[HeaderSize:], body)
	return buf
}

// IsRequest reports whether requestID identifies a request that expects
// a response, i.e. nonzero with the response flag clear.
func IsRequest(requestID uint32) bool {
	return requestID != 0 && requestID&ResponseFlag == 0
}
