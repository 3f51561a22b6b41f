package frame

import "encoding/binary"

// Decoder reassembles frames from a byte stream fed in arbitrary
// chunks. A single chunk may span several frames, a frame may arrive
// split across many chunks, and a chunk may end mid-header or
// mid-body; the decoder carries the partial state between calls.
//
// The decoder imposes no maximum frame size; bounding memory is the
// caller's policy.
type Decoder struct {
	header     Header
	haveHeader bool
	buf        []byte
}

// Feed consumes p and calls emit once per completed frame, in order.
// The body slice handed to emit is owned by the callee.
func (d *Decoder) Feed(p []byte, emit func(requestID uint32, body []byte)) {
	for len(p) > 0 {
		if !d.haveHeader {
			n := copyAtMost(&d.buf, p, HeaderSize)
			p = p[n:]
			if len(d.buf) < HeaderSize {
				return
			}
			d.header.RequestID = binary.LittleEndian.Uint32(d.buf[0:4])
			d.header.BodySize = binary.LittleEndian.Uint32(d.buf[4:8])
			d.haveHeader = true
			d.buf = nil
		}

		n := copyAtMost(&d.buf, p, int(d.header.BodySize))
		p = p[n:]
		if len(d.buf) < int(d.header.BodySize) {
			return
		}

		body := d.buf
		d.buf = nil
		d.haveHeader = false
		requestID := d.header.RequestID
		d.header = Header{}
		emit(requestID, body)
	}
}

func copyAtMost(dst *[]byte, src []byte, total int) int {
	n := total - len(*dst)
	if n > len(src) {
		n = len(src)
	}
	*dst = append(*dst, src[:n]...)
	return n
}
