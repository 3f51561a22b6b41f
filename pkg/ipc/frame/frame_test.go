package frame

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHeaderLayout(t *testing.T) {
	body := []byte("hello")
	bs := Encode(0x1234, body)

	require.Len(t, bs, HeaderSize+len(body))
	assert.Equal(t, uint32(0x1234), binary.LittleEndian.Uint32(bs[0:4]))
	assert.Equal(t, uint32(len(body)), binary.LittleEndian.Uint32(bs[4:8]))
	assert.Equal(t, body, bs[HeaderSize:])
}

func TestEncodeEmptyBody(t *testing.T) {
	bs := Encode(7, nil)
	require.Len(t, bs, HeaderSize)
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(bs[0:4]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(bs[4:8]))
}

func TestIsRequest(t *testing.T) {
	assert.False(t, IsRequest(0))
	assert.True(t, IsRequest(1))
	assert.True(t, IsRequest(0x7fffffff))
	assert.False(t, IsRequest(1|ResponseFlag))
	assert.False(t, IsRequest(ResponseFlag))
}

type decoded struct {
	requestID uint32
	body      []byte
}

func collect(dst *[]decoded) func(uint32, []byte) {
	return func(requestID uint32, body []byte) {
		*dst = append(*dst, decoded{requestID: requestID, body: body})
	}
}

func TestDecoderSingleReadSpansMultipleFrames(t *testing.T) {
	var bs []byte
	bs = append(bs, Encode(1, []byte("one"))...)
	bs = append(bs, Encode(2, []byte("two"))...)
	bs = append(bs, Encode(0, []byte("three"))...)

	var d Decoder
	var got []decoded
	d.Feed(bs, collect(&got))

	require.Len(t, got, 3)
	assert.Equal(t, uint32(1), got[0].requestID)
	assert.Equal(t, []byte("one"), got[0].body)
	assert.Equal(t, uint32(2), got[1].requestID)
	assert.Equal(t, []byte("two"), got[1].body)
	assert.Equal(t, uint32(0), got[2].requestID)
	assert.Equal(t, []byte("three"), got[2].body)
}

func TestDecoderFrameSplitAcrossManyReads(t *testing.T) {
	body := make([]byte, 5000)
	rand.Read(body)
	bs := Encode(42, body)

	var d Decoder
	var got []decoded
	for i := 0; i < len(bs); i++ {
		d.Feed(bs[i:i+1], collect(&got))
	}

	require.Len(t, got, 1)
	assert.Equal(t, uint32(42), got[0].requestID)
	assert.Equal(t, body, got[0].body)
}

func TestDecoderHeaderPlusPartialBody(t *testing.T) {
	body := []byte("abcdefghij")
	bs := Encode(9, body)

	var d Decoder
	var got []decoded
	d.Feed(bs[:HeaderSize+4], collect(&got))
	require.Empty(t, got)
	d.Feed(bs[HeaderSize+4:], collect(&got))

	require.Len(t, got, 1)
	assert.Equal(t, uint32(9), got[0].requestID)
	assert.Equal(t, body, got[0].body)
}

func TestDecoderZeroLengthBody(t *testing.T) {
	bs := Encode(5, nil)

	var d Decoder
	var got []decoded
	// Header arriving exactly at a chunk boundary must still emit.
	d.Feed(bs[:4], collect(&got))
	require.Empty(t, got)
	d.Feed(bs[4:], collect(&got))

	require.Len(t, got, 1)
	assert.Equal(t, uint32(5), got[0].requestID)
	assert.Empty(t, got[0].body)
}

func TestDecoderRandomChunking(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	var bs []byte
	var want []decoded
	for i := 0; i < 50; i++ {
		body := make([]byte, rng.Intn(2000))
		rng.Read(body)
		requestID := uint32(i)
		want = append(want, decoded{requestID: requestID, body: body})
		bs = append(bs, Encode(requestID, body)...)
	}

	var d Decoder
	var got []decoded
	for len(bs) > 0 {
		n := rng.Intn(97) + 1
		if n > len(bs) {
			n = len(bs)
		}
		d.Feed(bs[:n], collect(&got))
		bs = bs[n:]
	}

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].requestID, got[i].requestID)
		if len(want[i].body) == 0 {
			assert.Empty(t, got[i].body)
		} else {
			assert.Equal(t, want[i].body, got[i].body)
		}
	}
}
