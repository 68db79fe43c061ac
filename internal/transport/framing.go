package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	frameVersion    = 1
	frameHeaderSize = 1 + 8
)

// ErrMalformedFrame is returned for frames too short or of an unknown version.
var ErrMalformedFrame = errors.New("transport: malformed frame")

// Hosts that predate the header send the bare JPEG, which always opens with
// the SOI marker. 0xFF can never be a header version.
var jpegSOI = []byte{0xFF, 0xD8}

// Frame is one encoded screen image plus the host's capture time.
type Frame struct {
	// Timestamp is the capture time on the host clock, as a duration since
	// the Unix epoch with millisecond resolution.
	Timestamp time.Duration
	Payload   []byte
}

// EncodeFrame prefixes payload with the version byte and the big-endian
// Unix millisecond capture time.
func EncodeFrame(ts time.Duration, payload []byte) []byte {
	buf := make([]byte, frameHeaderSize+len(payload))
	buf[0] = frameVersion
	binary.BigEndian.PutUint64(buf[1:frameHeaderSize], uint64(ts.Milliseconds()))
	copy(buf[frameHeaderSize:], payload)
	return buf
}

// DecodeFrame parses a frame written by EncodeFrame. The payload aliases data.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < frameHeaderSize || data[0] != frameVersion {
		return Frame{}, ErrMalformedFrame
	}
	ms := binary.BigEndian.Uint64(data[1:frameHeaderSize])
	return Frame{
		Timestamp: time.Duration(ms) * time.Millisecond,
		Payload:   data[frameHeaderSize:],
	}, nil
}

// ParseFrame decodes a stamped frame, or accepts a bare JPEG payload from an
// older host and stamps it with the receipt time.
func ParseFrame(data []byte, received time.Time) (Frame, error) {
	if bytes.HasPrefix(data, jpegSOI) {
		return Frame{
			Timestamp: time.Duration(received.UnixMilli()) * time.Millisecond,
			Payload:   data,
		}, nil
	}
	return DecodeFrame(data)
}
