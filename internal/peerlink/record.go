// Package peerlink decodes readings published by remote sensor nodes and
// feeds them into the remote reading cache.
package peerlink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Record formats.
const (
	// FormatFlow is a bare little-endian float32 (4 bytes).
	FormatFlow = "flow"
	// FormatIDFlow is a little-endian int32 node id followed by a float32 (8 bytes).
	FormatIDFlow = "id-flow"
)

var (
	// ErrRecordSize means the payload length does not match the record format.
	ErrRecordSize = errors.New("peerlink: payload size does not match record")

	// ErrUnknownFormat means the record format is not supported.
	ErrUnknownFormat = errors.New("peerlink: unknown record format")
)

// Record is one decoded peer message. HasID is false for FormatFlow.
type Record struct {
	ID    int32
	HasID bool
	Flow  float32
}

// RecordSize returns the encoded size of format, or 0 if it is unknown.
func RecordSize(format string) int {
	switch format {
	case FormatFlow:
		return 4
	case FormatIDFlow:
		return 8
	default:
		return 0
	}
}

// Decode parses payload as a record of the given format. The payload must be
// exactly the record size.
func Decode(format string, payload []byte) (Record, error) {
	size := RecordSize(format)
	if size == 0 {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if len(payload) != size {
		return Record{}, fmt.Errorf("%w: got %d bytes, want %d", ErrRecordSize, len(payload), size)
	}

	switch format {
	case FormatFlow:
		return Record{Flow: math.Float32frombits(binary.LittleEndian.Uint32(payload))}, nil
	default:
		return Record{
			ID:    int32(binary.LittleEndian.Uint32(payload[0:4])),
			HasID: true,
			Flow:  math.Float32frombits(binary.LittleEndian.Uint32(payload[4:8])),
		}, nil
	}
}

// Encode is the inverse of Decode. Used by tests and bench tools that
// simulate a remote node.
func Encode(format string, r Record) ([]byte, error) {
	switch format {
	case FormatFlow:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(r.Flow))
		return b, nil
	case FormatIDFlow:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint32(b[0:4], uint32(r.ID))
		binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(r.Flow))
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
