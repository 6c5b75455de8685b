// Package binsrc provides random-access byte sources for the carve engine.
//
// A Source is a finite linear range of bytes with a declared byte order.
// Reads are truncating: a request that extends past the end of the range
// returns however many bytes exist, never an error. Fixed-width integer
// decoding is layered on top of raw reads and, unlike raw reads, does fail
// when too few bytes remain for the declared width.
package binsrc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// cstringChunk is the block size used when scanning for a NUL terminator.
const cstringChunk = 1024

// ErrShortRead reports that a fixed-width decode did not receive enough
// bytes for the requested width.
var ErrShortRead = errors.New("not enough bytes for requested width")

// Transform mutates a raw buffer before it is interpreted. Transforms run
// on the exact bytes read from the source, e.g. to undo an XOR mask.
type Transform func(data []byte) ([]byte, error)

// Source is a finite range of bytes with a declared byte order.
//
// Implementations must treat out-of-range requests as truncation, not
// failure: Bytes returns the intersection of the requested range with the
// valid range, which may be empty.
type Source interface {
	// Bytes returns up to length bytes starting at start. When transform
	// is non-nil it is applied to the whole buffer before returning; a
	// transform error is the only error Bytes may report.
	Bytes(start, length int64, transform Transform) ([]byte, error)

	// Size reports the total byte count of the source.
	Size() int64

	// Order reports the byte order values are decoded with.
	Order() binary.ByteOrder
}

// clampRange intersects [start, start+length) with [0, size).
func clampRange(start, length, size int64) (int64, int64) {
	if start < 0 {
		length += start
		start = 0
	}
	if start > size {
		start = size
	}
	if length < 0 {
		length = 0
	}
	if start+length > size {
		length = size - start
	}
	return start, length
}

// applyTransform runs an optional transform over data.
func applyTransform(data []byte, transform Transform) ([]byte, error) {
	if transform == nil {
		return data, nil
	}
	out, err := transform(data)
	if err != nil {
		return nil, fmt.Errorf("applying transform: %w", err)
	}
	return out, nil
}

// fixed reads exactly width bytes at start, failing if the (possibly
// transformed) buffer holds fewer.
func fixed(src Source, start int64, width int, transform Transform) ([]byte, error) {
	data, err := src.Bytes(start, int64(width), transform)
	if err != nil {
		return nil, err
	}
	if len(data) < width {
		return nil, fmt.Errorf("reading %d bytes at offset %#x, got %d: %w", width, start, len(data), ErrShortRead)
	}
	return data, nil
}

// U8 decodes an unsigned 8-bit integer at loc.
func U8(src Source, loc int64, transform Transform) (uint8, error) {
	data, err := fixed(src, loc, 1, transform)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// I8 decodes a signed 8-bit integer at loc.
func I8(src Source, loc int64, transform Transform) (int8, error) {
	v, err := U8(src, loc, transform)
	return int8(v), err
}

// U16 decodes an unsigned 16-bit integer at loc in the source's byte order.
func U16(src Source, loc int64, transform Transform) (uint16, error) {
	data, err := fixed(src, loc, 2, transform)
	if err != nil {
		return 0, err
	}
	return src.Order().Uint16(data), nil
}

// I16 decodes a signed 16-bit integer at loc in the source's byte order.
func I16(src Source, loc int64, transform Transform) (int16, error) {
	v, err := U16(src, loc, transform)
	return int16(v), err
}

// U32 decodes an unsigned 32-bit integer at loc in the source's byte order.
func U32(src Source, loc int64, transform Transform) (uint32, error) {
	data, err := fixed(src, loc, 4, transform)
	if err != nil {
		return 0, err
	}
	return src.Order().Uint32(data), nil
}

// I32 decodes a signed 32-bit integer at loc in the source's byte order.
func I32(src Source, loc int64, transform Transform) (int32, error) {
	v, err := U32(src, loc, transform)
	return int32(v), err
}

// U64 decodes an unsigned 64-bit integer at loc in the source's byte order.
func U64(src Source, loc int64, transform Transform) (uint64, error) {
	data, err := fixed(src, loc, 8, transform)
	if err != nil {
		return 0, err
	}
	return src.Order().Uint64(data), nil
}

// I64 decodes a signed 64-bit integer at loc in the source's byte order.
func I64(src Source, loc int64, transform Transform) (int64, error) {
	v, err := U64(src, loc, transform)
	return int64(v), err
}

// CString reads a NUL-terminated byte string starting at loc, scanning in
// fixed-size chunks so the terminator may land anywhere, including across
// a chunk boundary. The terminator is trimmed. If the source ends before
// a terminator is found, all bytes from loc to the end are returned.
func CString(src Source, loc int64, transform Transform) ([]byte, error) {
	var buf []byte
	cur := loc
	for {
		chunk, err := src.Bytes(cur, cstringChunk, transform)
		if err != nil {
			return nil, fmt.Errorf("scanning for terminator at offset %#x: %w", cur, err)
		}
		buf = append(buf, chunk...)
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			return buf[:i], nil
		}
		if int64(len(chunk)) < cstringChunk {
			return buf, nil
		}
		cur += int64(len(chunk))
	}
}
