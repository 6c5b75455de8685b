package binsrc

import "encoding/binary"

// Buffer is an in-memory Source over a byte slice.
type Buffer struct {
	data  []byte
	order binary.ByteOrder
}

// NewBuffer wraps data as a Source decoding values in the given byte
// order. The slice is not copied; callers must not mutate it while reads
// are in flight.
func NewBuffer(data []byte, order binary.ByteOrder) *Buffer {
	return &Buffer{data: data, order: order}
}

func (b *Buffer) Bytes(start, length int64, transform Transform) ([]byte, error) {
	start, length = clampRange(start, length, int64(len(b.data)))
	// Copy so transforms can never touch the backing slice.
	out := make([]byte, length)
	copy(out, b.data[start:start+length])
	return applyTransform(out, transform)
}

func (b *Buffer) Size() int64 {
	return int64(len(b.data))
}

func (b *Buffer) Order() binary.ByteOrder {
	return b.order
}
