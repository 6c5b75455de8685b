package binsrc

import "encoding/binary"

// Block is a view over a window of another Source. Offsets handed to a
// Block are relative to the window's own start; the byte order is
// inherited from the parent. Reads are clamped to the window's declared
// length even when the parent source extends further.
type Block struct {
	parent Source
	offset int64
	length int64
}

// NewBlock creates a view covering [offset, offset+length) of parent.
func NewBlock(parent Source, offset, length int64) *Block {
	if length < 0 {
		length = 0
	}
	return &Block{parent: parent, offset: offset, length: length}
}

func (b *Block) Bytes(start, length int64, transform Transform) ([]byte, error) {
	start, length = clampRange(start, length, b.length)
	return b.parent.Bytes(b.offset+start, length, transform)
}

func (b *Block) Size() int64 {
	return b.length
}

func (b *Block) Order() binary.ByteOrder {
	return b.parent.Order()
}
