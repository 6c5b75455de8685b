package binsrc

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockWindow(t *testing.T) {
	parent := NewBuffer([]byte{0, 1, 2, 3, 4, 5, 6, 7}, binary.BigEndian)
	view := NewBlock(parent, 2, 4) // covers bytes 2..5

	assert.Equal(t, int64(4), view.Size())
	assert.Equal(t, binary.BigEndian, view.Order())

	data, err := view.Bytes(0, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3, 4, 5}, data)

	data, err = view.Bytes(1, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, data)
}

func TestBlockClampsToOwnLength(t *testing.T) {
	parent := NewBuffer([]byte{0, 1, 2, 3, 4, 5, 6, 7}, binary.LittleEndian)
	view := NewBlock(parent, 2, 3)

	// The parent has more bytes past the window; the view must not leak
	// them.
	data, err := view.Bytes(0, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3, 4}, data)

	data, err = view.Bytes(5, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestBlockLongerThanParent(t *testing.T) {
	parent := NewBuffer([]byte{9, 8}, binary.LittleEndian)
	view := NewBlock(parent, 1, 10)

	assert.Equal(t, int64(10), view.Size())
	data, err := view.Bytes(0, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{8}, data, "reads truncate at the parent's end")
}

func TestBlockNesting(t *testing.T) {
	parent := NewBuffer([]byte{0, 1, 2, 3, 4, 5, 6, 7}, binary.LittleEndian)
	outer := NewBlock(parent, 2, 5)
	inner := NewBlock(outer, 1, 3) // covers parent bytes 3..5

	data, err := inner.Bytes(0, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5}, data)

	v, err := U16(inner, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0403), v)
}
