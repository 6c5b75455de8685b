package binsrc

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestFileSource(t *testing.T) {
	path := writeTempFile(t, []byte{0x01, 0x00, 0xFF, 0xEE})

	src, err := NewFile(path, "sample", binary.LittleEndian)
	require.NoError(t, err)

	assert.Equal(t, int64(4), src.Size())
	assert.Equal(t, path, src.Path())
	assert.Equal(t, "sample", src.Comment())

	v, err := U16(src, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), v)

	data, err := src.Bytes(2, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xEE}, data, "reads past the end truncate")

	data, err = src.Bytes(100, 4, nil)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestFileSourceMissing(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "nope.bin"), "", binary.LittleEndian)
	require.Error(t, err)
}

func TestFileSourceStateless(t *testing.T) {
	path := writeTempFile(t, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	src, err := NewFile(path, "", binary.BigEndian)
	require.NoError(t, err)

	// Each read is self-contained; interleaved offsets need no seeking
	// discipline from the caller.
	a, err := src.Bytes(6, 2, nil)
	require.NoError(t, err)
	b, err := src.Bytes(0, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8}, a)
	assert.Equal(t, []byte{1, 2}, b)
}
